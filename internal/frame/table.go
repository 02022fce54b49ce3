package frame

import (
	"fmt"
)

// Row is one record; Row[i] belongs to Schema[i].
type Row []any

// Table is an immutable, partitioned relation.
type Table struct {
	schema Schema
	parts  [][]Row
}

// New builds a Table from partitions. Every row must be as wide as schema.
func New(schema Schema, parts ...[]Row) (*Table, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}
	for p, rows := range parts {
		for i, r := range rows {
			if len(r) != len(schema) {
				return nil, fmt.Errorf("frame: partition %d row %d has %d values, want %d", p, i, len(r), len(schema))
			}
		}
	}
	return &Table{schema: schema, parts: parts}, nil
}

// MustNew is New for statically known inputs (tests, fixtures).
func MustNew(schema Schema, parts ...[]Row) *Table {
	t, err := New(schema, parts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Schema returns the table's columns.
func (t *Table) Schema() Schema { return t.schema }

// NumPartitions returns how many partitions the table is split into.
func (t *Table) NumPartitions() int { return len(t.parts) }

// Partition returns the rows of partition i. Callers must not modify them.
func (t *Table) Partition(i int) []Row { return t.parts[i] }

// Len returns the total number of rows.
func (t *Table) Len() int {
	n := 0
	for _, p := range t.parts {
		n += len(p)
	}
	return n
}

// Rows returns all rows, partition by partition.
func (t *Table) Rows() []Row {
	out := make([]Row, 0, t.Len())
	for _, p := range t.parts {
		out = append(out, p...)
	}
	return out
}

// Column returns every value of the named column, partition by partition.
func (t *Table) Column(name string) ([]any, error) {
	i := t.schema.Index(name)
	if i < 0 {
		return nil, fmt.Errorf("frame: unknown column %q", name)
	}
	out := make([]any, 0, t.Len())
	for _, p := range t.parts {
		for _, r := range p {
			out = append(out, r[i])
		}
	}
	return out, nil
}

// Rename returns a table whose columns are renamed according to m
// (old name -> new name). Rows are shared, not copied.
func (t *Table) Rename(m map[string]string) (*Table, error) {
	schema := make(Schema, len(t.schema))
	copy(schema, t.schema)
	for old, name := range m {
		i := schema.Index(old)
		if i < 0 {
			return nil, fmt.Errorf("frame: rename: unknown column %q", old)
		}
		schema[i].Name = name
	}
	if err := schema.validate(); err != nil {
		return nil, err
	}
	return &Table{schema: schema, parts: t.parts}, nil
}

// Get returns the value of column name in r, which must belong to t.
func (t *Table) Get(r Row, name string) any {
	if i := t.schema.Index(name); i >= 0 {
		return r[i]
	}
	return nil
}
