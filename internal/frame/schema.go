// Package frame is a small in-memory, partitioned table engine.
//
// A Table is an ordered list of columns plus rows split into partitions. All
// operators (Select, Filter, Map, Distinct, InnerJoin) are declarative and
// run data-parallel over partitions; none of them mutates its input.
//
// Values inside a Row are limited to: nil, string, int64, float64 and
// time.Time. Anything else is a programming error and is rejected by the
// operators that need to compare values.
package frame

import (
	"fmt"
	"strings"
)

// Type is the logical type of a column.
type Type uint8

const (
	String Type = iota + 1
	Int64
	Float64
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Column describes one column of a Schema.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered list of columns. Column names are unique.
type Schema []Column

// Index returns the position of name in s, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the column called name.
func (s Schema) Lookup(name string) (Column, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i], true
	}
	return Column{}, false
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Project returns the sub-schema made of cols, in the given order.
func (s Schema) Project(cols ...string) (Schema, []int, error) {
	out := make(Schema, len(cols))
	idx := make([]int, len(cols))
	for i, name := range cols {
		j := s.Index(name)
		if j < 0 {
			return nil, nil, fmt.Errorf("frame: unknown column %q (have %s)", name, strings.Join(s.Names(), ", "))
		}
		out[i] = s[j]
		idx[i] = j
	}
	return out, idx, nil
}

// Without returns s minus the named columns, preserving order.
func (s Schema) Without(cols ...string) Schema {
	drop := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		drop[c] = struct{}{}
	}
	out := make(Schema, 0, len(s))
	for _, c := range s {
		if _, ok := drop[c.Name]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (s Schema) validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, c := range s {
		if c.Name == "" {
			return fmt.Errorf("frame: empty column name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("frame: duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}
