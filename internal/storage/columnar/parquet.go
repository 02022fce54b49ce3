// Package columnar encodes frame rows as Snappy-compressed Parquet files.
//
// Every column is written as an optional leaf so that nullable and
// non-nullable columns share one code path; nullability is enforced before
// rows reach the encoder. Timestamps are stored as microseconds since the
// epoch with the TIMESTAMP(MICROS) logical type.
package columnar

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/anhlhn1/udacity-data-lake/internal/frame"
)

// Ext is the file suffix of encoded objects.
const Ext = ".snappy.parquet"

const readBatch = 256

// Schema maps a frame schema onto a Parquet schema named name.
func Schema(name string, s frame.Schema) (*parquet.Schema, error) {
	group := parquet.Group{}
	for _, c := range s {
		var node parquet.Node
		switch c.Type {
		case frame.String:
			node = parquet.String()
		case frame.Int64:
			node = parquet.Int(64)
		case frame.Float64:
			node = parquet.Leaf(parquet.DoubleType)
		case frame.Timestamp:
			node = parquet.Timestamp(parquet.Microsecond)
		default:
			return nil, fmt.Errorf("columnar: column %s: unsupported type %s", c.Name, c.Type)
		}
		group[c.Name] = parquet.Optional(node)
	}
	return parquet.NewSchema(name, group), nil
}

// columnIndexes returns, for each column of s, its leaf index in ps.
func columnIndexes(ps *parquet.Schema, s frame.Schema) ([]int, error) {
	idx := make([]int, len(s))
	for i, c := range s {
		leaf, ok := ps.Lookup(c.Name)
		if !ok {
			return nil, fmt.Errorf("columnar: column %s missing from file schema", c.Name)
		}
		idx[i] = leaf.ColumnIndex
	}
	return idx, nil
}

// Encode writes rows (shaped like s) as one Parquet file.
func Encode(name string, s frame.Schema, rows []frame.Row) ([]byte, error) {
	ps, err := Schema(name, s)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndexes(ps, s)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, ps, parquet.Compression(&parquet.Snappy))
	batch := make([]parquet.Row, 0, readBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.WriteRows(batch); err != nil {
			return fmt.Errorf("columnar: write rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for n, r := range rows {
		pr := make(parquet.Row, len(s))
		for i, c := range s {
			v, err := toValue(r[i], c)
			if err != nil {
				return nil, fmt.Errorf("columnar: row %d: %w", n, err)
			}
			pr[idx[i]] = v.Level(0, definition(v), idx[i])
		}
		batch = append(batch, pr)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("columnar: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func definition(v parquet.Value) int {
	if v.IsNull() {
		return 0
	}
	return 1
}

func toValue(v any, c frame.Column) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch c.Type {
	case frame.String:
		if s, ok := v.(string); ok {
			return parquet.ByteArrayValue([]byte(s)), nil
		}
	case frame.Int64:
		if i, ok := v.(int64); ok {
			return parquet.Int64Value(i), nil
		}
	case frame.Float64:
		if f, ok := v.(float64); ok {
			return parquet.DoubleValue(f), nil
		}
	case frame.Timestamp:
		if t, ok := v.(time.Time); ok {
			return parquet.Int64Value(t.UnixMicro()), nil
		}
	}
	return parquet.Value{}, fmt.Errorf("column %s: %T is not %s", c.Name, v, c.Type)
}

// Decode reads every row of a Parquet file into rows shaped like s. Columns
// are matched by name, so the file may order them differently.
func Decode(data []byte, s frame.Schema) ([]frame.Row, error) {
	r := parquet.NewReader(bytes.NewReader(data))
	defer r.Close()

	idx, err := columnIndexes(r.Schema(), s)
	if err != nil {
		return nil, err
	}
	pos := make(map[int]int, len(idx))
	for i, ci := range idx {
		pos[ci] = i
	}

	out := make([]frame.Row, 0, r.NumRows())
	buf := make([]parquet.Row, readBatch)
	for {
		n, err := r.ReadRows(buf)
		for _, pr := range buf[:n] {
			row := make(frame.Row, len(s))
			for _, v := range pr {
				i, ok := pos[v.Column()]
				if !ok || v.IsNull() {
					continue
				}
				row[i] = fromValue(v, s[i].Type)
			}
			out = append(out, row)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("columnar: read rows: %w", err)
		}
	}
	return out, nil
}

func fromValue(v parquet.Value, t frame.Type) any {
	switch t {
	case frame.String:
		return string(v.ByteArray())
	case frame.Int64:
		return v.Int64()
	case frame.Float64:
		return v.Double()
	case frame.Timestamp:
		return time.UnixMicro(v.Int64()).UTC()
	}
	return nil
}
