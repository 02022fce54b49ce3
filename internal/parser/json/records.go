// Package json reads raw JSON record streams into frame rows under a
// declared read schema.
//
// Accepted shapes, per source object:
//
//   - newline-delimited objects: {"a":1}\n{"a":2}
//   - a root array of objects: [ {...}, {...} ]
//   - an envelope object whose only array-of-object field holds the records
//   - a single object (one record; the usual song_data layout)
//
// Every declared field is converted to its column type. A record that cannot
// be converted is a schema mismatch; what happens next is decided by Policy.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

// Policy decides what a non-conforming record does to the batch.
type Policy string

const (
	// PolicyFail aborts the whole batch on the first bad record.
	PolicyFail Policy = "fail"
	// PolicySkip drops bad records and reports them through Options.OnSkip.
	PolicySkip Policy = "skip"
)

// ParsePolicy maps a config string onto a Policy. Empty means fail.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown malformed policy %q (want fail or skip)", s)
	}
}

// Options configures ReadRecords.
type Options struct {
	Policy Policy
	// OnSkip is called for every record dropped under PolicySkip.
	OnSkip func(err *apperrors.SchemaMismatchError)
}

// Stats counts what ReadRecords saw.
type Stats struct {
	Records int // records accepted
	Skipped int // records dropped under PolicySkip
}

// ReadRecords decodes every record in r. source names r in errors.
//
// JSON syntax errors are always fatal: the decoder cannot resynchronise on a
// broken stream, so there is no record to skip.
func ReadRecords(ctx context.Context, r io.Reader, source string, rec schema.Record, opt Options) ([]frame.Row, Stats, error) {
	var (
		rows  []frame.Row
		stats Stats
		n     int
	)
	dec := json.NewDecoder(r)
	dec.UseNumber()

	emit := func(obj map[string]any) error {
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, mm := toRow(obj, rec)
		if mm != nil {
			mm.Source, mm.Record = source, n
			if opt.Policy != PolicySkip {
				return mm
			}
			stats.Skipped++
			if opt.OnSkip != nil {
				opt.OnSkip(mm)
			}
			return nil
		}
		stats.Records++
		rows = append(rows, row)
		return nil
	}

	emitAny := func(v any) error {
		obj, ok := v.(map[string]any)
		if !ok {
			n++
			mm := &apperrors.SchemaMismatchError{Source: source, Record: n, Reason: fmt.Sprintf("record is %T, want object", v)}
			if opt.Policy != PolicySkip {
				return mm
			}
			stats.Skipped++
			if opt.OnSkip != nil {
				opt.OnSkip(mm)
			}
			return nil
		}
		return emit(obj)
	}

	var root any
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("json: %s: decode root: %w", source, err)
	}

	switch v := root.(type) {
	case []any:
		for _, elem := range v {
			if err := emitAny(elem); err != nil {
				return nil, stats, err
			}
		}
	case map[string]any:
		if slice := envelope(v, rec); slice != nil {
			for _, elem := range slice {
				if err := emitAny(elem); err != nil {
					return nil, stats, err
				}
			}
		} else if err := emit(v); err != nil {
			return nil, stats, err
		}
	default:
		if err := emitAny(v); err != nil {
			return nil, stats, err
		}
	}

	// Remaining top-level values (NDJSON).
	for {
		var v any
		if err := dec.Decode(&v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, stats, fmt.Errorf("json: %s: decode record %d: %w", source, n+1, err)
		}
		if err := emitAny(v); err != nil {
			return nil, stats, err
		}
	}
	return rows, stats, nil
}

// envelope returns the record array of an envelope object such as
// {"records":[{...}]}. An object carrying any declared key is a record, not
// an envelope.
func envelope(root map[string]any, rec schema.Record) []any {
	for _, f := range rec.Fields {
		if _, ok := root[f.Key]; ok {
			return nil
		}
	}
	for _, v := range root {
		slice, ok := v.([]any)
		if !ok || len(slice) == 0 {
			continue
		}
		if _, ok := slice[0].(map[string]any); ok {
			return slice
		}
	}
	return nil
}

// toRow converts obj into a row aligned with rec's fields.
func toRow(obj map[string]any, rec schema.Record) (frame.Row, *apperrors.SchemaMismatchError) {
	row := make(frame.Row, len(rec.Fields))
	for i, f := range rec.Fields {
		v, err := convert(obj[f.Key], f)
		if err != "" {
			return nil, &apperrors.SchemaMismatchError{Field: f.Key, Reason: err}
		}
		row[i] = v
	}
	return row, nil
}

// convert coerces a decoded JSON value into the Go type of f. A non-empty
// string result describes why the value does not conform.
func convert(v any, f schema.Field) (any, string) {
	if v == nil {
		if !f.Nullable {
			return nil, "missing or null value for non-nullable field"
		}
		return nil, ""
	}
	switch f.Type {
	case frame.String:
		switch t := v.(type) {
		case string:
			return t, ""
		case json.Number:
			// Numeric ids (userId in some exports) are read as their text.
			return t.String(), ""
		}
	case frame.Int64:
		if num, ok := v.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				return i, ""
			}
			fl, err := num.Float64()
			if err == nil && fl == math.Trunc(fl) && math.Abs(fl) < 1<<63 {
				return int64(fl), ""
			}
			return nil, fmt.Sprintf("%s is not an integer", num)
		}
	case frame.Float64:
		if num, ok := v.(json.Number); ok {
			fl, err := num.Float64()
			if err != nil {
				return nil, fmt.Sprintf("%s is not a number", num)
			}
			return fl, ""
		}
	}
	return nil, fmt.Sprintf("got %s, want %s", jsonKind(v), f.Type)
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
