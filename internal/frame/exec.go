package frame

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Exec runs relational operators over Tables.
//
// Parallelism bounds how many partitions are processed at once; Partitions
// is the number of hash partitions produced by shuffling operators
// (Distinct, InnerJoin). Zero values pick sensible defaults.
type Exec struct {
	Parallelism int
	Partitions  int
}

func (x Exec) parallelism() int {
	if x.Parallelism > 0 {
		return x.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

func (x Exec) partitions() int {
	if x.Partitions > 0 {
		return x.Partitions
	}
	return 8
}

// each runs fn(i) for i in [0,n) with bounded parallelism. The first error
// cancels the remaining work.
func (x Exec) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(x.parallelism())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

// Select projects t onto cols, in that order.
func (x Exec) Select(ctx context.Context, t *Table, cols ...string) (*Table, error) {
	schema, idx, err := t.schema.Project(cols...)
	if err != nil {
		return nil, err
	}
	parts := make([][]Row, len(t.parts))
	err = x.each(ctx, len(t.parts), func(_ context.Context, p int) error {
		in := t.parts[p]
		out := make([]Row, len(in))
		for i, r := range in {
			nr := make(Row, len(idx))
			for j, k := range idx {
				nr[j] = r[k]
			}
			out[i] = nr
		}
		parts[p] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return New(schema, parts...)
}

// Filter keeps the rows for which keep returns true.
func (x Exec) Filter(ctx context.Context, t *Table, keep func(t *Table, r Row) bool) (*Table, error) {
	parts := make([][]Row, len(t.parts))
	err := x.each(ctx, len(t.parts), func(_ context.Context, p int) error {
		out := make([]Row, 0, len(t.parts[p]))
		for _, r := range t.parts[p] {
			if keep(t, r) {
				out = append(out, r)
			}
		}
		parts[p] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Table{schema: t.schema, parts: parts}, nil
}

// Map builds a table with schema out by calling fn once per input row. fn
// must return a row as wide as out.
func (x Exec) Map(ctx context.Context, t *Table, out Schema, fn func(t *Table, r Row) (Row, error)) (*Table, error) {
	if err := out.validate(); err != nil {
		return nil, err
	}
	parts := make([][]Row, len(t.parts))
	err := x.each(ctx, len(t.parts), func(_ context.Context, p int) error {
		rows := make([]Row, 0, len(t.parts[p]))
		for _, r := range t.parts[p] {
			nr, err := fn(t, r)
			if err != nil {
				return err
			}
			if len(nr) != len(out) {
				return fmt.Errorf("frame: map produced %d values, want %d", len(nr), len(out))
			}
			rows = append(rows, nr)
		}
		parts[p] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Table{schema: out, parts: parts}, nil
}

// WithColumn appends column c computed by fn.
func (x Exec) WithColumn(ctx context.Context, t *Table, c Column, fn func(t *Table, r Row) (any, error)) (*Table, error) {
	out := append(slices.Clip(t.schema), c)
	return x.Map(ctx, t, out, func(t *Table, r Row) (Row, error) {
		v, err := fn(t, r)
		if err != nil {
			return nil, err
		}
		nr := make(Row, len(r), len(r)+1)
		copy(nr, r)
		return append(nr, v), nil
	})
}

// shuffle redistributes rows into n hash partitions keyed on idx (the full
// row when idx is nil). Within a bucket, rows keep input partition order and
// then input row order, so the result is deterministic.
func (x Exec) shuffle(ctx context.Context, t *Table, idx []int, n int) ([][]keyed, error) {
	// Per input partition, per bucket.
	local := make([][][]keyed, len(t.parts))
	err := x.each(ctx, len(t.parts), func(_ context.Context, p int) error {
		buckets := make([][]keyed, n)
		for _, r := range t.parts[p] {
			key, err := encodeKey(nil, r, idx)
			if err != nil {
				return err
			}
			b := bucketOf(key, n)
			buckets[b] = append(buckets[b], keyed{key: string(key), row: r})
		}
		local[p] = buckets
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([][]keyed, n)
	for b := 0; b < n; b++ {
		for p := range local {
			out[b] = append(out[b], local[p][b]...)
		}
	}
	return out, nil
}

type keyed struct {
	key string
	row Row
}

// Distinct removes rows that are exactly equal to an earlier row. Equality
// is full-row: every column takes part in the key.
func (x Exec) Distinct(ctx context.Context, t *Table) (*Table, error) {
	n := x.partitions()
	buckets, err := x.shuffle(ctx, t, nil, n)
	if err != nil {
		return nil, err
	}
	parts := make([][]Row, n)
	err = x.each(ctx, n, func(_ context.Context, b int) error {
		seen := make(map[string]struct{}, len(buckets[b]))
		out := make([]Row, 0, len(buckets[b]))
		for _, kr := range buckets[b] {
			if _, dup := seen[kr.key]; dup {
				continue
			}
			seen[kr.key] = struct{}{}
			out = append(out, kr.row)
		}
		parts[b] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Table{schema: t.schema, parts: parts}, nil
}

// Sorted returns a copy of the rows of t in CompareRows order.
func Sorted(rows []Row) []Row {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, CompareRows)
	return out
}
