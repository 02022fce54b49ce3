package frame

import (
	"context"
	"fmt"
	"slices"
)

// JoinKey pairs a left column with the right column it must equal.
type JoinKey struct {
	Left  string
	Right string
}

// JoinOptions tunes InnerJoin.
type JoinOptions struct {
	// Normalize, when set, is applied to key values on both sides before
	// comparison. Output rows keep the original values.
	Normalize func(v any) any
}

// JoinStats reports how many rows on each side found no partner.
type JoinStats struct {
	LeftRows       int
	RightRows      int
	LeftUnmatched  int
	RightUnmatched int
	Output         int
}

// InnerJoin joins left and right on keys with inner-join semantics: a row
// pair is emitted for every combination of equal keys (fan-out is kept),
// rows without a partner are dropped, and null keys never match. The result
// schema is left's columns followed by right's; overlapping names are an
// error, so callers rename first.
func (x Exec) InnerJoin(ctx context.Context, left, right *Table, keys []JoinKey, opts JoinOptions) (*Table, JoinStats, error) {
	var stats JoinStats
	if len(keys) == 0 {
		return nil, stats, fmt.Errorf("frame: join needs at least one key")
	}
	schema := append(slices.Clip(left.schema), right.schema...)
	if err := schema.validate(); err != nil {
		return nil, stats, fmt.Errorf("frame: join: %w", err)
	}
	lidx := make([]int, len(keys))
	ridx := make([]int, len(keys))
	for i, k := range keys {
		if lidx[i] = left.schema.Index(k.Left); lidx[i] < 0 {
			return nil, stats, fmt.Errorf("frame: join: unknown left column %q", k.Left)
		}
		if ridx[i] = right.schema.Index(k.Right); ridx[i] < 0 {
			return nil, stats, fmt.Errorf("frame: join: unknown right column %q", k.Right)
		}
	}

	n := x.partitions()
	lb, err := x.shuffleKeys(ctx, left, lidx, n, opts.Normalize)
	if err != nil {
		return nil, stats, err
	}
	rb, err := x.shuffleKeys(ctx, right, ridx, n, opts.Normalize)
	if err != nil {
		return nil, stats, err
	}

	parts := make([][]Row, n)
	type counts struct{ lmiss, rmiss int }
	perBucket := make([]counts, n)
	err = x.each(ctx, n, func(_ context.Context, b int) error {
		build := make(map[string][]int, len(rb[b]))
		for i, kr := range rb[b] {
			if kr.null {
				continue
			}
			build[kr.key] = append(build[kr.key], i)
		}
		matched := make([]bool, len(rb[b]))
		var out []Row
		for _, l := range lb[b] {
			if l.null {
				perBucket[b].lmiss++
				continue
			}
			hits := build[l.key]
			if len(hits) == 0 {
				perBucket[b].lmiss++
				continue
			}
			for _, i := range hits {
				matched[i] = true
				r := rb[b][i].row
				nr := make(Row, 0, len(l.row)+len(r))
				nr = append(nr, l.row...)
				nr = append(nr, r...)
				out = append(out, nr)
			}
		}
		for _, m := range matched {
			if !m {
				perBucket[b].rmiss++
			}
		}
		parts[b] = out
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	stats.LeftRows, stats.RightRows = left.Len(), right.Len()
	for _, c := range perBucket {
		stats.LeftUnmatched += c.lmiss
		stats.RightUnmatched += c.rmiss
	}
	t := &Table{schema: schema, parts: parts}
	stats.Output = t.Len()
	return t, stats, nil
}

type joinRow struct {
	key  string
	null bool
	row  Row
}

func (x Exec) shuffleKeys(ctx context.Context, t *Table, idx []int, n int, normalize func(any) any) ([][]joinRow, error) {
	local := make([][][]joinRow, len(t.parts))
	err := x.each(ctx, len(t.parts), func(_ context.Context, p int) error {
		buckets := make([][]joinRow, n)
		var buf []byte
		for _, r := range t.parts[p] {
			buf = buf[:0]
			null := false
			for _, i := range idx {
				v := r[i]
				if v == nil {
					null = true
					break
				}
				if normalize != nil {
					v = normalize(v)
				}
				var err error
				if buf, err = appendValue(buf, v); err != nil {
					return err
				}
			}
			// Null-keyed rows can never match; park them in bucket 0 so they
			// are still counted as unmatched.
			b := 0
			if !null {
				b = bucketOf(buf, n)
			}
			buckets[b] = append(buckets[b], joinRow{key: string(buf), null: null, row: r})
		}
		local[p] = buckets
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([][]joinRow, n)
	for b := 0; b < n; b++ {
		for p := range local {
			out[b] = append(out[b], local[p][b]...)
		}
	}
	return out, nil
}
