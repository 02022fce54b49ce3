package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/datasource"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	jsonparser "github.com/anhlhn1/udacity-data-lake/internal/parser/json"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

// ReadStats counts what a raw read saw.
type ReadStats struct {
	Files   int
	Records int
	Skipped int
}

// Engine is the storage side of a run: raw JSON in, committed tables out.
type Engine interface {
	// ReadRecords reads every input object matching pattern under rec.
	ReadRecords(ctx context.Context, pattern string, rec schema.Record, recursive bool) (*frame.Table, ReadStats, error)
	// ReadTable reads a committed output table (apperrors.ErrNotCommitted
	// if the location was never committed).
	ReadTable(ctx context.Context, spec schema.TableSpec) (*frame.Table, error)
	// WriteTable overwrites spec's location with t.
	WriteTable(ctx context.Context, spec schema.TableSpec, t *frame.Table, runID string) (storage.WriteResult, error)
	// Location renders spec's output location.
	Location(spec schema.TableSpec) string
}

// LakeEngine reads raw records from an input bucket and keeps tables in an
// output Lake.
type LakeEngine struct {
	input       storage.Bucket
	lake        *storage.Lake
	policy      jsonparser.Policy
	parallelism int
	log         *zap.Logger
}

// NewLakeEngine wires an Engine over input and lake.
func NewLakeEngine(input storage.Bucket, lake *storage.Lake, policy jsonparser.Policy, parallelism int, log *zap.Logger) *LakeEngine {
	if parallelism <= 0 {
		parallelism = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LakeEngine{input: input, lake: lake, policy: policy, parallelism: parallelism, log: log}
}

// ReadRecords reads matched objects in parallel, one table partition per
// object. No matching object yields an empty table and a warning.
func (e *LakeEngine) ReadRecords(ctx context.Context, pattern string, rec schema.Record, recursive bool) (*frame.Table, ReadStats, error) {
	var stats ReadStats
	objs, err := datasource.Glob(ctx, e.input, pattern, datasource.GlobOptions{Recursive: recursive})
	if err != nil {
		return nil, stats, err
	}
	stats.Files = len(objs)
	if len(objs) == 0 {
		e.log.Warn("no input objects matched", zap.String("pattern", e.input.URI(pattern)))
	}

	var records, skipped atomic.Int64
	parts := make([][]frame.Row, len(objs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, obj := range objs {
		i, obj := i, obj
		g.Go(func() error {
			rc, err := obj.Open(ctx)
			if err != nil {
				return err
			}
			defer rc.Close()
			rows, st, err := jsonparser.ReadRecords(ctx, rc, obj.Name(), rec, jsonparser.Options{
				Policy: e.policy,
				OnSkip: func(mm *apperrors.SchemaMismatchError) {
					e.log.Warn("skipping malformed record", zap.String("record", rec.Name), zap.Error(mm))
				},
			})
			if err != nil {
				return err
			}
			records.Add(int64(st.Records))
			skipped.Add(int64(st.Skipped))
			parts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, errors.Wrapf(err, "read %s records", rec.Name)
	}
	stats.Records, stats.Skipped = int(records.Load()), int(skipped.Load())

	t, err := frame.New(rec.Table(), parts...)
	return t, stats, err
}

func (e *LakeEngine) ReadTable(ctx context.Context, spec schema.TableSpec) (*frame.Table, error) {
	return e.lake.ReadTable(ctx, spec)
}

func (e *LakeEngine) WriteTable(ctx context.Context, spec schema.TableSpec, t *frame.Table, runID string) (storage.WriteResult, error) {
	return e.lake.WriteTable(ctx, spec, t, runID)
}

func (e *LakeEngine) Location(spec schema.TableSpec) string {
	return e.lake.Bucket().URI(spec.SubPath)
}
