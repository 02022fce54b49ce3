package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
	"github.com/anhlhn1/udacity-data-lake/internal/storage/columnar"
)

const (
	// SuccessMarker is written last; a table location without it is not
	// committed and must not be read.
	SuccessMarker = "_SUCCESS"
	// tempDir holds staged files of in-flight writes.
	tempDir = "_temporary"
	// filePrefix names data files inside a partition directory.
	filePrefix = "part-00000"
)

// WriteResult summarises a committed table write.
type WriteResult struct {
	Rows  int
	Files []string // keys, sorted
}

// Lake writes and reads partitioned tables in a Bucket.
type Lake struct {
	bucket      Bucket
	parallelism int
	log         *zap.Logger
}

// NewLake returns a Lake over b. parallelism bounds concurrent object
// operations; zero means 8.
func NewLake(b Bucket, parallelism int, log *zap.Logger) *Lake {
	if parallelism <= 0 {
		parallelism = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lake{bucket: b, parallelism: parallelism, log: log}
}

// Bucket returns the underlying bucket.
func (l *Lake) Bucket() Bucket { return l.bucket }

// WriteTable replaces the content at spec.SubPath with t.
//
// Files are staged under <subpath>/_temporary/<runID>/ first. Only when
// every file is staged is the previous commit marker removed, the previous
// content deleted, the staged files moved into place and a new marker
// written. Any failure returns an error wrapping apperrors.ErrWriteFailure;
// a failure before the old marker is removed leaves the previous commit
// readable.
//
// Rows are sorted within each file and file names carry no run id, so the
// same input produces byte-identical output.
func (l *Lake) WriteTable(ctx context.Context, spec schema.TableSpec, t *frame.Table, runID string) (WriteResult, error) {
	fail := func(err error) (WriteResult, error) {
		return WriteResult{}, errors.Wrapf(apperrors.ErrWriteFailure, "table %s at %s: %v", spec.Name, l.bucket.URI(spec.SubPath), err)
	}
	if runID == "" || strings.Contains(runID, "/") {
		return fail(fmt.Errorf("invalid run id %q", runID))
	}
	if err := spec.Validate(); err != nil {
		return fail(err)
	}
	if err := sameSchema(t.Schema(), spec.Schema); err != nil {
		return fail(err)
	}

	files, err := layout(spec, t)
	if err != nil {
		return fail(err)
	}

	stage := Join(spec.SubPath, tempDir, runID)
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dataSchema := spec.Schema.Without(spec.PartitionBy...)
	err = l.each(ctx, keys, func(ctx context.Context, k string) error {
		data, err := columnar.Encode(spec.Name, dataSchema, frame.Sorted(files[k]))
		if err != nil {
			return errors.Wrapf(err, "encode %s", k)
		}
		return l.bucket.Put(ctx, Join(stage, k), data)
	})
	if err != nil {
		l.cleanup(stage)
		return fail(errors.Wrap(err, "stage"))
	}

	if err := l.commit(ctx, spec.SubPath, stage, keys); err != nil {
		l.cleanup(stage)
		return fail(errors.Wrap(err, "commit"))
	}

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = Join(spec.SubPath, k)
	}
	l.log.Info("table committed",
		zap.String("table", spec.Name),
		zap.String("location", l.bucket.URI(spec.SubPath)),
		zap.Int("rows", t.Len()),
		zap.Int("files", len(out)))
	return WriteResult{Rows: t.Len(), Files: out}, nil
}

func (l *Lake) commit(ctx context.Context, sub, stage string, keys []string) error {
	if err := l.bucket.Delete(ctx, Join(sub, SuccessMarker)); err != nil {
		return err
	}
	existing, err := l.bucket.List(ctx, sub)
	if err != nil {
		return err
	}
	var stale []string
	for _, k := range existing {
		if !strings.HasPrefix(k, stage+"/") {
			stale = append(stale, k)
		}
	}
	if err := l.bucket.Delete(ctx, stale...); err != nil {
		return err
	}
	err = l.each(ctx, keys, func(ctx context.Context, k string) error {
		return l.bucket.Move(ctx, Join(stage, k), Join(sub, k))
	})
	if err != nil {
		return err
	}
	return l.bucket.Put(ctx, Join(sub, SuccessMarker), nil)
}

// cleanup removes whatever is left of a staging area. It runs on a fresh
// context because the caller's may already be cancelled.
func (l *Lake) cleanup(stage string) {
	ctx := context.Background()
	keys, err := l.bucket.List(ctx, stage)
	if err == nil {
		err = l.bucket.Delete(ctx, keys...)
	}
	if err != nil {
		l.log.Warn("staging cleanup failed", zap.String("stage", l.bucket.URI(stage)), zap.Error(err))
	}
}

func (l *Lake) each(ctx context.Context, keys []string, fn func(ctx context.Context, k string) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for _, k := range keys {
		k := k
		g.Go(func() error { return fn(ctx, k) })
	}
	return g.Wait()
}

// layout groups the rows of t by partition directory and strips the
// partition columns. Keys are file paths relative to the table location.
func layout(spec schema.TableSpec, t *frame.Table) (map[string][]frame.Row, error) {
	s := spec.Schema
	_, partIdx, err := s.Project(spec.PartitionBy...)
	if err != nil {
		return nil, err
	}
	_, dataIdx, err := s.Project(s.Without(spec.PartitionBy...).Names()...)
	if err != nil {
		return nil, err
	}

	files := map[string][]frame.Row{}
	if len(partIdx) == 0 {
		// An unpartitioned table always gets one file, even when empty.
		files[filePrefix+columnar.Ext] = nil
	}
	segs := make([]string, len(partIdx))
	for p := 0; p < t.NumPartitions(); p++ {
		for _, r := range t.Partition(p) {
			for i, c := range s {
				if r[i] == nil && !c.Nullable {
					return nil, fmt.Errorf("column %s: null in non-nullable column", c.Name)
				}
			}
			for i, j := range partIdx {
				v, err := FormatPartitionValue(r[j])
				if err != nil {
					return nil, err
				}
				segs[i] = s[j].Name + "=" + v
			}
			key := Join(append(segs[:len(segs):len(segs)], filePrefix+columnar.Ext)...)
			row := make(frame.Row, len(dataIdx))
			for i, j := range dataIdx {
				row[i] = r[j]
			}
			files[key] = append(files[key], row)
		}
	}
	return files, nil
}

func sameSchema(got, want frame.Schema) error {
	if len(got) != len(want) {
		return fmt.Errorf("schema has %d columns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name || got[i].Type != want[i].Type {
			return fmt.Errorf("column %d is %s %s, want %s %s", i, got[i].Name, got[i].Type, want[i].Name, want[i].Type)
		}
	}
	return nil
}

// Committed reports whether spec's location carries a commit marker.
func (l *Lake) Committed(ctx context.Context, spec schema.TableSpec) (bool, error) {
	return l.bucket.Exists(ctx, Join(spec.SubPath, SuccessMarker))
}

// ReadTable reads a committed table back, restoring partition columns from
// the directory names. Each data file becomes one partition of the result.
// A location without a commit marker yields apperrors.ErrNotCommitted.
func (l *Lake) ReadTable(ctx context.Context, spec schema.TableSpec) (*frame.Table, error) {
	ok, err := l.Committed(ctx, spec)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", spec.Name)
	}
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotCommitted, "read %s at %s", spec.Name, l.bucket.URI(spec.SubPath))
	}

	keys, err := l.bucket.List(ctx, spec.SubPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", spec.Name)
	}
	var files []string
	for _, k := range keys {
		rel := strings.TrimPrefix(k, spec.SubPath+"/")
		if strings.HasPrefix(rel, tempDir+"/") || !strings.HasSuffix(rel, columnar.Ext) {
			continue
		}
		files = append(files, k)
	}

	dataSchema := spec.Schema.Without(spec.PartitionBy...)
	parts := make([][]frame.Row, len(files))
	err = l.each(ctx, files, func(ctx context.Context, k string) error {
		pvals, err := partitionValues(spec, strings.TrimPrefix(k, spec.SubPath+"/"))
		if err != nil {
			return errors.Wrapf(err, "file %s", k)
		}
		data, err := ReadAll(ctx, l.bucket, k)
		if err != nil {
			return err
		}
		rows, err := columnar.Decode(data, dataSchema)
		if err != nil {
			return errors.Wrapf(err, "file %s", k)
		}
		out := make([]frame.Row, len(rows))
		for i, r := range rows {
			out[i] = merge(spec.Schema, r, pvals)
		}
		parts[sort.SearchStrings(files, k)] = out
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", spec.Name)
	}
	return frame.New(spec.Schema, parts...)
}

// partitionValues parses the col=value directories of rel.
func partitionValues(spec schema.TableSpec, rel string) (map[string]any, error) {
	segs := strings.Split(rel, "/")
	if len(segs) != len(spec.PartitionBy)+1 {
		return nil, fmt.Errorf("expected %d partition directories", len(spec.PartitionBy))
	}
	out := make(map[string]any, len(spec.PartitionBy))
	for i, name := range spec.PartitionBy {
		col, val, ok := strings.Cut(segs[i], "=")
		if !ok || col != name {
			return nil, fmt.Errorf("directory %q is not %s=<value>", segs[i], name)
		}
		c, _ := spec.Schema.Lookup(name)
		v, err := ParsePartitionValue(val, c)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// merge rebuilds a full row from data columns and partition values.
func merge(s frame.Schema, data frame.Row, pvals map[string]any) frame.Row {
	out := make(frame.Row, len(s))
	d := 0
	for i, c := range s {
		if v, ok := pvals[c.Name]; ok {
			out[i] = v
			continue
		}
		out[i] = data[d]
		d++
	}
	return out
}
