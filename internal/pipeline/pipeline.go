// Package pipeline turns raw song metadata and activity logs into the
// analytics tables of the lake.
//
// A run has two stages. The songs stage builds the Song and Artist tables;
// the logs stage builds User and Time and then Songplay. Both stages start
// together. Songplay waits for the songs stage and reads Song and Artist
// back from their committed locations, so it only ever joins against data
// that reached storage.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/metrics"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

// Stage names a selectable part of a run.
type Stage string

const (
	StageSongs Stage = "songs"
	StageLogs  Stage = "logs"
)

// ParseStages parses a comma separated stage list. Empty means every stage.
func ParseStages(s string) ([]Stage, error) {
	if strings.TrimSpace(s) == "" {
		return []Stage{StageSongs, StageLogs}, nil
	}
	var out []Stage
	seen := map[Stage]bool{}
	for _, part := range strings.Split(s, ",") {
		st := Stage(strings.ToLower(strings.TrimSpace(part)))
		switch st {
		case StageSongs, StageLogs:
		default:
			return nil, fmt.Errorf("unknown stage %q (want songs or logs)", part)
		}
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out, nil
}

// Options configures one Pipeline.
type Options struct {
	Job string
	// Location is the zone start_time is expressed in. Nil means time.Local.
	Location *time.Location
	Match    MatchOptions
	// Stages to run; empty means all.
	Stages []Stage
}

// Pipeline runs the lake job. One Pipeline may Run many times; every run
// fully overwrites the tables it produces.
type Pipeline struct {
	engine  Engine
	exec    frame.Exec
	catalog catalog.Store
	log     *zap.Logger
	opt     Options
}

// New returns a Pipeline. A nil store records into a throwaway memory store.
func New(engine Engine, exec frame.Exec, store catalog.Store, log *zap.Logger, opt Options) *Pipeline {
	if store == nil {
		store = catalog.NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if opt.Job == "" {
		opt.Job = "songlake"
	}
	if len(opt.Stages) == 0 {
		opt.Stages = []Stage{StageSongs, StageLogs}
	}
	return &Pipeline{engine: engine, exec: exec, catalog: store, log: log, opt: opt}
}

func (p *Pipeline) selected(s Stage) bool {
	for _, st := range p.opt.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// run carries the state of one execution.
type run struct {
	*Pipeline
	id      string
	log     *zap.Logger
	tracker *catalog.Tracker
	report  *Report
	mu      sync.Mutex
}

// Run executes the selected stages once. The returned Report is never nil;
// the error joins every stage failure.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	r := &run{
		Pipeline: p,
		id:       uuid.NewString(),
	}
	r.log = p.log.With(zap.String("run_id", r.id), zap.String("job", p.opt.Job))
	r.tracker = catalog.NewTracker(p.catalog, r.id, r.log)
	r.report = &Report{RunID: r.id, Job: p.opt.Job, Started: time.Now()}

	if err := p.catalog.BeginRun(ctx, catalog.Run{ID: r.id, Job: p.opt.Job, Status: catalog.RunRunning, StartedAt: r.report.Started.UTC()}); err != nil {
		return r.report, errors.Wrap(err, "begin run")
	}
	r.log.Info("run started", zap.Any("stages", p.opt.Stages))

	var tables []schema.TableSpec
	if p.selected(StageSongs) {
		tables = append(tables, schema.SongTable, schema.ArtistTable)
	}
	if p.selected(StageLogs) {
		tables = append(tables, schema.UserTable, schema.TimeTable, schema.SongplayTable)
	}
	for _, spec := range tables {
		if err := r.tracker.Transition(ctx, spec.Name, catalog.Pending, 0, ""); err != nil {
			return r.report, err
		}
		r.report.table(spec.Name).State = catalog.Pending
	}

	var (
		wg        sync.WaitGroup
		songsErr  error
		logsErr   error
		songsDone = make(chan struct{})
	)
	if p.selected(StageSongs) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(songsDone)
			songsErr = r.step(ctx, StageSongs, r.songs)
		}()
	} else {
		close(songsDone)
	}
	if p.selected(StageLogs) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logsErr = r.step(ctx, StageLogs, func(ctx context.Context) error {
				return r.logs(ctx, songsDone, &songsErr)
			})
		}()
	}
	wg.Wait()

	err := stderrors.Join(songsErr, logsErr)
	r.finish(err)
	return r.report, err
}

// step times a stage and fails its still-open tables if it errors.
func (r *run) step(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	metrics.RecordStep(r.opt.Job, string(stage), err, time.Since(start))
	if err != nil {
		r.log.Error("stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return errors.Wrapf(err, "%s stage", stage)
	}
	r.log.Info("stage finished", zap.String("stage", string(stage)), zap.Duration("took", time.Since(start)))
	return nil
}

func (r *run) songs(ctx context.Context) (err error) {
	defer func() { r.failOpen(ctx, err, schema.SongTable, schema.ArtistTable) }()

	raw, stats, err := r.engine.ReadRecords(ctx, schema.SongDataPattern, schema.SongRecord, false)
	if err != nil {
		return err
	}
	r.recordRead(schema.SongRecord.Name, stats)

	songs, artists, err := ExtractSongs(ctx, r.exec, raw)
	if err != nil {
		return err
	}
	if err := r.write(ctx, schema.SongTable, songs); err != nil {
		return err
	}
	return r.write(ctx, schema.ArtistTable, artists)
}

func (r *run) logs(ctx context.Context, songsDone <-chan struct{}, songsErr *error) (err error) {
	defer func() { r.failOpen(ctx, err, schema.UserTable, schema.TimeTable, schema.SongplayTable) }()

	raw, stats, err := r.engine.ReadRecords(ctx, schema.LogDataPattern, schema.LogRecord, true)
	if err != nil {
		return err
	}
	r.recordRead(schema.LogRecord.Name, stats)

	plays, err := FilterPlays(ctx, r.exec, raw, r.opt.Location)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.report.Plays = plays.Len()
	r.mu.Unlock()

	users, err := ExtractUsers(ctx, r.exec, plays)
	if err != nil {
		return err
	}
	if err := r.write(ctx, schema.UserTable, users); err != nil {
		return err
	}
	times, err := ExtractTime(ctx, r.exec, plays)
	if err != nil {
		return err
	}
	if err := r.write(ctx, schema.TimeTable, times); err != nil {
		return err
	}

	// Barrier: songs and artists must be committed before they are joined.
	select {
	case <-songsDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if *songsErr != nil {
		return errors.New("songplays skipped: songs stage did not commit")
	}
	songs, err := r.engine.ReadTable(ctx, schema.SongTable)
	if err != nil {
		return err
	}
	artists, err := r.engine.ReadTable(ctx, schema.ArtistTable)
	if err != nil {
		return err
	}

	songplays, stats2, err := ReconcileSongplays(ctx, r.exec, plays, songs, artists, r.opt.Match)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.report.JoinMisses = stats2.LeftUnmatched
	r.mu.Unlock()
	metrics.RecordRow(r.opt.Job, schema.SongplayTable.Name, metrics.KindJoinMiss, int64(stats2.LeftUnmatched))
	if stats2.LeftUnmatched > 0 {
		r.log.Warn("plays without a matching song",
			zap.Int("unmatched", stats2.LeftUnmatched),
			zap.Int("plays", stats2.LeftRows))
	}
	return r.write(ctx, schema.SongplayTable, songplays)
}

// write moves one table through writing to committed or failed.
func (r *run) write(ctx context.Context, spec schema.TableSpec, t *frame.Table) error {
	if err := r.tracker.Transition(ctx, spec.Name, catalog.Writing, 0, ""); err != nil {
		return err
	}
	r.setState(spec.Name, catalog.Writing, nil)

	res, err := r.engine.WriteTable(ctx, spec, t, r.id)
	if err != nil {
		r.setState(spec.Name, catalog.Failed, err)
		if terr := r.tracker.Transition(context.WithoutCancel(ctx), spec.Name, catalog.Failed, 0, err.Error()); terr != nil {
			r.log.Warn("catalog update failed", zap.String("table", spec.Name), zap.Error(terr))
		}
		return err
	}
	if err := r.tracker.Transition(ctx, spec.Name, catalog.Committed, int64(res.Rows), r.engine.Location(spec)); err != nil {
		return err
	}
	r.mu.Lock()
	tr := r.report.table(spec.Name)
	tr.State, tr.Rows, tr.Files, tr.Location = catalog.Committed, res.Rows, len(res.Files), r.engine.Location(spec)
	r.mu.Unlock()

	metrics.RecordRow(r.opt.Job, spec.Name, metrics.KindRowsWritten, int64(res.Rows))
	metrics.RecordFiles(r.opt.Job, spec.Name, int64(len(res.Files)))
	return nil
}

// failOpen marks tables of a failed stage that never reached a terminal
// state.
func (r *run) failOpen(ctx context.Context, err error, specs ...schema.TableSpec) {
	if err == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, spec := range specs {
		if r.tracker.State(spec.Name).Terminal() {
			continue
		}
		r.setState(spec.Name, catalog.Failed, err)
		if terr := r.tracker.Transition(ctx, spec.Name, catalog.Failed, 0, err.Error()); terr != nil {
			r.log.Warn("catalog update failed", zap.String("table", spec.Name), zap.Error(terr))
		}
	}
}

func (r *run) setState(table string, s catalog.State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr := r.report.table(table)
	tr.State = s
	if err != nil {
		tr.Err = err.Error()
	}
}

func (r *run) recordRead(name string, st ReadStats) {
	r.mu.Lock()
	switch name {
	case schema.SongRecord.Name:
		r.report.SongRecords = st.Records
	case schema.LogRecord.Name:
		r.report.LogRecords = st.Records
	}
	r.report.InputFiles += st.Files
	r.report.Skipped += st.Skipped
	r.mu.Unlock()

	metrics.RecordRow(r.opt.Job, name, metrics.KindRead, int64(st.Records))
	metrics.RecordRow(r.opt.Job, name, metrics.KindSkipped, int64(st.Skipped))
	r.log.Info("input read",
		zap.String("record", name),
		zap.Int("files", st.Files),
		zap.Int("records", st.Records),
		zap.Int("skipped", st.Skipped))
}

func (r *run) finish(err error) {
	r.report.Duration = time.Since(r.report.Started)
	status := catalog.RunSucceeded
	if err != nil {
		status = catalog.RunFailed
	}
	if cerr := r.catalog.EndRun(context.Background(), r.id, status, time.Now().UTC()); cerr != nil {
		r.log.Warn("catalog end run failed", zap.Error(cerr))
	}
	r.log.Info("run finished",
		zap.String("status", status),
		zap.Duration("took", r.report.Duration),
		zap.Strings("committed", r.report.Committed()),
		zap.Strings("failed", r.report.Failed()),
		zap.Int("join_misses", r.report.JoinMisses),
		zap.Int("skipped", r.report.Skipped))
}
