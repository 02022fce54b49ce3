package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var transitions = map[State][]State{
	"":      {Pending},
	Pending: {Writing, Failed},
	Writing: {Committed, Failed},
}

// Tracker drives the per-table state machine of one run against a Store.
// It is safe for concurrent use by the stages of a run.
type Tracker struct {
	store Store
	runID string
	log   *zap.Logger
	now   func() time.Time

	mu     sync.Mutex
	states map[string]State
}

// NewTracker returns a Tracker for runID.
func NewTracker(store Store, runID string, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{store: store, runID: runID, log: log, now: time.Now, states: map[string]State{}}
}

// Transition moves table to state and persists it. Illegal transitions are
// rejected without touching the store.
func (t *Tracker) Transition(ctx context.Context, table string, to State, rows int64, detail string) error {
	t.mu.Lock()
	from := t.states[table]
	if !allowed(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("catalog: table %s: illegal transition %q -> %q", table, from, to)
	}
	t.states[table] = to
	t.mu.Unlock()

	err := t.store.RecordTable(ctx, TableCommit{
		RunID:     t.runID,
		Table:     table,
		State:     to,
		Rows:      rows,
		Detail:    detail,
		UpdatedAt: t.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("catalog: record %s %s: %w", table, to, err)
	}
	t.log.Debug("table state", zap.String("table", table), zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

// State returns the last state recorded for table ("" if none).
func (t *Tracker) State(table string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[table]
}

// Unfinished lists tables not yet in a terminal state.
func (t *Tracker) Unfinished() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for name, s := range t.states {
		if !s.Terminal() {
			out = append(out, name)
		}
	}
	return out
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
