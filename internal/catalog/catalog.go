// Package catalog records what each run wrote: one row per run and one row
// per table write, carrying the write state machine
//
//	pending -> writing -> committed
//	                   \-> failed
//
// (pending may also fail directly when a stage dies before writing). Stores
// only persist; Tracker enforces the transitions.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// State of one table write.
type State string

const (
	Pending   State = "pending"
	Writing   State = "writing"
	Committed State = "committed"
	Failed    State = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool { return s == Committed || s == Failed }

// Run status values.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID        string
	Job       string
	Status    string
	StartedAt time.Time
	EndedAt   time.Time // zero while running
}

// TableCommit is the latest state of one table write within a run.
type TableCommit struct {
	RunID     string
	Table     string
	State     State
	Rows      int64
	Detail    string // location when committed, error text when failed
	UpdatedAt time.Time
}

// Store persists runs and table commits.
type Store interface {
	BeginRun(ctx context.Context, run Run) error
	// RecordTable upserts the commit row keyed by (RunID, Table).
	RecordTable(ctx context.Context, c TableCommit) error
	EndRun(ctx context.Context, runID, status string, endedAt time.Time) error
	// Commits lists the table rows of runID ordered by table name.
	Commits(ctx context.Context, runID string) ([]TableCommit, error)
	Close() error
}

// Factory opens a Store from a DSN.
type Factory func(ctx context.Context, dsn string) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[strings.ToLower(kind)] = f
}

// Kinds lists registered store kinds.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open returns the store for kind. "" and "none" yield an in-memory store
// that lives as long as the process.
func Open(ctx context.Context, kind, dsn string) (Store, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || kind == "none" || kind == "memory" {
		return NewMemory(), nil
	}
	regMu.RLock()
	f, ok := factories[kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: no store registered for kind %q", kind)
	}
	return f(ctx, dsn)
}
