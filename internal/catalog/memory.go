package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a Store kept in process memory.
type Memory struct {
	mu      sync.Mutex
	runs    map[string]Run
	commits map[string]map[string]TableCommit
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{runs: map[string]Run{}, commits: map[string]map[string]TableCommit{}}
}

func (m *Memory) BeginRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.runs[run.ID]; dup {
		return fmt.Errorf("catalog: run %s already exists", run.ID)
	}
	m.runs[run.ID] = run
	m.commits[run.ID] = map[string]TableCommit{}
	return nil
}

func (m *Memory) RecordTable(_ context.Context, c TableCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tables, ok := m.commits[c.RunID]
	if !ok {
		return fmt.Errorf("catalog: unknown run %s", c.RunID)
	}
	tables[c.Table] = c
	return nil
}

func (m *Memory) EndRun(_ context.Context, runID, status string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("catalog: unknown run %s", runID)
	}
	run.Status, run.EndedAt = status, endedAt
	m.runs[runID] = run
	return nil
}

func (m *Memory) Commits(_ context.Context, runID string) ([]TableCommit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TableCommit, 0, len(m.commits[runID]))
	for _, c := range m.commits[runID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}

// Run returns the stored run record.
func (m *Memory) Run(runID string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	return r, ok
}

func (m *Memory) Close() error { return nil }
