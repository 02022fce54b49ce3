package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	counters []call
	hists    []call
	flushed  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, call{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, call{name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

// These tests swap the global backend and therefore do not run in parallel.

func TestRecordStep(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("lake", "songs", nil, 1500*time.Millisecond)
	RecordStep("lake", "logs", errors.New("boom"), time.Second)

	require.Len(t, rec.counters, 2)
	assert.Equal(t, call{StepTotal, 1, Labels{"job": "lake", "step": "songs", "status": "success"}}, rec.counters[0])
	assert.Equal(t, "failure", rec.counters[1].labels["status"])
	require.Len(t, rec.hists, 2)
	assert.Equal(t, 1.5, rec.hists[0].value)
}

func TestRecordRowAndFiles(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordRow("lake", "songplays", KindJoinMiss, 3)
	RecordRow("lake", "songplays", KindJoinMiss, 0)
	RecordFiles("lake", "songs", 2)
	RecordFiles("lake", "songs", -1)

	require.Len(t, rec.counters, 2)
	assert.Equal(t, call{RecordsTotal, 3, Labels{"job": "lake", "table": "songplays", "kind": KindJoinMiss}}, rec.counters[0])
	assert.Equal(t, call{FilesTotal, 2, Labels{"job": "lake", "table": "songs"}}, rec.counters[1])

	require.NoError(t, Flush())
	assert.Equal(t, 1, rec.flushed)
}

func TestNopBackendIsDefault(t *testing.T) {
	SetBackend(nil)
	assert.NotPanics(t, func() {
		RecordStep("lake", "songs", nil, time.Millisecond)
		RecordRow("lake", "", KindRead, 1)
	})
	assert.NoError(t, Flush())
}
