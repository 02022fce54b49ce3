package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhlhn1/udacity-data-lake/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	_, err := NewBackend("lake", "")
	require.Error(t, err)

	b, err := NewBackend("", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "songlake", b.jobName)

	b, err = NewBackend("nightly", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "nightly", b.jobName)
}

func TestIncCounterRoutesByName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("lake", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "songs", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"table": "songplays", "kind": metrics.KindJoinMiss})
	b.IncCounter(metrics.FilesTotal, 3, metrics.Labels{"table": "songs"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"x": "y"})

	assert.Equal(t, 2.0, counterValue(t, b.stepCounter.WithLabelValues("songs", "success")))
	assert.Equal(t, 5.0, counterValue(t, b.recordCounter.WithLabelValues("songplays", metrics.KindJoinMiss)))
	assert.Equal(t, 3.0, counterValue(t, b.fileCounter.WithLabelValues("songs")))
	assert.Equal(t, 0.0, counterValue(t, b.fileCounter.WithLabelValues("users")))
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("lake", "http://example.com")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "logs", "status": "success"})
	b.ObserveHistogram("other", 9, metrics.Labels{"step": "logs", "status": "success"})

	m := &dto.Metric{}
	obs, ok := b.stepDuration.WithLabelValues("logs", "success").(prometheus.Metric)
	require.True(t, ok)
	require.NoError(t, obs.Write(m))
	assert.Equal(t, uint64(1), m.GetSummary().GetSampleCount())
	assert.Equal(t, 0.25, m.GetSummary().GetSampleSum())
}

func TestFlushPushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"table": "users", "kind": metrics.KindRowsWritten})

	require.NoError(t, b.Flush())
	assert.Equal(t, "/metrics/job/nightly", gotPath)
	assert.True(t, strings.Contains(gotBody, metrics.RecordsTotal), "pushed body should carry the record counter")
}

func TestFlushGatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL)
	require.NoError(t, err)
	require.Error(t, b.Flush())
}
