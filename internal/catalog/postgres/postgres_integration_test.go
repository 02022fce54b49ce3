//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "catalog",
				"POSTGRES_USER":     "lake",
				"POSTGRES_PASSWORD": "lake",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://lake:lake@%s:%s/catalog?sslmode=disable", host, port.Port())
}

func TestStoreAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, startPostgres(t))
	require.NoError(t, err)
	defer s.Close()

	start := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.BeginRun(ctx, catalog.Run{ID: "r1", Job: "lake", Status: catalog.RunRunning, StartedAt: start}))

	tr := catalog.NewTracker(s, "r1", zaptest.NewLogger(t))
	for _, st := range []catalog.State{catalog.Pending, catalog.Writing, catalog.Committed} {
		require.NoError(t, tr.Transition(ctx, "songplays", st, 7, "s3://lake/songplays_data/songplays_table"))
	}
	require.NoError(t, s.EndRun(ctx, "r1", catalog.RunSucceeded, start.Add(time.Second)))

	commits, err := s.Commits(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, catalog.Committed, commits[0].State)
	assert.Equal(t, int64(7), commits[0].Rows)
}
