package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
	"github.com/anhlhn1/udacity-data-lake/internal/storage"
	"github.com/anhlhn1/udacity-data-lake/internal/storage/memory"
)

func songs(rows ...frame.Row) *frame.Table {
	return frame.MustNew(schema.Song, rows)
}

func TestWriteTable_PartitionedLayoutAndReadBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()
	lake := storage.NewLake(b, 4, zaptest.NewLogger(t))

	in := songs(
		frame.Row{"S2", "A1", "Other", int64(2000), 100.0},
		frame.Row{"S1", "A1", "Song X", int64(2000), 210.5},
		frame.Row{"S3", "AR/3", "Slash", int64(1999), 5.0},
	)
	res, err := lake.WriteTable(ctx, schema.SongTable, in, "run1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, []string{
		"song_data/song_table/year=1999/artist_id=AR%2F3/part-00000.snappy.parquet",
		"song_data/song_table/year=2000/artist_id=A1/part-00000.snappy.parquet",
	}, res.Files)

	keys, err := b.List(ctx, "song_data")
	require.NoError(t, err)
	// No staging leftovers; the marker sorts first.
	assert.Equal(t, []string{"song_data/song_table/_SUCCESS", res.Files[0], res.Files[1]}, keys)

	out, err := lake.ReadTable(ctx, schema.SongTable)
	require.NoError(t, err)
	assert.Equal(t, schema.Song, out.Schema())
	assert.ElementsMatch(t, in.Rows(), out.Rows())
	assert.Equal(t, 2, out.NumPartitions())
}

func TestWriteTable_OverwriteReplacesEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()
	lake := storage.NewLake(b, 2, zaptest.NewLogger(t))

	_, err := lake.WriteTable(ctx, schema.SongTable, songs(frame.Row{"S1", "A1", "X", int64(2000), 1.0}), "r1")
	require.NoError(t, err)
	_, err = lake.WriteTable(ctx, schema.SongTable, songs(frame.Row{"S9", "A9", "Y", int64(2010), 2.0}), "r2")
	require.NoError(t, err)

	out, err := lake.ReadTable(ctx, schema.SongTable)
	require.NoError(t, err)
	assert.Equal(t, []frame.Row{{"S9", "A9", "Y", int64(2010), 2.0}}, out.Rows())
}

func TestWriteTable_ByteIdenticalAcrossRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rows := []frame.Row{
		{"u2", "Bo", nil, "M", "paid"},
		{"u1", "Ann", "Lee", "F", "free"},
	}
	var snapshots []map[string]string
	for i, order := range [][]frame.Row{rows, {rows[1], rows[0]}} {
		b := memory.New()
		lake := storage.NewLake(b, 2, zaptest.NewLogger(t))
		_, err := lake.WriteTable(ctx, schema.UserTable, frame.MustNew(schema.User, order), "run"+string(rune('a'+i)))
		require.NoError(t, err)
		keys, err := b.List(ctx, "")
		require.NoError(t, err)
		snap := map[string]string{}
		for _, k := range keys {
			data, err := storage.ReadAll(ctx, b, k)
			require.NoError(t, err)
			snap[k] = string(data)
		}
		snapshots = append(snapshots, snap)
	}
	assert.Equal(t, snapshots[0], snapshots[1])
}

func TestWriteTable_EmptyTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()
	lake := storage.NewLake(b, 2, zaptest.NewLogger(t))

	res, err := lake.WriteTable(ctx, schema.UserTable, frame.MustNew(schema.User), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_data/user_table/part-00000.snappy.parquet"}, res.Files)

	res, err = lake.WriteTable(ctx, schema.TimeTable, frame.MustNew(schema.Time), "r1")
	require.NoError(t, err)
	assert.Empty(t, res.Files)

	for _, spec := range []schema.TableSpec{schema.UserTable, schema.TimeTable} {
		out, err := lake.ReadTable(ctx, spec)
		require.NoError(t, err, spec.Name)
		assert.Zero(t, out.Len())
	}
}

func TestReadTable_NotCommitted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()
	lake := storage.NewLake(b, 2, zaptest.NewLogger(t))

	_, err := lake.ReadTable(ctx, schema.ArtistTable)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotCommitted))

	// Data without a marker is still not readable.
	require.NoError(t, b.Put(ctx, "artist_data/artist_table/part-00000.snappy.parquet", []byte("x")))
	_, err = lake.ReadTable(ctx, schema.ArtistTable)
	assert.True(t, errors.Is(err, apperrors.ErrNotCommitted))
}

func TestWriteTable_RejectsNullInRequiredColumn(t *testing.T) {
	t.Parallel()
	lake := storage.NewLake(memory.New(), 2, zaptest.NewLogger(t))
	_, err := lake.WriteTable(context.Background(), schema.SongTable, songs(frame.Row{"S1", "A1", nil, int64(2000), 1.0}), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrWriteFailure))
}

func TestWriteTable_SchemaMustMatch(t *testing.T) {
	t.Parallel()
	lake := storage.NewLake(memory.New(), 2, zaptest.NewLogger(t))
	_, err := lake.WriteTable(context.Background(), schema.UserTable, songs(), "r1")
	require.ErrorIs(t, err, apperrors.ErrWriteFailure)
}

// flaky fails Put for keys containing failOn.
type flaky struct {
	*memory.Bucket
	failOn string
}

func (f flaky) Put(ctx context.Context, key string, data []byte) error {
	if strings.Contains(key, f.failOn) {
		return errors.New("disk full")
	}
	return f.Bucket.Put(ctx, key, data)
}

func TestWriteTable_StagingFailureKeepsPreviousCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := memory.New()
	good := storage.NewLake(mem, 2, zaptest.NewLogger(t))
	_, err := good.WriteTable(ctx, schema.SongTable, songs(frame.Row{"S1", "A1", "X", int64(2000), 1.0}), "r1")
	require.NoError(t, err)

	bad := storage.NewLake(flaky{Bucket: mem, failOn: "year=2011"}, 2, zaptest.NewLogger(t))
	_, err = bad.WriteTable(ctx, schema.SongTable, songs(
		frame.Row{"S2", "A2", "Y", int64(2010), 1.0},
		frame.Row{"S3", "A3", "Z", int64(2011), 1.0},
	), "r2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrWriteFailure))

	keys, err := mem.List(ctx, "song_data/song_table/_temporary")
	require.NoError(t, err)
	assert.Empty(t, keys, "staged files must be cleaned up")

	out, err := good.ReadTable(ctx, schema.SongTable)
	require.NoError(t, err)
	assert.Equal(t, []frame.Row{{"S1", "A1", "X", int64(2000), 1.0}}, out.Rows())
}

func TestWriteTable_InvalidRunID(t *testing.T) {
	t.Parallel()
	lake := storage.NewLake(memory.New(), 2, zaptest.NewLogger(t))
	_, err := lake.WriteTable(context.Background(), schema.UserTable, frame.MustNew(schema.User), "a/b")
	require.ErrorIs(t, err, apperrors.ErrWriteFailure)
}
