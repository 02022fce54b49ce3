package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

var x = frame.Exec{Parallelism: 2, Partitions: 3}

func songRow(songID, artistID, title string, year int64, artist string) frame.Row {
	return frame.Row{songID, artistID, title, year, 210.5, nil, "NY", nil, artist}
}

// logRow builds a raw log row; fields not under test get fixed values.
func logRow(page, song, artist, userID, level string, ts float64) frame.Row {
	var s, a any
	if song != "" {
		s, a = song, artist
	}
	return frame.Row{a, "Logged In", "Ann", "F", int64(0), "Lee", 210.5, level, "Boston", "PUT", page, nil, int64(5), s, int64(200), ts, "UA", userID}
}

func TestExtractSongs_Dedup(t *testing.T) {
	t.Parallel()
	raw := frame.MustNew(schema.SongRecord.Table(),
		[]frame.Row{songRow("S1", "A1", "Song X", 2000, "Band Y")},
		[]frame.Row{songRow("S1", "A1", "Song X", 2000, "Band Y"), songRow("S2", "A1", "Other", 2001, "Band Y")},
	)
	songs, artists, err := ExtractSongs(context.Background(), x, raw)
	require.NoError(t, err)

	assert.Equal(t, schema.Song.Names(), songs.Schema().Names())
	assert.Equal(t, 2, songs.Len())
	assert.Equal(t, schema.Artist.Names(), artists.Schema().Names())
	assert.Equal(t, []frame.Row{{"A1", nil, "NY", nil, "Band Y"}}, artists.Rows())

	again, _, err := ExtractSongs(context.Background(), x, raw)
	require.NoError(t, err)
	assert.Equal(t, frame.Sorted(songs.Rows()), frame.Sorted(again.Rows()))
}

func TestFilterPlaysAndExtract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	raw := frame.MustNew(schema.LogRecord.Table(), []frame.Row{
		logRow("NextSong", "Song X", "Band Y", "10", "free", 1542242000000),
		logRow("NextSong", "Song X", "Band Y", "10", "free", 1542242000000),
		logRow("NextSong", "Song Z", "Band Y", "10", "paid", 1541903636796),
		logRow("Home", "", "", "11", "free", 1542242001000),
	})

	plays, err := FilterPlays(ctx, x, raw, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3, plays.Len())
	assert.Equal(t, schema.StartTime.Name, plays.Schema()[len(plays.Schema())-1].Name)

	users, err := ExtractUsers(ctx, x, plays)
	require.NoError(t, err)
	assert.ElementsMatch(t, []frame.Row{
		{"10", "Ann", "Lee", "F", "free"},
		{"10", "Ann", "Lee", "F", "paid"},
	}, users.Rows(), "non-play user 11 must not appear; level changes keep both rows")

	times, err := ExtractTime(ctx, x, plays)
	require.NoError(t, err)
	assert.ElementsMatch(t, []frame.Row{
		{time.UnixMilli(1542242000000).UTC(), int64(0), int64(15), int64(46), int64(11), int64(2018), int64(5)},
		{time.UnixMilli(1541903636796).UTC(), int64(2), int64(11), int64(45), int64(11), int64(2018), int64(1)},
	}, times.Rows())
}

func TestFilterPlays_NonFiniteTsIsSchemaMismatch(t *testing.T) {
	t.Parallel()
	raw := frame.MustNew(schema.LogRecord.Table(), []frame.Row{
		logRow("NextSong", "Song X", "Band Y", "10", "free", 1e300),
	})
	_, err := FilterPlays(context.Background(), x, raw, time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ts")
}

func reconcile(t *testing.T, logs []frame.Row, songs []frame.Row, opt MatchOptions) (*frame.Table, frame.JoinStats) {
	t.Helper()
	ctx := context.Background()
	plays, err := FilterPlays(ctx, x, frame.MustNew(schema.LogRecord.Table(), logs), time.UTC)
	require.NoError(t, err)
	s, a, err := ExtractSongs(ctx, x, frame.MustNew(schema.SongRecord.Table(), songs))
	require.NoError(t, err)
	out, stats, err := ReconcileSongplays(ctx, x, plays, s, a, opt)
	require.NoError(t, err)
	return out, stats
}

func TestReconcileSongplays_Match(t *testing.T) {
	t.Parallel()
	out, stats := reconcile(t,
		[]frame.Row{
			logRow("NextSong", "Song X", "Band Y", "10", "free", 1542242000000),
			logRow("NextSong", "Unknown", "Nobody", "10", "free", 1542242005000),
		},
		[]frame.Row{songRow("S1", "A1", "Song X", 2000, "Band Y")},
		MatchOptions{},
	)
	assert.Equal(t, schema.Songplay.Names(), out.Schema().Names())
	require.Equal(t, 1, out.Len())
	st := time.UnixMilli(1542242000000).UTC()
	assert.Equal(t, frame.Row{st, int64(2018), int64(11), "10", "free", "S1", "A1", int64(5), "Boston", "UA"}, out.Rows()[0])
	assert.Equal(t, 1, stats.LeftUnmatched)
	assert.Equal(t, 2, stats.LeftRows)
}

func TestReconcileSongplays_ExactMatchOnly(t *testing.T) {
	t.Parallel()
	out, stats := reconcile(t,
		[]frame.Row{logRow("NextSong", "song x", "Band Y", "10", "free", 1542242000000)},
		[]frame.Row{songRow("S1", "A1", "Song X", 2000, "Band Y")},
		MatchOptions{},
	)
	assert.Zero(t, out.Len())
	assert.Equal(t, 1, stats.LeftUnmatched)
}

func TestReconcileSongplays_FanOutKeepsDistinctSongs(t *testing.T) {
	t.Parallel()
	out, _ := reconcile(t,
		[]frame.Row{logRow("NextSong", "Song X", "Band Y", "10", "free", 1542242000000)},
		[]frame.Row{
			songRow("S1", "A1", "Song X", 2000, "Band Y"),
			songRow("S2", "A1", "Song X", 2004, "Band Y"),
		},
		MatchOptions{},
	)
	assert.Equal(t, 2, out.Len())
}

func TestReconcileSongplays_NormalizeUnicode(t *testing.T) {
	t.Parallel()
	composed := "Beyonc\u00e9"
	decomposed := "Beyonce\u0301"
	logs := []frame.Row{logRow("NextSong", "Halo", decomposed, "10", "free", 1542242000000)}
	songs := []frame.Row{songRow("S1", "A1", "Halo", 2008, composed)}

	out, _ := reconcile(t, logs, songs, MatchOptions{})
	assert.Zero(t, out.Len())

	out, _ = reconcile(t, logs, songs, MatchOptions{NormalizeUnicode: true})
	assert.Equal(t, 1, out.Len())
}

func TestReconcileSongplays_NeverExceedsPlays(t *testing.T) {
	t.Parallel()
	logs := []frame.Row{
		logRow("NextSong", "Song X", "Band Y", "10", "free", 1542242000000),
		logRow("NextSong", "Song X", "Band Y", "10", "free", 1542242000000),
		logRow("NextSong", "Song X", "Band Y", "11", "paid", 1542242009000),
	}
	out, _ := reconcile(t, logs, []frame.Row{songRow("S1", "A1", "Song X", 2000, "Band Y")}, MatchOptions{})
	assert.LessOrEqual(t, out.Len(), len(logs))
	assert.Equal(t, 2, out.Len())
}
