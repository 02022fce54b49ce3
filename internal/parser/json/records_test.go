package json

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

const songDoc = `{"num_songs": 1, "artist_id": "A1", "artist_latitude": null, "artist_longitude": null,
 "artist_location": "", "artist_name": "Band Y", "song_id": "S1", "title": "Song X", "duration": 210.5, "year": 2000}`

func read(t *testing.T, in string, rec schema.Record, opt Options) ([]frame.Row, Stats, error) {
	t.Helper()
	return ReadRecords(context.Background(), strings.NewReader(in), "test.json", rec, opt)
}

func TestReadRecords_SingleSongObject(t *testing.T) {
	t.Parallel()
	rows, stats, err := read(t, songDoc, schema.SongRecord, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Stats{Records: 1}, stats)
	assert.Equal(t, frame.Row{"S1", "A1", "Song X", int64(2000), 210.5, nil, "", nil, "Band Y"}, rows[0])
}

func TestReadRecords_NDJSONLogCamelCase(t *testing.T) {
	t.Parallel()
	in := `{"artist":"Band Y","auth":"Logged In","firstName":"Ann","gender":"F","itemInSession":0,"lastName":"Lee","length":210.5,"level":"free","location":"NY","method":"PUT","page":"NextSong","registration":1.540919166796E12,"sessionId":5,"song":"Song X","status":200,"ts":1542242000000,"userAgent":"UA","userId":"10"}
{"artist":null,"auth":"Logged Out","firstName":null,"gender":null,"itemInSession":1,"lastName":null,"length":null,"level":"free","location":null,"method":"GET","page":"Home","registration":null,"sessionId":5,"song":null,"status":200,"ts":1542242001000,"userAgent":null,"userId":""}
`
	rows, stats, err := read(t, in, schema.LogRecord, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, stats.Records)

	tbl := frame.MustNew(schema.LogRecord.Table(), rows)
	first := tbl.Rows()[0]
	assert.Equal(t, "Ann", tbl.Get(first, "first_name"))
	assert.Equal(t, int64(5), tbl.Get(first, "session_id"))
	assert.Equal(t, float64(1542242000000), tbl.Get(first, "ts"))
	assert.Equal(t, "10", tbl.Get(first, "user_id"))
	assert.Equal(t, "", tbl.Get(tbl.Rows()[1], "user_id"))
	assert.Nil(t, tbl.Get(tbl.Rows()[1], "user_agent"))
}

func TestReadRecords_ArrayAndEnvelope(t *testing.T) {
	t.Parallel()
	arr := "[" + songDoc + "," + songDoc + "]"
	rows, _, err := read(t, arr, schema.SongRecord, Options{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	env := `{"records": [` + songDoc + `], "meta": {"n": 1}}`
	rows, _, err = read(t, env, schema.SongRecord, Options{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReadRecords_SchemaMismatchFailsBatch(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(songDoc, `"year": 2000`, `"year": "2000"`, 1)
	_, _, err := read(t, songDoc+"\n"+bad, schema.SongRecord, Options{Policy: PolicyFail})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrSchemaMismatch))

	var mm *apperrors.SchemaMismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "test.json", mm.Source)
	assert.Equal(t, 2, mm.Record)
	assert.Equal(t, "year", mm.Field)
}

func TestReadRecords_MissingRequiredField(t *testing.T) {
	t.Parallel()
	_, _, err := read(t, `{"song_id":"S1"}`, schema.SongRecord, Options{})
	require.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
}

func TestReadRecords_SkipPolicy(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(songDoc, `"duration": 210.5`, `"duration": true`, 1)
	var skipped []string
	rows, stats, err := read(t, songDoc+"\n"+bad+"\n[1]", schema.SongRecord, Options{
		Policy: PolicySkip,
		OnSkip: func(e *apperrors.SchemaMismatchError) { skipped = append(skipped, e.Error()) },
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, Stats{Records: 1, Skipped: 2}, stats)
	require.Len(t, skipped, 2)
	assert.Contains(t, skipped[0], `"duration"`)
}

func TestReadRecords_SyntaxErrorIsFatalEvenWhenSkipping(t *testing.T) {
	t.Parallel()
	_, _, err := read(t, songDoc+"\n{not json", schema.SongRecord, Options{Policy: PolicySkip})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrSchemaMismatch))
}

func TestReadRecords_Empty(t *testing.T) {
	t.Parallel()
	rows, stats, err := read(t, "  \n", schema.SongRecord, Options{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, stats.Records)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Policy{"": PolicyFail, "FAIL": PolicyFail, " skip ": PolicySkip} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("ignore")
	require.Error(t, err)
}
