package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

// MatchOptions tunes how plays are matched to songs.
type MatchOptions struct {
	// NormalizeUnicode compares titles and artist names in NFC form.
	// Output values are left untouched.
	NormalizeUnicode bool
}

// ReconcileSongplays joins play events to committed songs and artists.
//
// A play matches when its song equals a song title and its artist equals
// that song's artist name, exactly. Plays without a match are dropped and
// counted in the returned stats (LeftUnmatched). A play matching several
// songs yields one row per match; identical rows are then collapsed.
func ReconcileSongplays(ctx context.Context, x frame.Exec, plays, songs, artists *frame.Table, opt MatchOptions) (*frame.Table, frame.JoinStats, error) {
	var stats frame.JoinStats

	s, err := songs.Rename(map[string]string{"artist_id": "song_artist_id", "year": "song_year"})
	if err != nil {
		return nil, stats, errors.Wrap(err, "rename songs")
	}
	a, err := artists.Rename(map[string]string{"location": "artist_location"})
	if err != nil {
		return nil, stats, errors.Wrap(err, "rename artists")
	}
	catalog, _, err := x.InnerJoin(ctx, s, a, []frame.JoinKey{{Left: "song_artist_id", Right: "artist_id"}}, frame.JoinOptions{})
	if err != nil {
		return nil, stats, errors.Wrap(err, "join songs to artists")
	}

	var jo frame.JoinOptions
	if opt.NormalizeUnicode {
		jo.Normalize = nfc
	}
	joined, stats, err := x.InnerJoin(ctx, plays, catalog, []frame.JoinKey{
		{Left: "song", Right: "title"},
		{Left: "artist", Right: "name"},
	}, jo)
	if err != nil {
		return nil, stats, errors.Wrap(err, "join plays to songs")
	}

	js := joined.Schema()
	idx := make([]int, 0, len(schema.Songplay))
	for _, name := range []string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"} {
		idx = append(idx, js.Index(name))
	}
	out, err := x.Map(ctx, joined, schema.Songplay, func(_ *frame.Table, r frame.Row) (frame.Row, error) {
		t := r[idx[0]].(time.Time)
		row := make(frame.Row, 0, len(schema.Songplay))
		row = append(row, t, int64(t.Year()), int64(t.Month()))
		for _, i := range idx[1:] {
			row = append(row, r[i])
		}
		return row, nil
	})
	if err != nil {
		return nil, stats, errors.Wrap(err, "project songplays")
	}
	out, err = x.Distinct(ctx, out)
	if err != nil {
		return nil, stats, errors.Wrap(err, "dedup songplays")
	}
	return out, stats, nil
}

func nfc(v any) any {
	if s, ok := v.(string); ok {
		return norm.NFC.String(s)
	}
	return v
}
