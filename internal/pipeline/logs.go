package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

// PlayPage is the page value of a song-play event.
const PlayPage = "NextSong"

// FilterPlays keeps the song-play events of raw log records and appends their
// start_time, derived from ts in loc.
func FilterPlays(ctx context.Context, x frame.Exec, raw *frame.Table, loc *time.Location) (*frame.Table, error) {
	page := raw.Schema().Index("page")
	ts := raw.Schema().Index("ts")
	if page < 0 || ts < 0 {
		return nil, fmt.Errorf("log table lacks page or ts column")
	}
	plays, err := x.Filter(ctx, raw, func(_ *frame.Table, r frame.Row) bool {
		return r[page] == PlayPage
	})
	if err != nil {
		return nil, errors.Wrap(err, "filter plays")
	}
	plays, err = x.WithColumn(ctx, plays, schema.StartTime, func(_ *frame.Table, r frame.Row) (any, error) {
		v, _ := r[ts].(float64)
		t, ok := StartTime(v, loc)
		if !ok {
			return nil, &apperrors.SchemaMismatchError{Source: "log_data", Field: "ts", Reason: fmt.Sprintf("%v is not a finite epoch-millisecond value", r[ts])}
		}
		return t, nil
	})
	return plays, errors.Wrap(err, "derive start_time")
}

// ExtractUsers derives the deduplicated User table from play events. A user
// whose level changed appears once per distinct level.
func ExtractUsers(ctx context.Context, x frame.Exec, plays *frame.Table) (*frame.Table, error) {
	users, err := x.Select(ctx, plays, schema.User.Names()...)
	if err != nil {
		return nil, errors.Wrap(err, "project users")
	}
	users, err = x.Distinct(ctx, users)
	return users, errors.Wrap(err, "dedup users")
}

// ExtractTime derives the Time table from play events, deduplicated on the
// full row.
func ExtractTime(ctx context.Context, x frame.Exec, plays *frame.Table) (*frame.Table, error) {
	st := plays.Schema().Index(schema.StartTime.Name)
	if st < 0 {
		return nil, fmt.Errorf("play table lacks %s", schema.StartTime.Name)
	}
	times, err := x.Map(ctx, plays, schema.Time, func(_ *frame.Table, r frame.Row) (frame.Row, error) {
		t := r[st].(time.Time)
		p := Parts(t)
		return frame.Row{t, p.Hour, p.Day, p.Week, p.Month, p.Year, p.Weekday}, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "derive time parts")
	}
	times, err = x.Distinct(ctx, times)
	return times, errors.Wrap(err, "dedup time")
}
