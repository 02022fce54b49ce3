package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/schema"
)

// ExtractSongs derives the deduplicated Song and Artist tables from raw song
// records. Artists are not checked against songs.
func ExtractSongs(ctx context.Context, x frame.Exec, raw *frame.Table) (songs, artists *frame.Table, err error) {
	songs, err = x.Select(ctx, raw, schema.Song.Names()...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "project songs")
	}
	if songs, err = x.Distinct(ctx, songs); err != nil {
		return nil, nil, errors.Wrap(err, "dedup songs")
	}

	artists, err = x.Select(ctx, raw, "artist_id", "artist_latitude", "artist_location", "artist_longitude", "artist_name")
	if err != nil {
		return nil, nil, errors.Wrap(err, "project artists")
	}
	artists, err = artists.Rename(map[string]string{
		"artist_latitude":  "latitude",
		"artist_location":  "location",
		"artist_longitude": "longitude",
		"artist_name":      "name",
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "rename artists")
	}
	if artists, err = x.Distinct(ctx, artists); err != nil {
		return nil, nil, errors.Wrap(err, "dedup artists")
	}
	return songs, artists, nil
}
