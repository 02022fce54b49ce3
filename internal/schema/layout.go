package schema

import (
	"fmt"

	"github.com/anhlhn1/udacity-data-lake/internal/frame"
)

// Input path patterns, relative to the input root.
const (
	SongDataPattern = "song_data/*/*/*/*"
	LogDataPattern  = "log_data/*/*/*"
)

// TableSpec ties an output table to its location and partitioning.
type TableSpec struct {
	Name        string
	Schema      frame.Schema
	SubPath     string
	PartitionBy []string
}

// Output tables in the order a full run produces them.
var (
	SongTable = TableSpec{
		Name:        "songs",
		Schema:      Song,
		SubPath:     "song_data/song_table",
		PartitionBy: []string{"year", "artist_id"},
	}
	ArtistTable = TableSpec{
		Name:    "artists",
		Schema:  Artist,
		SubPath: "artist_data/artist_table",
	}
	UserTable = TableSpec{
		Name:    "users",
		Schema:  User,
		SubPath: "user_data/user_table",
	}
	TimeTable = TableSpec{
		Name:        "time",
		Schema:      Time,
		SubPath:     "time_data/time_table",
		PartitionBy: []string{"year", "month"},
	}
	SongplayTable = TableSpec{
		Name:        "songplays",
		Schema:      Songplay,
		SubPath:     "songplays_data/songplays_table",
		PartitionBy: []string{"year", "month"},
	}
)

// Tables lists every output table.
func Tables() []TableSpec {
	return []TableSpec{SongTable, ArtistTable, UserTable, TimeTable, SongplayTable}
}

// Validate checks that every partition column exists in the schema.
func (s TableSpec) Validate() error {
	for _, c := range s.PartitionBy {
		if s.Schema.Index(c) < 0 {
			return fmt.Errorf("table %s: partition column %q not in schema", s.Name, c)
		}
	}
	return nil
}
