// Package schema declares the fixed shapes of the raw input records and of
// the analytics tables produced from them, plus the output layout.
package schema

import "github.com/anhlhn1/udacity-data-lake/internal/frame"

// Field binds a logical column to the key it is read from in the raw JSON.
type Field struct {
	frame.Column
	Key string
}

// Record is the declared read schema of a raw JSON record stream.
type Record struct {
	Name   string
	Fields []Field
}

// Table returns the frame schema rows read under r will have.
func (r Record) Table() frame.Schema {
	out := make(frame.Schema, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Column
	}
	return out
}

func field(name, key string, t frame.Type, nullable bool) Field {
	return Field{Column: frame.Column{Name: name, Type: t, Nullable: nullable}, Key: key}
}

// SongRecord is one song-metadata document. Keys not listed (num_songs, …)
// are ignored.
var SongRecord = Record{
	Name: "song",
	Fields: []Field{
		field("song_id", "song_id", frame.String, false),
		field("artist_id", "artist_id", frame.String, false),
		field("title", "title", frame.String, false),
		field("year", "year", frame.Int64, false),
		field("duration", "duration", frame.Float64, false),
		field("artist_latitude", "artist_latitude", frame.Float64, true),
		field("artist_location", "artist_location", frame.String, true),
		field("artist_longitude", "artist_longitude", frame.Float64, true),
		field("artist_name", "artist_name", frame.String, false),
	},
}

// LogRecord is one user-activity event. The raw data uses camelCase keys.
var LogRecord = Record{
	Name: "log",
	Fields: []Field{
		field("artist", "artist", frame.String, true),
		field("auth", "auth", frame.String, false),
		field("first_name", "firstName", frame.String, true),
		field("gender", "gender", frame.String, true),
		field("item_in_session", "itemInSession", frame.Int64, false),
		field("last_name", "lastName", frame.String, true),
		field("length", "length", frame.Float64, true),
		field("level", "level", frame.String, false),
		field("location", "location", frame.String, true),
		field("method", "method", frame.String, false),
		field("page", "page", frame.String, false),
		field("registration", "registration", frame.Float64, true),
		field("session_id", "sessionId", frame.Int64, false),
		field("song", "song", frame.String, true),
		field("status", "status", frame.Int64, false),
		field("ts", "ts", frame.Float64, false),
		field("user_agent", "userAgent", frame.String, true),
		field("user_id", "userId", frame.String, false),
	},
}

// StartTime is the column derived from ts on play events.
var StartTime = frame.Column{Name: "start_time", Type: frame.Timestamp}

// Output table schemas, column order fixed.
var (
	Song = frame.Schema{
		{Name: "song_id", Type: frame.String},
		{Name: "artist_id", Type: frame.String},
		{Name: "title", Type: frame.String},
		{Name: "year", Type: frame.Int64},
		{Name: "duration", Type: frame.Float64},
	}

	Artist = frame.Schema{
		{Name: "artist_id", Type: frame.String},
		{Name: "latitude", Type: frame.Float64, Nullable: true},
		{Name: "location", Type: frame.String, Nullable: true},
		{Name: "longitude", Type: frame.Float64, Nullable: true},
		{Name: "name", Type: frame.String},
	}

	User = frame.Schema{
		{Name: "user_id", Type: frame.String},
		{Name: "first_name", Type: frame.String, Nullable: true},
		{Name: "last_name", Type: frame.String, Nullable: true},
		{Name: "gender", Type: frame.String, Nullable: true},
		{Name: "level", Type: frame.String},
	}

	Time = frame.Schema{
		StartTime,
		{Name: "hour", Type: frame.Int64},
		{Name: "day", Type: frame.Int64},
		{Name: "week", Type: frame.Int64},
		{Name: "month", Type: frame.Int64},
		{Name: "year", Type: frame.Int64},
		{Name: "weekday", Type: frame.Int64},
	}

	Songplay = frame.Schema{
		StartTime,
		{Name: "year", Type: frame.Int64},
		{Name: "month", Type: frame.Int64},
		{Name: "user_id", Type: frame.String},
		{Name: "level", Type: frame.String},
		{Name: "song_id", Type: frame.String},
		{Name: "artist_id", Type: frame.String},
		{Name: "session_id", Type: frame.Int64},
		{Name: "location", Type: frame.String, Nullable: true},
		{Name: "user_agent", Type: frame.String, Nullable: true},
	}
)
