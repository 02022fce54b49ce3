package pipeline

import (
	"time"

	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
)

// TableReport is the outcome of one table in a run.
type TableReport struct {
	Name     string        `json:"name" yaml:"name"`
	State    catalog.State `json:"state" yaml:"state"`
	Rows     int           `json:"rows" yaml:"rows"`
	Files    int           `json:"files" yaml:"files"`
	Location string        `json:"location,omitempty" yaml:"location,omitempty"`
	Err      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report summarises one run.
type Report struct {
	RunID       string         `json:"run_id" yaml:"run_id"`
	Job         string         `json:"job" yaml:"job"`
	Started     time.Time      `json:"started" yaml:"started"`
	Duration    time.Duration  `json:"duration" yaml:"duration"`
	InputFiles  int            `json:"input_files" yaml:"input_files"`
	SongRecords int            `json:"song_records" yaml:"song_records"`
	LogRecords  int            `json:"log_records" yaml:"log_records"`
	Plays       int            `json:"plays" yaml:"plays"`
	Skipped     int            `json:"skipped" yaml:"skipped"`
	JoinMisses  int            `json:"join_misses" yaml:"join_misses"`
	Tables      []*TableReport `json:"tables" yaml:"tables"`
}

// table returns the entry for name, creating it in first-seen order.
func (r *Report) table(name string) *TableReport {
	for _, t := range r.Tables {
		if t.Name == name {
			return t
		}
	}
	t := &TableReport{Name: name}
	r.Tables = append(r.Tables, t)
	return t
}

// Table returns the entry for name, or nil.
func (r *Report) Table(name string) *TableReport {
	for _, t := range r.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Committed lists the tables committed by the run.
func (r *Report) Committed() []string { return r.names(catalog.Committed) }

// Failed lists the tables that failed.
func (r *Report) Failed() []string { return r.names(catalog.Failed) }

func (r *Report) names(s catalog.State) []string {
	var out []string
	for _, t := range r.Tables {
		if t.State == s {
			out = append(out, t.Name)
		}
	}
	return out
}
