package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
	jsonparser "github.com/anhlhn1/udacity-data-lake/internal/parser/json"
	"github.com/anhlhn1/udacity-data-lake/internal/pipeline"
	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is the dotted config key (e.g. "catalog.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate lints c without mutating it. Callers decide what to do with
// warnings; Check turns errors into a single configuration error.
func Validate(c Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and catalog runs")
	}

	issues = append(issues, validateLocation("input_path", c.InputPath)...)
	issues = append(issues, validateLocation("output_path", c.OutputPath)...)
	if c.InputPath != "" && strings.TrimRight(c.InputPath, "/") == strings.TrimRight(c.OutputPath, "/") {
		add(SeverityWarning, "output_path", "output_path equals input_path; tables will be written next to the raw data")
	}

	if (c.Credentials.AccessKeyID == "") != (c.Credentials.SecretAccessKey == "") {
		add(SeverityError, "credentials", "access_key_id and secret_access_key must be set together")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		add(SeverityError, "timezone", "unknown time zone %q: %v", c.Timezone, err)
	}
	if _, err := jsonparser.ParsePolicy(c.MalformedPolicy); err != nil {
		add(SeverityError, "malformed_policy", "%v", err)
	}
	if _, err := pipeline.ParseStages(c.Only); err != nil {
		add(SeverityError, "only", "%v", err)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			add(SeverityError, "schedule", "invalid cron expression %q: %v", c.Schedule, err)
		}
	}

	if c.Runtime.Parallelism <= 0 {
		add(SeverityWarning, "runtime.parallelism", "parallelism=%d; GOMAXPROCS will be used", c.Runtime.Parallelism)
	}
	if c.Runtime.Partitions < 0 {
		add(SeverityError, "runtime.partitions", "partitions must not be negative")
	}

	issues = append(issues, validateCatalog(c.Catalog)...)
	issues = append(issues, validateMetrics(c.Metrics)...)

	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		add(SeverityError, "log.format", "unknown log format %q (want console or json)", c.Log.Format)
	}
	return issues
}

func validateLocation(path, loc string) []Issue {
	if strings.TrimSpace(loc) == "" {
		return []Issue{{Severity: SeverityError, Path: path, Message: path + " must not be empty"}}
	}
	scheme := "file"
	if i := strings.Index(loc, "://"); i > 0 {
		scheme = strings.ToLower(loc[:i])
	}
	for _, s := range storage.Schemes() {
		if s == scheme {
			return nil
		}
	}
	return []Issue{{
		Severity: SeverityError,
		Path:     path,
		Message:  fmt.Sprintf("unsupported scheme %q; registered: %s", scheme, strings.Join(storage.Schemes(), ", ")),
	}}
}

func validateCatalog(c Catalog) []Issue {
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	switch kind {
	case "", "none", "memory":
		return nil
	}
	var issues []Issue
	known := false
	for _, k := range catalog.Kinds() {
		if k == kind {
			known = true
		}
	}
	if !known {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "catalog.kind",
			Message:  fmt.Sprintf("unknown catalog kind %q; ensure a matching backend is registered", c.Kind),
		})
	}
	if strings.TrimSpace(c.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "catalog.dsn",
			Message:  "catalog.dsn must not be empty for catalog kind " + kind,
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
	case "pushgateway", "prometheus":
		if m.PushgatewayURL == "" {
			return []Issue{{Severity: SeverityError, Path: "metrics.pushgateway_url", Message: "pushgateway backend needs pushgateway_url"}}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			return []Issue{{Severity: SeverityWarning, Path: "metrics.datadog_addr", Message: "datadog_addr empty; DD_AGENT_HOST or the statsd default will be used"}}
		}
	default:
		return []Issue{{Severity: SeverityError, Path: "metrics.backend", Message: fmt.Sprintf("unknown metrics backend %q", m.Backend)}}
	}
	return nil
}

// Check returns an apperrors.ErrConfiguration error listing every
// error-severity issue, or nil.
func Check(issues []Issue) error {
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Wrap(apperrors.ErrConfiguration, strings.Join(msgs, "; "))
}

// Location resolves Timezone. "Local" and "" mean time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrConfiguration, "timezone %q: %v", c.Timezone, err)
	}
	return loc, nil
}
