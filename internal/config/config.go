// Package config defines the configuration model of the lake job.
//
// Values are loaded by Load from, in priority order: command line flags,
// SONGLAKE_* environment variables and an optional config file (yaml, toml or
// json, picked by extension). Field names mirror the keys used in that file.
//
// Example (yaml, trimmed):
//
//	input_path: s3a://udacity-dend/
//	output_path: s3a://my-lake/
//	timezone: UTC
//	catalog:
//	  kind: sqlite
//	  dsn: file:lake.db
package config

import (
	"runtime"

	"github.com/anhlhn1/udacity-data-lake/internal/logging"
)

// Config is the full job configuration.
type Config struct {
	// Job labels metrics, logs and catalog runs.
	Job string `mapstructure:"job" yaml:"job"`

	// InputPath is the root holding song_data/ and log_data/. A plain path
	// is a local directory; s3://, s3a:// and s3n:// URIs address a bucket.
	InputPath string `mapstructure:"input_path" yaml:"input_path"`
	// OutputPath is the lake root the tables are written under.
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`

	Credentials Credentials `mapstructure:"credentials" yaml:"credentials"`
	Region      string      `mapstructure:"region" yaml:"region"`
	Endpoint    string      `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	PathStyle   bool        `mapstructure:"path_style" yaml:"path_style"`

	// Timezone is the IANA zone start_time is derived in. "Local" means the
	// process zone.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	// MalformedPolicy is "fail" or "skip".
	MalformedPolicy string `mapstructure:"malformed_policy" yaml:"malformed_policy"`
	// Only restricts a run to a comma separated subset of stages.
	Only string `mapstructure:"only" yaml:"only,omitempty"`
	// Schedule is the cron expression used by the schedule command.
	Schedule string `mapstructure:"schedule" yaml:"schedule,omitempty"`

	Match   Match   `mapstructure:"match" yaml:"match"`
	Runtime Runtime `mapstructure:"runtime" yaml:"runtime"`
	Catalog Catalog `mapstructure:"catalog" yaml:"catalog"`
	Metrics Metrics `mapstructure:"metrics" yaml:"metrics"`
	Log     Log     `mapstructure:"log" yaml:"log"`
}

// Credentials are the static S3 credentials. Empty values fall back to the
// AWS SDK chain.
type Credentials struct {
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token,omitempty"`
}

type Match struct {
	NormalizeUnicode bool `mapstructure:"normalize_unicode" yaml:"normalize_unicode"`
}

// Runtime controls operator concurrency.
type Runtime struct {
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
	Partitions  int `mapstructure:"partitions" yaml:"partitions"`
}

// Catalog selects where run and table states are recorded.
type Catalog struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	DSN  string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string   `mapstructure:"backend" yaml:"backend"`
	PushgatewayURL string   `mapstructure:"pushgateway_url" yaml:"pushgateway_url,omitempty"`
	DatadogAddr    string   `mapstructure:"datadog_addr" yaml:"datadog_addr,omitempty"`
	Namespace      string   `mapstructure:"namespace" yaml:"namespace,omitempty"`
	Tags           []string `mapstructure:"tags" yaml:"tags,omitempty"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing overrides a key.
func Default() Config {
	return Config{
		Job:             "songlake",
		Region:          "us-west-2",
		Timezone:        "Local",
		MalformedPolicy: "fail",
		Runtime: Runtime{
			Parallelism: runtime.GOMAXPROCS(0),
			Partitions:  8,
		},
		Catalog: Catalog{Kind: "none"},
		Metrics: Metrics{Backend: "none", Namespace: "songlake."},
		Log:     Log{Level: "info", Format: "console"},
	}
}

// Redacted returns a copy safe to print: credentials are masked and
// connection strings lose their passwords.
func (c Config) Redacted() Config {
	out := c
	out.Credentials = Credentials{
		AccessKeyID:     logging.Secret(c.Credentials.AccessKeyID),
		SecretAccessKey: logging.Secret(c.Credentials.SecretAccessKey),
		SessionToken:    logging.Secret(c.Credentials.SessionToken),
	}
	out.InputPath = logging.Redact(c.InputPath)
	out.OutputPath = logging.Redact(c.OutputPath)
	out.Endpoint = logging.Redact(c.Endpoint)
	out.Catalog.DSN = logging.Redact(c.Catalog.DSN)
	out.Metrics.PushgatewayURL = logging.Redact(c.Metrics.PushgatewayURL)
	return out
}
