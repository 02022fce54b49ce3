package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "SONGLAKE"

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"job":               "job",
	"input":             "input_path",
	"output":            "output_path",
	"region":            "region",
	"endpoint":          "endpoint",
	"path-style":        "path_style",
	"timezone":          "timezone",
	"malformed":         "malformed_policy",
	"only":              "only",
	"schedule":          "schedule",
	"normalize-unicode": "match.normalize_unicode",
	"parallelism":       "runtime.parallelism",
	"partitions":        "runtime.partitions",
	"catalog":           "catalog.kind",
	"catalog-dsn":       "catalog.dsn",
	"metrics":           "metrics.backend",
	"pushgateway-url":   "metrics.pushgateway_url",
	"datadog-addr":      "metrics.datadog_addr",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// extraEnv lists the non-prefixed variables also honoured for a key, after
// the SONGLAKE_ one.
var extraEnv = map[string][]string{
	"credentials.access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"credentials.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
	"credentials.session_token":     {"AWS_SESSION_TOKEN"},
	"region":                        {"AWS_REGION"},
}

// RegisterFlags declares every overridable option on fs, defaulted from
// Default. Credentials have no flag so they never show up in process lists.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("job", d.Job, "job label for logs, metrics and the catalog")
	fs.String("input", d.InputPath, "input root: local dir or s3/s3a/s3n URI")
	fs.String("output", d.OutputPath, "output lake root: local dir or s3/s3a/s3n URI")
	fs.String("region", d.Region, "S3 region")
	fs.String("endpoint", d.Endpoint, "S3 endpoint override")
	fs.Bool("path-style", d.PathStyle, "use path-style S3 addressing")
	fs.String("timezone", d.Timezone, "IANA zone start_time is derived in")
	fs.String("malformed", d.MalformedPolicy, "malformed record policy: fail or skip")
	fs.String("only", d.Only, "comma separated stages to run (songs, logs)")
	fs.String("schedule", d.Schedule, "cron expression for the schedule command")
	fs.Bool("normalize-unicode", d.Match.NormalizeUnicode, "compare join keys in NFC form")
	fs.Int("parallelism", d.Runtime.Parallelism, "operator parallelism")
	fs.Int("partitions", d.Runtime.Partitions, "hash partitions used by dedup and joins")
	fs.String("catalog", d.Catalog.Kind, "run catalog: none, sqlite or postgres")
	fs.String("catalog-dsn", d.Catalog.DSN, "run catalog DSN")
	fs.String("metrics", d.Metrics.Backend, "metrics backend: none, pushgateway or datadog")
	fs.String("pushgateway-url", d.Metrics.PushgatewayURL, "Prometheus Pushgateway URL")
	fs.String("datadog-addr", d.Metrics.DatadogAddr, "DogStatsD address")
	fs.String("log-level", d.Log.Level, "log level")
	fs.String("log-format", d.Log.Format, "log format: console or json")
}

// Load resolves the configuration from fs, the environment and the file
// named by the "config" flag. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range extraEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, errors.Wrapf(apperrors.ErrConfiguration, "bind env %s: %v", key, err)
		}
	}

	var file string
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, errors.Wrapf(apperrors.ErrConfiguration, "bind flag %s: %v", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			file = f.Value.String()
		}
	}
	if file == "" {
		file = v.GetString("config")
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(apperrors.ErrConfiguration, "read config file %q: %v", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrapf(apperrors.ErrConfiguration, "decode config: %v", err)
	}
	return c, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("config", "")
	v.SetDefault("job", d.Job)
	v.SetDefault("input_path", d.InputPath)
	v.SetDefault("output_path", d.OutputPath)
	v.SetDefault("credentials.access_key_id", "")
	v.SetDefault("credentials.secret_access_key", "")
	v.SetDefault("credentials.session_token", "")
	v.SetDefault("region", d.Region)
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("path_style", d.PathStyle)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("malformed_policy", d.MalformedPolicy)
	v.SetDefault("only", d.Only)
	v.SetDefault("schedule", d.Schedule)
	v.SetDefault("match.normalize_unicode", d.Match.NormalizeUnicode)
	v.SetDefault("runtime.parallelism", d.Runtime.Parallelism)
	v.SetDefault("runtime.partitions", d.Runtime.Partitions)
	v.SetDefault("catalog.kind", d.Catalog.Kind)
	v.SetDefault("catalog.dsn", d.Catalog.DSN)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.pushgateway_url", d.Metrics.PushgatewayURL)
	v.SetDefault("metrics.datadog_addr", d.Metrics.DatadogAddr)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.tags", d.Metrics.Tags)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
