package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
	"github.com/anhlhn1/udacity-data-lake/internal/catalog"
	"github.com/anhlhn1/udacity-data-lake/internal/config"
	"github.com/anhlhn1/udacity-data-lake/internal/frame"
	"github.com/anhlhn1/udacity-data-lake/internal/logging"
	"github.com/anhlhn1/udacity-data-lake/internal/metrics"
	"github.com/anhlhn1/udacity-data-lake/internal/metrics/datadog"
	"github.com/anhlhn1/udacity-data-lake/internal/metrics/prompush"
	jsonparser "github.com/anhlhn1/udacity-data-lake/internal/parser/json"
	"github.com/anhlhn1/udacity-data-lake/internal/pipeline"
	"github.com/anhlhn1/udacity-data-lake/internal/storage"
)

// Test seams.
var (
	openBucketFn  = storage.Open
	openCatalogFn = catalog.Open
)

func newRunCommand(a *app) *cobra.Command {
	var report string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the lake job once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := a.newJob(cmd.Context())
			if err != nil {
				return err
			}
			defer j.close()

			rep, runErr := j.pipeline.Run(cmd.Context())
			if err := writeReport(cmd.OutOrStdout(), report, rep); err != nil {
				a.log.Warn("report output failed", zap.Error(err))
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "print the run report to stdout: json or yaml")
	return cmd
}

// job is a fully wired pipeline plus what must be released after it.
type job struct {
	pipeline *pipeline.Pipeline
	closers  []func()
}

func (j *job) close() {
	for i := len(j.closers) - 1; i >= 0; i-- {
		j.closers[i]()
	}
}

// newJob validates the configuration and wires storage, catalog, metrics
// and the pipeline. Nothing is read or written before validation passes.
func (a *app) newJob(ctx context.Context) (*job, error) {
	cfg, log := a.cfg, a.log
	issues := config.Validate(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			log.Warn("config", zap.String("path", iss.Path), zap.String("issue", iss.Message))
		}
	}
	if err := config.Check(issues); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := jsonparser.ParsePolicy(cfg.MalformedPolicy)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrConfiguration, err.Error())
	}
	stages, err := pipeline.ParseStages(cfg.Only)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrConfiguration, err.Error())
	}

	opt := storage.Options{
		Credentials: storage.Credentials{
			AccessKeyID:     cfg.Credentials.AccessKeyID,
			SecretAccessKey: cfg.Credentials.SecretAccessKey,
			SessionToken:    cfg.Credentials.SessionToken,
		},
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
	}
	in, err := openBucketFn(ctx, cfg.InputPath, opt)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrConfiguration, "open input %s: %s", logging.Redact(cfg.InputPath), logging.RedactError(err))
	}
	out, err := openBucketFn(ctx, cfg.OutputPath, opt)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrConfiguration, "open output %s: %s", logging.Redact(cfg.OutputPath), logging.RedactError(err))
	}

	j := &job{}
	store, err := openCatalogFn(ctx, cfg.Catalog.Kind, cfg.Catalog.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", cfg.Catalog.Kind)
	}
	j.closers = append(j.closers, func() {
		if err := store.Close(); err != nil {
			log.Warn("catalog close", zap.Error(err))
		}
	})
	j.closers = append(j.closers, setupMetrics(cfg, log))

	lake := storage.NewLake(out, cfg.Runtime.Parallelism, log)
	engine := pipeline.NewLakeEngine(in, lake, policy, cfg.Runtime.Parallelism, log)
	j.pipeline = pipeline.New(engine,
		frame.Exec{Parallelism: cfg.Runtime.Parallelism, Partitions: cfg.Runtime.Partitions},
		store, log, pipeline.Options{
			Job:      cfg.Job,
			Location: loc,
			Match:    pipeline.MatchOptions{NormalizeUnicode: cfg.Match.NormalizeUnicode},
			Stages:   stages,
		})

	log.Info("job wired",
		zap.String("input", in.URI("")),
		zap.String("output", out.URI("")),
		zap.String("timezone", loc.String()),
		zap.String("malformed_policy", string(policy)),
		zap.String("catalog", cfg.Catalog.Kind),
		zap.String("metrics", cfg.Metrics.Backend))
	return j, nil
}

// setupMetrics installs the configured backend and returns its flusher. A
// backend that fails to start leaves metrics disabled.
func setupMetrics(cfg config.Config, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch strings.ToLower(cfg.Metrics.Backend) {
	case "pushgateway", "prometheus":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  cfg.Metrics.Namespace,
			GlobalTags: append([]string{"job:" + cfg.Job}, cfg.Metrics.Tags...),
		})
	default:
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend unavailable; metrics disabled", zap.String("backend", cfg.Metrics.Backend), zap.Error(err))
		return func() {}
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", zap.Error(err))
		}
		metrics.SetBackend(nil)
	}
}

func writeReport(w io.Writer, format string, rep *pipeline.Report) error {
	switch strings.ToLower(format) {
	case "":
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(rep)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
