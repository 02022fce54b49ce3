package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anhlhn1/udacity-data-lake/internal/apperrors"
)

func newScheduleCommand(a *app) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "run the lake job on the configured cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Schedule == "" {
				return errors.Wrap(apperrors.ErrConfiguration, "schedule: no cron expression configured")
			}
			ctx := cmd.Context()
			j, err := a.newJob(ctx)
			if err != nil {
				return err
			}
			defer j.close()

			runOnce := func() {
				rep, err := j.pipeline.Run(ctx)
				if err != nil {
					a.log.Error("scheduled run failed", zap.String("run_id", rep.RunID), zap.Error(err))
				}
			}

			c := cron.New(cron.WithChain(
				cron.Recover(cronLogger{a.log}),
				cron.SkipIfStillRunning(cronLogger{a.log}),
			))
			sched, err := cron.ParseStandard(a.cfg.Schedule)
			if err != nil {
				return errors.Wrapf(apperrors.ErrConfiguration, "schedule %q: %v", a.cfg.Schedule, err)
			}
			id := c.Schedule(sched, cron.FuncJob(runOnce))
			c.Start()
			a.log.Info("scheduler started", zap.String("schedule", a.cfg.Schedule), zap.Time("next", sched.Next(time.Now())))
			if runNow {
				c.Entry(id).WrappedJob.Run()
			}

			<-ctx.Done()
			a.log.Info("scheduler stopping; waiting for a running job")
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	return cmd
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}
