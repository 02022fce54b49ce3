package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anhlhn1/udacity-data-lake/internal/config"
	"github.com/anhlhn1/udacity-data-lake/internal/logging"

	// Every storage backend and catalog store is built in; the config
	// picks which one runs.
	_ "github.com/anhlhn1/udacity-data-lake/internal/catalog/all"
	_ "github.com/anhlhn1/udacity-data-lake/internal/storage/all"
)

var (
	// Version is set by -ldflags at build time.
	Version = "dev"
	// Commit is set by -ldflags at build time.
	Commit = "none"
)

// app is the state shared by subcommands once flags are resolved.
type app struct {
	cfg config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	rc := &cobra.Command{
		Use:           "songlake",
		Short:         "songlake - build the song-play analytics lake",
		Long:          "Reads song_data and log_data JSON and writes the songs, artists, users,\ntime and songplays tables as partitioned Parquet.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	config.RegisterFlags(rc.PersistentFlags())

	rc.AddCommand(
		newRunCommand(a),
		newValidateCommand(a),
		newScheduleCommand(a),
		newVersionCommand(),
	)
	return rc
}
