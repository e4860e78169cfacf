package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/progress"
	"github.com/dhcgn/mbox-search/runner"
)

func newBuildCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build ARCHIVE",
		Short: "Scan an mbox archive and write its index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, done, err := env.start(cmd, args)
			if err != nil {
				return err
			}
			defer done()

			indexPath := cfg.Locate()
			r, err := runner.New(runner.Options{
				ArchivePath: cfg.ArchivePath,
				IndexPath:   indexPath,
				Strict:      cfg.StrictFrom,
				BufferSize:  cfg.BufferSize,
			}, logger)
			if err != nil {
				return fmt.Errorf("runner.New: %w", err)
			}

			level := cfg.LogLevel
			if !cfg.Progress {
				level = "off"
			}
			bar := progress.New("Indexing "+filepath.Base(cfg.ArchivePath), level)
			r.Subscribe("progress", bar.Update)

			logger.Info("starting build", "archive", cfg.ArchivePath, "index", indexPath, "strict", cfg.StrictFrom)
			started := time.Now()
			summary, err := r.Build()
			bar.Stop()
			if err != nil {
				return err
			}

			if bar.Enabled() {
				bar.PrintSummary(summary, indexPath, time.Since(started))
				return nil
			}
			_, err = fmt.Fprintf(env.Out, "Indexed %d messages into %s\n", summary.Scanned, indexPath)
			return err
		},
	}
	config.RegisterBuildFlags(cmd)
	return cmd
}
