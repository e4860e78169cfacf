package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/imap"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/query"
	"github.com/dhcgn/mbox-search/runner"
)

func newExportCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export ARCHIVE TERM",
		Short: "Copy the messages matching TERM to an mbox file or an IMAP folder",
		Long: "export runs the same search as the search command and copies every\n" +
			"matching message, newest first, either byte for byte into a new mbox\n" +
			"file (--out) or into an IMAP folder (--imap-host).",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, done, err := env.start(cmd, args)
			if err != nil {
				return err
			}
			defer done()

			if strings.TrimSpace(cfg.Term) == "" {
				return errEmptyTerm
			}
			if cfg.OutPath != "" && samePath(cfg.OutPath, cfg.ArchivePath) {
				return fmt.Errorf("--out must not be the archive itself")
			}

			idx, err := loadIndex(cfg, logger)
			if err != nil {
				return err
			}
			matches, err := query.Search(idx, cfg.ArchivePath, cfg.Term)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				_, err := fmt.Fprintln(env.Out, "No matches found.")
				return err
			}

			sink, dest, closeSink, err := openSink(cfg, logger)
			if err != nil {
				return err
			}

			file, err := os.Open(cfg.ArchivePath)
			if err != nil {
				_ = closeSink()
				return model.NewIOError("open archive", cfg.ArchivePath, err)
			}
			defer file.Close()

			r, err := runner.New(runner.Options{ArchivePath: cfg.ArchivePath, IndexPath: cfg.Locate()}, logger)
			if err != nil {
				_ = closeSink()
				return fmt.Errorf("runner.New: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			summary, err := r.Export(ctx, file, matches, sink, cfg.DryRun)
			closeErr := closeSink()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}

			if cfg.DryRun {
				_, err = fmt.Fprintf(env.Out, "Dry run: %d matching messages would be exported to %s\n", summary.DryRunExported, dest)
				return err
			}
			_, err = fmt.Fprintf(env.Out, "Exported %d matching messages to %s\n", summary.Exported, dest)
			return err
		},
	}
	config.RegisterExportFlags(cmd)
	return cmd
}

func openSink(cfg config.Config, logger *slog.Logger) (runner.Sink, string, func() error, error) {
	noop := func() error { return nil }

	if cfg.OutPath != "" {
		if cfg.DryRun {
			return nil, cfg.OutPath, noop, nil
		}
		fs, err := mbox.CreateFile(cfg.OutPath)
		if err != nil {
			return nil, "", nil, err
		}
		return fs, cfg.OutPath, fs.Close, nil
	}

	dest := fmt.Sprintf("imap://%s@%s/%s", cfg.IMAPUser, cfg.IMAPHost, cfg.TargetFolder)
	u, err := imap.NewUploader(imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		TargetFolder:       cfg.TargetFolder,
	}, logger)
	if err != nil {
		return nil, "", nil, fmt.Errorf("imap.NewUploader: %w", err)
	}
	logger.Info("exporting to imap", "destination", dest)
	return u, dest, u.Close, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
