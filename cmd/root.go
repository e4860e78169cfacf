// Package cmd implements the mbox-search command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/model"
)

var errEmptyTerm = errors.New("search term must not be empty")

// Env is what the commands read from and write to.
type Env struct {
	In  io.Reader
	Out io.Writer
	// SetupLogger builds the logger of one command run. The returned function
	// releases any log file. A nil SetupLogger discards all logs.
	SetupLogger func(cfg config.Config) (*slog.Logger, func() error, error)
}

// NewRootCmd returns the mbox-search command tree.
func NewRootCmd(env Env) *cobra.Command {
	if env.In == nil {
		env.In = os.Stdin
	}
	if env.Out == nil {
		env.Out = os.Stdout
	}

	root := &cobra.Command{
		Use:   "mbox-search",
		Short: "Index large mbox archives and search them interactively",
		Long: "mbox-search builds a compact index next to an mbox archive and answers\n" +
			"case-insensitive substring queries against it without loading the archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterPersistentFlags(root)

	root.AddCommand(
		newBuildCmd(env),
		newSearchCmd(env),
		newVerifyCmd(env),
		newStatsCmd(env),
		newExportCmd(env),
	)
	return root
}

// start resolves the configuration and the logger of a command run. The
// returned function must be called when the command is done.
func (env Env) start(cmd *cobra.Command, args []string) (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadConfig(cmd, args)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	setup := env.SetupLogger
	if setup == nil {
		setup = discardLogger
	}
	logger, cleanup, err := setup(cfg)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("setup logger: %w", err)
	}
	slog.SetDefault(logger)
	logger.Debug("starting", "command", cmd.Name(), "archive", cfg.ArchivePath, "index", cfg.Locate())

	return cfg, logger, func() { _ = cleanup() }, nil
}

func discardLogger(config.Config) (*slog.Logger, func() error, error) {
	return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }, nil
}

// loadIndex loads the index of the configured archive and logs a warning
// for every staleness hint.
func loadIndex(cfg config.Config, logger *slog.Logger) (*model.Index, error) {
	path := cfg.Locate()
	idx, err := index.Load(path)
	if errors.Is(err, model.ErrIndexMissing) {
		return nil, fmt.Errorf("%w at %s, run `mbox-search build %s` first", model.ErrIndexMissing, path, cfg.ArchivePath)
	}
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(cfg.ArchivePath); err == nil {
		for _, hint := range index.Staleness(idx.Header, cfg.ArchivePath, info.Size()) {
			logger.Warn("index may be stale", "index", path, "hint", hint)
		}
	}
	logger.Debug("index loaded", "index", path, "records", len(idx.Records), "builtAt", idx.Header.BuiltAt)
	return idx, nil
}
