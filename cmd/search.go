package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/pager"
	"github.com/dhcgn/mbox-search/query"
)

func newSearchCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search ARCHIVE TERM",
		Short: "Search an indexed archive and browse the results",
		Long: "search matches TERM case-insensitively against the From and Subject of\n" +
			"every message and, where those do not match, against the message body.\n" +
			"Results are listed newest first. At the prompt enter a row number to read\n" +
			"a message, n/p to page, +/- to change the page size and q to quit.",
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

			idx, err := loadIndex(cfg, logger)
			if err != nil {
				return err
			}
			engine, err := query.Open(idx, cfg.ArchivePath, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			matches, err := engine.Search(cfg.Term)
			if err != nil {
				return err
			}
			logger.Info("search completed", "term", cfg.Term, "matches", len(matches), "records", len(idx.Records))

			theme := pager.DefaultTheme()
			if cfg.NoColor {
				theme = pager.PlainTheme()
			}
			loop := pager.NewLoop(pager.NewSession(cfg.Term, matches, engine), env.In, env.Out, pager.Options{
				PageSize: cfg.PageSize,
				Width:    cfg.Width,
				Theme:    theme,
			})
			return loop.Run()
		},
	}
	config.RegisterSearchFlags(cmd)
	return cmd
}
