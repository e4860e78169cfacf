package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

const maxListedProblems = 10

var errVerifyFailed = errors.New("index does not match the archive")

func newVerifyCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify ARCHIVE",
		Short: "Check that an index still describes its archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, done, err := env.start(cmd, args)
			if err != nil {
				return err
			}
			defer done()

			idx, err := loadIndex(cfg, logger)
			if err != nil {
				return err
			}

			file, err := os.Open(cfg.ArchivePath)
			if err != nil {
				return model.NewIOError("open archive", cfg.ArchivePath, err)
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return model.NewIOError("stat archive", cfg.ArchivePath, err)
			}

			out := env.Out
			fmt.Fprintf(out, "Index:   %s\n", cfg.Locate())
			fmt.Fprintf(out, "Archive: %s (%d bytes)\n", cfg.ArchivePath, info.Size())
			fmt.Fprintf(out, "Records: %d\n", len(idx.Records))
			for _, hint := range index.Staleness(idx.Header, cfg.ArchivePath, info.Size()) {
				fmt.Fprintf(out, "hint: %s\n", hint)
			}

			var problems []string
			if err := index.Validate(idx.Records, info.Size()); err != nil {
				problems = append(problems, err.Error())
			}

			buf := make([]byte, len("From "))
			for i, rec := range idx.Records {
				span := model.Span{Offset: rec.Offset, Length: min(rec.Length, int64(len(buf)))}
				head, err := mbox.ReadSpan(file, span, buf)
				if err != nil {
					problems = append(problems, fmt.Sprintf("record %d at offset %d is beyond the end of the archive", i+1, rec.Offset))
					continue
				}
				if !bytes.Equal(head, []byte("From ")) {
					problems = append(problems, fmt.Sprintf("record %d at offset %d does not start with a \"From \" line", i+1, rec.Offset))
				}
			}

			count, err := mbox.CountMessages(cfg.ArchivePath)
			switch {
			case err != nil:
				logger.Warn("independent message count failed", "archive", cfg.ArchivePath, "err", err)
			case count != len(idx.Records):
				fmt.Fprintf(out, "warning: an independent reader counts %d messages, the index has %d\n", count, len(idx.Records))
			}

			if len(problems) > 0 {
				for i, p := range problems {
					if i == maxListedProblems {
						fmt.Fprintf(out, "  ... and %d more\n", len(problems)-maxListedProblems)
						break
					}
					fmt.Fprintf(out, "  %s\n", p)
				}
				return fmt.Errorf("%w: %d problem(s), rebuild the index", errVerifyFailed, len(problems))
			}

			_, err = fmt.Fprintln(out, "OK")
			return err
		},
	}
}
