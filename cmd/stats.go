package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/stats"
)

const csvReportLimit = 1000

var statsFields = []string{"From", "Subject", "Year"}

func newStatsCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats ARCHIVE",
		Short: "Show statistics of an indexed archive",
		Long:  "stats reads the index only; the archive itself is not scanned again.",
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

			counter := countRecords(idx.Records)
			printStats(env.Out, counter, cfg.TopN)

			if cfg.ReportDir == "" {
				return nil
			}
			if err := saveCSVReports(counter.values, statsFields, cfg.ReportDir, csvReportLimit); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			_, err = fmt.Fprintf(env.Out, "\nReports saved to directory: %s\n", cfg.ReportDir)
			return err
		},
	}
	config.RegisterStatsFlags(cmd)
	return cmd
}

type recordCounter struct {
	total   int
	undated int
	oldest  time.Time
	newest  time.Time
	values  map[string]map[string]int
}

func countRecords(records []model.Record) recordCounter {
	c := recordCounter{total: len(records), values: make(map[string]map[string]int)}
	for _, f := range statsFields {
		c.values[f] = make(map[string]int)
	}

	for _, rec := range records {
		c.values["From"][valueOrEmpty(rec.From)]++
		c.values["Subject"][valueOrEmpty(rec.Subject)]++
		if !rec.HasDate() {
			c.undated++
			continue
		}
		c.values["Year"][strconv.Itoa(rec.Date.Year())]++
		if c.oldest.IsZero() || rec.Date.Before(c.oldest) {
			c.oldest = rec.Date
		}
		if rec.Date.After(c.newest) {
			c.newest = rec.Date
		}
	}
	return c
}

func valueOrEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

func printStats(w io.Writer, c recordCounter, topN int) {
	fmt.Fprintf(w, "Messages: %d (dated %d, undated %d)\n", c.total, c.total-c.undated, c.undated)
	if !c.oldest.IsZero() {
		fmt.Fprintf(w, "Date span: %s .. %s\n", c.oldest.Format(time.DateOnly), c.newest.Format(time.DateOnly))
	}
	fmt.Fprintln(w)

	for _, field := range statsFields {
		fmt.Fprintf(w, "Top %d %s:\n", topN, field)
		stats.PrettyPrintTop(w, c.values[field], topN)
		fmt.Fprintln(w)
	}
}

func saveCSVReports(counter map[string]map[string]int, fields []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, field := range fields {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeFieldName(field)))
		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}
		for _, p := range stats.Top(counter[field], limit) {
			if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		if err := writer.Error(); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}

	return nil
}

func normalizeFieldName(field string) string {
	name := strings.ToLower(field)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
