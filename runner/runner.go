// Package runner drives an index build: it scans an archive, extracts the
// metadata of every message and writes the index.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/stats"
)

var errPathMissing = errors.New("archive and index paths are required")

type Options struct {
	ArchivePath string
	IndexPath   string
	Strict      bool
	BufferSize  int
}

type subscriber struct {
	name string
	fn   func(stats.Event)
}

// Runner builds the index of one archive. Events are delivered to
// subscribers synchronously, in emission order.
type Runner struct {
	opts        Options
	logger      *slog.Logger
	subscribers []subscriber
	reporter    *stats.Reporter
	now         func() time.Time
}

func New(opts Options, logger *slog.Logger) (*Runner, error) {
	if strings.TrimSpace(opts.ArchivePath) == "" || strings.TrimSpace(opts.IndexPath) == "" {
		return nil, errPathMissing
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{opts: opts, logger: logger, now: time.Now}
	r.reporter = stats.NewReporter(r, logger)
	return r, nil
}

// Subscribe registers fn for every event emitted from now on.
func (r *Runner) Subscribe(name string, fn func(stats.Event)) {
	r.subscribers = append(r.subscribers, subscriber{name: name, fn: fn})
}

// Emit delivers evt to all subscribers.
func (r *Runner) Emit(evt stats.Event) {
	for _, s := range r.subscribers {
		s.fn(evt)
	}
}

// Build scans the archive and writes its index. The previous index, if any,
// is only replaced when the whole build succeeded.
func (r *Runner) Build() (stats.Summary, error) {
	started := r.now()
	idx, err := r.scan()
	if err == nil {
		err = r.write(idx)
	}

	summary := r.reporter.Finish(err)
	duration := r.now().Sub(started)
	if err != nil {
		r.logger.Error("build failed", "archive", r.opts.ArchivePath, "duration", duration, "err", err)
		return summary, err
	}

	r.logger.Info("build completed", "archive", r.opts.ArchivePath, "index", r.opts.IndexPath,
		"records", len(idx.Records), "duration", duration)
	return summary, nil
}

func (r *Runner) scan() (*model.Index, error) {
	path := r.opts.ArchivePath
	file, err := os.Open(path)
	if err != nil {
		return nil, r.fail(stats.StageScan, model.NewIOError("open archive", path, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, r.fail(stats.StageScan, model.NewIOError("stat archive", path, err))
	}
	if info.IsDir() {
		return nil, r.fail(stats.StageScan, model.NewIOError("open archive", path, errors.New("is a directory")))
	}
	r.Emit(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeStarted, Total: info.Size(), Detail: path})

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	idx := &model.Index{Header: model.IndexHeader{Version: index.Version, SourcePath: abs}}

	scanner := mbox.NewScanner(file, mbox.ScanOptions{
		Name:       path,
		BufferSize: r.opts.BufferSize,
		Strict:     r.opts.Strict,
	})
	for scanner.Next() {
		span := scanner.Span()
		meta, warnings := mbox.Extract(scanner.Header())
		if scanner.HeaderTruncated() {
			warnings = append(warnings, model.Warning{
				Kind:   model.WarnParse,
				Detail: fmt.Sprintf("header block exceeds %d bytes, the rest was ignored", mbox.MaxHeaderBytes),
			})
		}
		for _, w := range warnings {
			w.Offset = span.Offset
			r.warn(w)
		}

		idx.Records = append(idx.Records, model.Record{
			Offset:  span.Offset,
			Length:  span.Length,
			Date:    meta.Date,
			From:    meta.From,
			Subject: meta.Subject,
		})
		r.Emit(stats.Event{
			Stage:    stats.StageScan,
			Type:     stats.EventTypeScanned,
			Offset:   span.Offset,
			Position: scanner.Offset(),
			Total:    info.Size(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, r.fail(stats.StageScan, err)
	}

	if pre := scanner.Preamble(); pre > 0 {
		r.logger.Warn("skipped bytes before the first message", "archive", path, "bytes", pre)
	}
	if len(idx.Records) == 0 {
		r.logger.Warn("no messages found", "archive", path)
	}

	idx.Header.SourceSize = scanner.Offset()
	idx.Header.Count = len(idx.Records)
	idx.Header.BuiltAt = r.now()
	return idx, nil
}

func (r *Runner) write(idx *model.Index) error {
	if err := index.Write(r.opts.IndexPath, idx); err != nil {
		return r.fail(stats.StageIndex, err)
	}
	r.Emit(stats.Event{Stage: stats.StageIndex, Type: stats.EventTypeIndexed, Position: int64(len(idx.Records)), Detail: r.opts.IndexPath})
	return nil
}

func (r *Runner) warn(w model.Warning) {
	typ := stats.EventTypeParseWarning
	if w.Kind == model.WarnDecode {
		typ = stats.EventTypeDecodeFallback
	}
	r.logger.Debug("message warning", "kind", w.Kind, "offset", w.Offset, "detail", w.Detail)
	r.Emit(stats.Event{Stage: stats.StageScan, Type: typ, Offset: w.Offset, Detail: w.Detail})
}

func (r *Runner) fail(stage stats.Stage, err error) error {
	r.Emit(stats.Event{Stage: stage, Type: stats.EventTypeError, Err: err})
	return err
}
