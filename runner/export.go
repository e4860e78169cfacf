package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/stats"
)

// Sink receives exported messages in result order. The Raw slice is only
// valid for the duration of the call.
type Sink interface {
	Export(ctx context.Context, msg model.RawMessage) error
}

// Export copies the archived bytes of every match, read from src, to sink.
// With dryRun set nothing is handed to sink; each match is only reported.
// The first failure stops the export.
func (r *Runner) Export(ctx context.Context, src io.ReaderAt, matches []model.Match, sink Sink, dryRun bool) (stats.Summary, error) {
	started := r.now()
	err := r.export(ctx, src, matches, sink, dryRun)

	summary := r.reporter.Finish(err)
	if err != nil {
		r.logger.Error("export failed", "archive", r.opts.ArchivePath, "err", err)
		return summary, err
	}
	r.logger.Info("export completed", "archive", r.opts.ArchivePath, "messages", len(matches),
		"dryRun", dryRun, "duration", r.now().Sub(started))
	return summary, nil
}

func (r *Runner) export(ctx context.Context, src io.ReaderAt, matches []model.Match, sink Sink, dryRun bool) error {
	total := int64(len(matches))
	r.Emit(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeStarted, Total: total})

	var buf []byte
	for i, m := range matches {
		if err := ctx.Err(); err != nil {
			return r.fail(stats.StageExport, err)
		}

		rec := m.Record
		raw, err := mbox.ReadSpan(src, rec.Span(), buf)
		if err != nil {
			return r.fail(stats.StageExport, model.NewIOError("read archive", r.opts.ArchivePath, err))
		}
		buf = raw

		evt := stats.Event{Stage: stats.StageExport, Offset: rec.Offset, Position: int64(i + 1), Total: total}
		if dryRun {
			r.logger.Debug("dry-run export", "offset", rec.Offset, "subject", rec.Subject)
			evt.Type = stats.EventTypeDryRunExport
			r.Emit(evt)
			continue
		}

		if err := sink.Export(ctx, model.RawMessage{Record: rec, Raw: raw}); err != nil {
			return r.fail(stats.StageExport, fmt.Errorf("export message at offset %d: %w", rec.Offset, err))
		}
		evt.Type = stats.EventTypeExported
		r.Emit(evt)
	}
	return nil
}
