package stats

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"
)

type Stage string

const (
	StageScan   Stage = "scan"
	StageIndex  Stage = "index"
	StageExport Stage = "export"
)

type EventType string

const (
	EventTypeStarted        EventType = "started"
	EventTypeScanned        EventType = "scanned"
	EventTypeParseWarning   EventType = "parse_warning"
	EventTypeDecodeFallback EventType = "decode_fallback"
	EventTypeIndexed        EventType = "indexed"
	EventTypeExported       EventType = "exported"
	EventTypeDryRunExport   EventType = "dry_run_exported"
	EventTypeError          EventType = "error"
)

// Event reports one step of a build or export.
type Event struct {
	Stage Stage
	Type  EventType
	// Offset is the archive offset of the message concerned.
	Offset int64
	// Position is the number of bytes or messages processed so far, Total
	// the expected amount. Both are only set where progress is meaningful.
	Position int64
	Total    int64
	Err      error
	Detail   string
}

type Summary struct {
	Scanned         int
	ParseWarnings   int
	DecodeFallbacks int
	Indexed         int
	Exported        int
	DryRunExported  int
	Errors          int
	Bytes           int64
	LastError       error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"parseWarnings", s.ParseWarnings,
		"decodeFallbacks", s.DecodeFallbacks,
		"indexed", s.Indexed,
		"errors", s.Errors,
		"bytes", s.Bytes,
	}
	if s.Exported > 0 || s.DryRunExported > 0 {
		attrs = append(attrs, "exported", s.Exported, "dryRunExported", s.DryRunExported)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector folds events into a Summary.
type Collector struct {
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

// Handle applies one event.
func (c *Collector) Handle(evt Event) {
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeParseWarning:
		c.summary.ParseWarnings++
	case EventTypeDecodeFallback:
		c.summary.DecodeFallbacks++
	case EventTypeIndexed:
		c.summary.Indexed++
	case EventTypeExported:
		c.summary.Exported++
	case EventTypeDryRunExport:
		c.summary.DryRunExported++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
	if evt.Position > c.summary.Bytes && evt.Stage == StageScan {
		c.summary.Bytes = evt.Position
	}
}

func (c *Collector) Snapshot() Summary {
	return c.summary
}

// EventStream delivers events to subscribers synchronously, in order.
type EventStream interface {
	Subscribe(name string, fn func(Event))
}

// Reporter collects the events of a stream and logs a summary when done.
type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.Subscribe("stats-reporter", reporter.collector.Handle)
	return reporter
}

// Finish logs the summary and returns it.
func (r *Reporter) Finish(err error) Summary {
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if r.logger != nil {
		if err != nil {
			r.logger.Error("stats summary", append(attrs, "err", err)...)
		} else {
			r.logger.Info("stats summary", attrs...)
		}
	}
	return summary
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Pair is a value and the number of times it occurred.
type Pair struct {
	Key   string
	Value int
}

// Top returns the limit most frequent entries of m, most frequent first.
// Ties are ordered by key. A limit <= 0 returns every entry.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}
