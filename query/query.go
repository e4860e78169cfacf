// Package query resolves a search term against an index and its archive.
package query

import (
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/dhcgn/mbox-search/match"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

// Engine answers queries for one archive. It reads message bodies on demand
// and is not safe for concurrent use.
type Engine struct {
	idx    *model.Index
	src    io.ReaderAt
	path   string
	closer io.Closer
	logger *slog.Logger
	buf    []byte
}

// Open opens the archive at path for random access.
func Open(idx *model.Index, path string, logger *slog.Logger) (*Engine, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, model.NewIOError("open archive", path, err)
	}
	e := New(idx, file, path, logger)
	e.closer = file
	return e, nil
}

// New returns an Engine reading message bytes from src. name identifies the
// archive in errors.
func New(idx *model.Index, src io.ReaderAt, name string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{idx: idx, src: src, path: name, logger: logger}
}

// Close releases the archive opened by Open.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// Search returns every record whose From, Subject or decoded body contains
// term, ignoring case, newest first. Records without a date follow all dated
// ones; ties keep archive order. The body is only read when neither From nor
// Subject matched. An empty term matches every record.
//
// A read failure aborts the search with a *model.IOError.
func (e *Engine) Search(term string) ([]model.Match, error) {
	var (
		matches []model.Match
		fetched int
	)
	for pos, rec := range e.idx.Records {
		m := model.Match{Position: pos, Record: rec}
		if term == "" {
			matches = append(matches, m)
			continue
		}

		if m.FromRanges = match.Ranges(rec.From, term); len(m.FromRanges) > 0 {
			m.Fields |= model.FieldFrom
		}
		if m.SubjectRanges = match.Ranges(rec.Subject, term); len(m.SubjectRanges) > 0 {
			m.Fields |= model.FieldSubject
		}

		if m.Fields == 0 {
			fetched++
			ranges, ok, err := e.matchBody(rec, term)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			m.Fields |= model.FieldBody
			m.BodyRanges = ranges
		}
		matches = append(matches, m)
	}

	Sort(matches)
	e.logger.Debug("search finished", "term", term, "records", len(e.idx.Records), "bodies_read", fetched, "matches", len(matches))
	return matches, nil
}

// Fetch reads and decodes the message of rec.
func (e *Engine) Fetch(rec model.Record) (mbox.Message, error) {
	raw, err := mbox.ReadSpan(e.src, rec.Span(), nil)
	if err != nil {
		return mbox.Message{}, model.NewIOError("read archive", e.path, err)
	}
	return mbox.Decode(raw), nil
}

func (e *Engine) matchBody(rec model.Record, term string) ([]model.Range, bool, error) {
	raw, err := mbox.ReadSpan(e.src, rec.Span(), e.buf)
	if err != nil {
		return nil, false, model.NewIOError("read archive", e.path, err)
	}
	e.buf = raw

	msg := mbox.Decode(raw)
	ranges := match.Ranges(msg.Body, term)
	if len(ranges) > 0 {
		return ranges, true, nil
	}
	if match.Contains(msg.SearchText, term) {
		e.logger.Debug("body matched outside the displayed text", "offset", rec.Offset)
		return nil, true, nil
	}
	if msg.Fallback && match.ContainsBytes(msg.RawBody, term) {
		e.logger.Debug("body matched on raw bytes", "offset", rec.Offset)
		return nil, true, nil
	}
	return nil, false, nil
}

// Sort orders matches newest first, placing undated records after dated
// ones. Equal keys keep their relative order.
func Sort(matches []model.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Record, matches[j].Record
		if a.HasDate() != b.HasDate() {
			return a.HasDate()
		}
		return a.HasDate() && a.Date.After(b.Date)
	})
}

// Search opens the archive at path, runs term against idx and closes it.
func Search(idx *model.Index, path, term string) ([]model.Match, error) {
	e, err := Open(idx, path, nil)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.Search(term)
}
