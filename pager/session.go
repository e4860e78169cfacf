// Package pager pages through search results and runs the interactive
// result browser.
package pager

import (
	"errors"

	"github.com/dhcgn/mbox-search/match"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

// ErrOutOfRange is returned for a position outside the match list.
var ErrOutOfRange = errors.New("position out of range")

// Fetcher loads the full message of a record.
type Fetcher interface {
	Fetch(rec model.Record) (mbox.Message, error)
}

// Page is one slice of the ordered match list.
type Page struct {
	// Index is the zero-based page number that was requested.
	Index int
	Size  int
	Count int
	Total int
	// Start is the position of the first row in the match list.
	Start int
	Rows  []model.Match
	// OutOfRange is set when Index is not in [0, Count). Rows is empty then.
	OutOfRange bool
}

// MessageView is a fetched message with the ranges to highlight.
type MessageView struct {
	Position      int
	Match         model.Match
	Message       mbox.Message
	FromRanges    []model.Range
	SubjectRanges []model.Range
	BodyRanges    []model.Range
}

// Session holds the ordered results of one search.
type Session struct {
	term    string
	matches []model.Match
	fetcher Fetcher
}

// NewSession returns a Session over matches, which must already be ordered.
func NewSession(term string, matches []model.Match, fetcher Fetcher) *Session {
	return &Session{term: term, matches: matches, fetcher: fetcher}
}

// Term returns the search term.
func (s *Session) Term() string {
	return s.term
}

// Total returns the number of matches.
func (s *Session) Total() int {
	return len(s.matches)
}

// Pages returns the number of pages of the given size.
func (s *Session) Pages(size int) int {
	if size <= 0 {
		return 0
	}
	return (len(s.matches) + size - 1) / size
}

// Page returns the rows of page index. Any index is accepted; pages outside
// the result set come back empty with OutOfRange set.
func (s *Session) Page(index, size int) Page {
	p := Page{Index: index, Size: size, Count: s.Pages(size), Total: len(s.matches)}
	if index < 0 || index >= p.Count {
		p.OutOfRange = true
		return p
	}

	p.Start = index * size
	end := min(p.Start+size, len(s.matches))
	p.Rows = s.matches[p.Start:end]
	return p
}

// Message fetches the message at pos in the match list.
func (s *Session) Message(pos int) (*MessageView, error) {
	if pos < 0 || pos >= len(s.matches) {
		return nil, ErrOutOfRange
	}

	m := s.matches[pos]
	msg, err := s.fetcher.Fetch(m.Record)
	if err != nil {
		return nil, err
	}
	return &MessageView{
		Position:      pos,
		Match:         m,
		Message:       msg,
		FromRanges:    match.Ranges(msg.From, s.term),
		SubjectRanges: match.Ranges(msg.Subject, s.term),
		BodyRanges:    match.Ranges(msg.Body, s.term),
	}, nil
}
