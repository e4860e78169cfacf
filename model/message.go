package model

import "time"

// Span is the byte range of one message inside an mbox archive.
type Span struct {
	Offset int64
	Length int64
}

// End returns the first byte after the span.
func (s Span) End() int64 {
	return s.Offset + s.Length
}

// Metadata holds the header fields extracted from a message's header block.
type Metadata struct {
	Date      time.Time
	From      string
	Subject   string
	To        string
	MessageID string
}

// Record is one indexed message: where it lives in the archive and the
// metadata needed for listing and matching without touching the archive.
type Record struct {
	Offset  int64
	Length  int64
	Date    time.Time
	From    string
	Subject string
}

// HasDate reports whether the Date header was parsed successfully.
func (r Record) HasDate() bool {
	return !r.Date.IsZero()
}

// Span returns the record's byte range.
func (r Record) Span() Span {
	return Span{Offset: r.Offset, Length: r.Length}
}

// IndexHeader describes the archive an index was built from.
type IndexHeader struct {
	Version    int
	SourcePath string
	SourceSize int64
	BuiltAt    time.Time
	Count      int
}

// Index is the ordered record sequence of one archive.
type Index struct {
	Header  IndexHeader
	Records []Record
}

// Range is a half-open [Start, End) byte range inside a text fragment.
type Range struct {
	Start int
	End   int
}

// Field identifies where a search term matched.
type Field uint8

const (
	FieldFrom Field = 1 << iota
	FieldSubject
	FieldBody
)

// Has reports whether f contains all bits of other.
func (f Field) Has(other Field) bool {
	return f&other == other
}

// Match is a record that satisfied a search term, with the ranges to
// emphasise when displaying it. BodyRanges is only populated when the body
// had to be fetched to decide the match.
type Match struct {
	Position      int
	Record        Record
	Fields        Field
	FromRanges    []Range
	SubjectRanges []Range
	BodyRanges    []Range
}

// RawMessage is the archived bytes of one record, delimiter line included.
type RawMessage struct {
	Record Record
	Raw    []byte
}
