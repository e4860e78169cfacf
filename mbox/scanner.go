package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/dhcgn/mbox-search/model"
)

const (
	// DefaultBufferSize is the read window used while scanning.
	DefaultBufferSize = 64 * 1024
	// MaxHeaderBytes caps the header block captured per message.
	MaxHeaderBytes = 256 * 1024

	peekWindow = 512
)

var delimiter = []byte("From ")

// ScanOptions tunes a Scanner.
type ScanOptions struct {
	// Name is used in error messages, usually the archive path.
	Name string
	// BufferSize overrides DefaultBufferSize.
	BufferSize int
	// Strict only accepts a "From " line as a delimiter when it starts the
	// file or follows a blank line, and the next line looks like a header
	// field. This avoids splitting on unescaped body lines but merges
	// messages from archives written without the blank separator line.
	Strict bool
}

// Scanner walks an mbox stream once and yields the byte span of every
// message. Only the current read window and the header block of the open
// message are held in memory.
//
// Iterate with Next; after it returns false, Err reports any read failure.
type Scanner struct {
	r    *bufio.Reader
	opts ScanOptions

	pos       int64
	lineStart bool
	prevBlank bool

	start       int64
	inDelimiter bool
	inHeader    bool
	header      []byte
	truncated   bool

	span         model.Span
	cur          []byte
	curTruncated bool
	preamble     int64
	seen         bool

	pending error
	err     error
	done    bool
}

// NewScanner returns a Scanner reading from r, which must be positioned at
// the start of the archive.
func NewScanner(r io.Reader, opts ScanOptions) *Scanner {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Scanner{
		r:         bufio.NewReaderSize(r, size),
		opts:      opts,
		lineStart: true,
		prevBlank: true,
		start:     -1,
	}
}

// Next advances to the next message. It returns false at the end of the
// stream or on a read error.
func (s *Scanner) Next() bool {
	for !s.done {
		var chunk []byte
		err := s.pending
		s.pending = nil
		if err == nil {
			chunk, err = s.r.ReadSlice('\n')
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			err = nil
		}

		if len(chunk) > 0 && s.feed(chunk) {
			s.pending = err
			return true
		}
		if err != nil {
			return s.finish(err)
		}
	}
	return false
}

// Span returns the byte range of the current message.
func (s *Scanner) Span() model.Span {
	return s.span
}

// Header returns the header block of the current message, without the
// delimiter line and the terminating blank line. The slice is only valid
// until the next call to Next.
func (s *Scanner) Header() []byte {
	return s.cur
}

// HeaderTruncated reports whether the current header block exceeded
// MaxHeaderBytes.
func (s *Scanner) HeaderTruncated() bool {
	return s.curTruncated
}

// Offset returns the number of bytes consumed so far.
func (s *Scanner) Offset() int64 {
	return s.pos
}

// Preamble returns the number of bytes skipped before the first delimiter.
func (s *Scanner) Preamble() int64 {
	return s.preamble
}

// Err returns the first read error encountered, as a *model.IOError.
func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) feed(chunk []byte) bool {
	at := s.pos
	atLineStart := s.lineStart
	complete := chunk[len(chunk)-1] == '\n'
	blank := atLineStart && isBlankLine(chunk)

	s.pos += int64(len(chunk))
	s.lineStart = complete

	if atLineStart && bytes.HasPrefix(chunk, delimiter) && s.acceptDelimiter(at, complete) {
		// chunk must not be used past acceptDelimiter: peeking may refill
		// the read buffer it points into.
		closed := s.start >= 0
		if closed {
			s.emit(at)
		} else if !s.seen {
			s.preamble = at
		}
		s.seen = true
		s.start = at
		s.header = s.header[:0]
		s.truncated = false
		s.inHeader = true
		s.inDelimiter = !complete
		s.prevBlank = false
		return closed
	}

	if atLineStart {
		s.prevBlank = blank
	}
	if s.inDelimiter {
		s.inDelimiter = !complete
		return false
	}
	if !s.inHeader || s.start < 0 {
		return false
	}
	if blank {
		s.inHeader = false
		return false
	}
	if s.truncated || len(s.header)+len(chunk) > MaxHeaderBytes {
		s.truncated = true
		return false
	}
	s.header = append(s.header, chunk...)
	return false
}

func (s *Scanner) acceptDelimiter(at int64, complete bool) bool {
	if !s.opts.Strict {
		return true
	}
	if at != 0 && !s.prevBlank {
		return false
	}
	if !complete {
		return true
	}

	n := peekWindow
	if size := s.r.Size(); n > size {
		n = size
	}
	next, _ := s.r.Peek(n)
	return looksLikeHeaderField(next)
}

func (s *Scanner) emit(end int64) {
	s.span = model.Span{Offset: s.start, Length: end - s.start}
	s.cur = append(s.cur[:0], s.header...)
	s.curTruncated = s.truncated
}

func (s *Scanner) finish(err error) bool {
	s.done = true
	if !errors.Is(err, io.EOF) {
		s.err = model.NewIOError("scan", s.opts.Name, err)
		return false
	}
	if !s.seen {
		s.preamble = s.pos
	}
	if s.start < 0 {
		return false
	}
	s.emit(s.pos)
	s.start = -1
	return true
}

func isBlankLine(line []byte) bool {
	return len(line) == 1 && line[0] == '\n' || len(line) == 2 && line[0] == '\r' && line[1] == '\n'
}

// looksLikeHeaderField reports whether the first line of b has the shape
// "name: value" with a printable field name.
func looksLikeHeaderField(b []byte) bool {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	colon := bytes.IndexByte(b, ':')
	if colon <= 0 {
		return false
	}
	for _, c := range b[:colon] {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}
