// Package match finds case-insensitive occurrences of a search term and
// marks them for display.
package match

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dhcgn/mbox-search/model"
)

// Ranges returns every non-overlapping occurrence of term in text, scanning
// left to right. Comparison uses Unicode simple case folding, so any casing
// of term yields the same ranges. An empty term has no occurrences.
func Ranges(text, term string) []model.Range {
	if term == "" || len(text) == 0 {
		return nil
	}

	var out []model.Range
	f := newFinder(text, term)
	for i := 0; i < len(text); {
		i = f.next(i)
		if i < 0 {
			break
		}
		if end, ok := matchAt(text, term, i); ok {
			out = append(out, model.Range{Start: i, End: end})
			i = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return out
}

// Contains reports whether term occurs in text, ignoring case.
func Contains(text, term string) bool {
	if term == "" {
		return true
	}
	f := newFinder(text, term)
	for i := 0; i < len(text); {
		i = f.next(i)
		if i < 0 {
			return false
		}
		if _, ok := matchAt(text, term, i); ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return false
}

// ContainsBytes is Contains for raw, possibly undecodable, bytes.
func ContainsBytes(raw []byte, term string) bool {
	if term == "" {
		return true
	}
	if isASCII(term) {
		return bytes.Contains(bytes.ToLower(raw), []byte(strings.ToLower(term)))
	}
	return Contains(string(raw), term)
}

// Apply rewrites text with wrap applied to every range. Ranges must be sorted
// and non-overlapping, as returned by Ranges. Out-of-bounds ranges are clipped.
func Apply(text string, ranges []model.Range, wrap func(string) string) string {
	if len(ranges) == 0 || wrap == nil {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text) + len(ranges)*8)
	pos := 0
	for _, r := range Clip(ranges, len(text)) {
		if r.Start < pos {
			continue
		}
		sb.WriteString(text[pos:r.Start])
		sb.WriteString(wrap(text[r.Start:r.End]))
		pos = r.End
	}
	sb.WriteString(text[pos:])
	return sb.String()
}

// Clip restricts ranges to the first n bytes of a fragment, dropping ranges
// that start at or after n.
func Clip(ranges []model.Range, n int) []model.Range {
	out := make([]model.Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start >= n || r.End <= r.Start {
			continue
		}
		if r.End > n {
			r.End = n
		}
		out = append(out, r)
	}
	return out
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf], raw[crlf+4:]
	case lf >= 0:
		return raw[:lf], raw[lf+2:]
	}

	return raw, nil
}

// finder yields the positions at which term may start in text, in
// increasing order. For an ASCII letter both cases are located with a byte
// search and cached, so each case is scanned at most once over the text.
type finder struct {
	text   string
	mode   int
	lower  byte
	upper  byte
	li, ui int
}

const (
	everyRune = iota
	singleByte
	eitherCase
)

func newFinder(text, term string) *finder {
	first, _ := utf8.DecodeRuneInString(term)
	f := &finder{text: text}
	switch {
	case first >= utf8.RuneSelf:
		f.mode = everyRune
	case !isASCIILetter(byte(first)):
		f.mode = singleByte
		f.lower = byte(first)
	default:
		// k and s also fold to KELVIN SIGN and LONG S, so they cannot be
		// skipped to with a byte search.
		f.lower = byte(first) | 0x20
		f.upper = f.lower &^ 0x20
		if f.lower == 'k' || f.lower == 's' {
			f.mode = everyRune
			break
		}
		f.mode = eitherCase
		f.li = indexFrom(text, f.lower, 0)
		f.ui = indexFrom(text, f.upper, 0)
	}
	return f
}

// next returns the first candidate at or after from, or -1. Calls must pass
// non-decreasing values of from.
func (f *finder) next(from int) int {
	switch f.mode {
	case everyRune:
		return from
	case singleByte:
		return indexFrom(f.text, f.lower, from)
	}

	if f.li >= 0 && f.li < from {
		f.li = indexFrom(f.text, f.lower, from)
	}
	if f.ui >= 0 && f.ui < from {
		f.ui = indexFrom(f.text, f.upper, from)
	}
	switch {
	case f.li < 0:
		return f.ui
	case f.ui < 0 || f.li < f.ui:
		return f.li
	default:
		return f.ui
	}
}

func indexFrom(s string, c byte, from int) int {
	if from >= len(s) {
		return -1
	}
	if idx := strings.IndexByte(s[from:], c); idx >= 0 {
		return from + idx
	}
	return -1
}

func matchAt(text, term string, i int) (int, bool) {
	j := i
	for _, tr := range term {
		if j >= len(text) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(text[j:])
		if !equalFold(r, tr) {
			return 0, false
		}
		j += size
	}
	return j, true
}

func equalFold(a, b rune) bool {
	if a == b {
		return true
	}
	if a < utf8.RuneSelf && b < utf8.RuneSelf {
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		return a == b
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
