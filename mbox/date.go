package mbox

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	tzOffsetRe        = regexp.MustCompile(`([+-])(\d{2})(\d{2})`)
	anyTZOffsetRe     = regexp.MustCompile(`\s*[+-]\d{4}`)
	trailingCommentRe = regexp.MustCompile(`\s*\([^()]*\)\s*$`)
)

// Layouts seen in real archives that net/mail rejects.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
	time.ANSIC,
	time.UnixDate,
	"Mon Jan 2 15:04:05 2006 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

var zonelessLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04",
	"2 Jan 2006 15:04",
}

// ParseDate parses a Date header value. It accepts RFC 5322 dates and a
// number of common deviations; ok is false when nothing matched.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}

	norm := trailingCommentRe.ReplaceAllString(normalizeTZOffset(value), "")
	norm = strings.Join(strings.Fields(norm), " ")
	if t, err := mail.ParseDate(norm); err == nil {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, norm); err == nil {
			return t, true
		}
	}

	noTZ := strings.TrimSpace(anyTZOffsetRe.ReplaceAllString(norm, ""))
	for _, layout := range zonelessLayouts {
		if t, err := time.Parse(layout, noTZ); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeTZOffset clamps out-of-range numeric zone offsets such as +2500.
func normalizeTZOffset(s string) string {
	return tzOffsetRe.ReplaceAllStringFunc(s, func(m string) string {
		sign := m[0:1]
		hh, _ := strconv.Atoi(m[1:3])
		mm, _ := strconv.Atoi(m[3:5])
		if hh > 23 {
			hh = 23
		}
		if mm > 59 {
			mm = 59
		}
		return fmt.Sprintf("%s%02d%02d", sign, hh, mm)
	})
}
