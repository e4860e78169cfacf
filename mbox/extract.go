package mbox

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/dhcgn/mbox-search/model"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// charsetReader resolves the charsets RFC 2047 words and MIME parts name.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("unknown charset %q", label)
		}
	}
	return enc.NewDecoder().Reader(input), nil
}

// Extract reads the fields of interest from a raw header block. Field names
// are case-insensitive, folded lines are joined with a single space and the
// first occurrence of a field wins. Anomalies are reported as warnings; the
// returned metadata is always usable.
func Extract(header []byte) (model.Metadata, []model.Warning) {
	var (
		meta     model.Metadata
		warnings []model.Warning
	)

	text := string(header)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
		warnings = append(warnings, model.Warning{Kind: model.WarnDecode, Detail: "header contains invalid UTF-8"})
	}

	fields, malformed := unfold(text)
	if malformed > 0 {
		warnings = append(warnings, model.Warning{
			Kind:   model.WarnParse,
			Detail: fmt.Sprintf("%d malformed header line(s)", malformed),
		})
	}

	decode := func(name string) string {
		raw, ok := fields[name]
		if !ok {
			return ""
		}
		dec, err := wordDecoder.DecodeHeader(raw)
		if err != nil {
			warnings = append(warnings, model.Warning{
				Kind:   model.WarnDecode,
				Detail: fmt.Sprintf("%s: %v", name, err),
			})
			return raw
		}
		if !utf8.ValidString(dec) {
			dec = strings.ToValidUTF8(dec, "\uFFFD")
		}
		return strings.TrimSpace(dec)
	}

	meta.From = decode("from")
	meta.Subject = decode("subject")
	meta.To = decode("to")
	meta.MessageID = strings.Trim(fields["message-id"], " <>")

	date, ok := fields["date"]
	switch {
	case !ok:
		warnings = append(warnings, model.Warning{Kind: model.WarnParse, Detail: "missing Date header"})
	default:
		if t, parsed := ParseDate(date); parsed {
			meta.Date = t
		} else {
			warnings = append(warnings, model.Warning{
				Kind:   model.WarnParse,
				Detail: fmt.Sprintf("unparsable Date %q", date),
			})
		}
	}

	return meta, warnings
}

var wantedFields = map[string]bool{
	"date":       true,
	"from":       true,
	"subject":    true,
	"to":         true,
	"message-id": true,
}

// unfold collects the wanted fields of a header block, keyed by lower-case
// name, and counts the lines that are neither fields nor continuations.
func unfold(text string) (map[string]string, int) {
	fields := make(map[string]string, len(wantedFields))
	var (
		current   string
		collect   bool
		malformed int
		value     strings.Builder
	)

	flush := func() {
		if collect {
			fields[current] = strings.TrimSpace(value.String())
		}
		collect = false
		value.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}

		if line[0] == ' ' || line[0] == '\t' {
			if current == "" {
				malformed++
				continue
			}
			if collect {
				value.WriteByte(' ')
				value.WriteString(strings.TrimSpace(line))
			}
			continue
		}

		flush()
		name, rest, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			current = ""
			malformed++
			continue
		}
		current = strings.ToLower(name)
		if !wantedFields[current] {
			continue
		}
		if _, seen := fields[current]; seen {
			continue
		}
		collect = true
		value.WriteString(strings.TrimSpace(rest))
	}
	flush()

	return fields, malformed
}
