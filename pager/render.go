package pager

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/dhcgn/mbox-search/match"
	"github.com/dhcgn/mbox-search/model"
)

const (
	// DefaultWidth is the table width used when the terminal width is unknown.
	DefaultWidth = 110

	numberWidth = 4
	dateWidth   = 16
	fromWidth   = 30
	minSubject  = 12
	separator   = " | "
	ellipsis    = "…"
	dateLayout  = "2006-01-02 15:04"
	ruleWidth   = 80
)

// RenderPage writes the listing of p.
func RenderPage(w io.Writer, p Page, theme Theme, width int) error {
	theme = theme.orPlain()
	if width <= 0 {
		width = DefaultWidth
	}
	subjectWidth := max(width-numberWidth-dateWidth-fromWidth-3*len(separator), minSubject)

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n", theme.Heading(fmt.Sprintf("--- Found %d matching emails | Page %d of %d | %d per page ---",
		p.Total, p.Index+1, p.Count, p.Size)))

	header := strings.Join([]string{
		runewidth.FillRight("No.", numberWidth),
		runewidth.FillRight("Date", dateWidth),
		runewidth.FillRight("From", fromWidth),
		"Subject",
	}, separator)
	sb.WriteString(theme.Label(header))
	sb.WriteByte('\n')

	for i, m := range p.Rows {
		date := "-"
		if m.Record.HasDate() {
			date = m.Record.Date.Format(dateLayout)
		}
		row := []string{
			runewidth.FillLeft(fmt.Sprint(i+1), numberWidth),
			runewidth.FillRight(date, dateWidth),
			cell(m.Record.From, m.FromRanges, fromWidth, theme, true),
			cell(m.Record.Subject, m.SubjectRanges, subjectWidth, theme, false),
		}
		sb.WriteString(strings.Join(row, separator))
		sb.WriteByte('\n')
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderMessage writes the full view of a message.
func RenderMessage(w io.Writer, v *MessageView, theme Theme) error {
	theme = theme.orPlain()
	msg := v.Message

	date := "N/A"
	if !msg.Date.IsZero() {
		date = msg.Date.Format("Mon, 2 Jan 2006 15:04:05 -0700")
	}

	var sb strings.Builder
	sb.WriteString("\n" + strings.Repeat("=", ruleWidth) + "\n")
	fields := []struct {
		label  string
		value  string
		ranges []model.Range
	}{
		{"From", msg.From, v.FromRanges},
		{"To", msg.To, nil},
		{"Subject", msg.Subject, v.SubjectRanges},
		{"Date", date, nil},
		{"Message-ID", msg.MessageID, nil},
	}
	for _, f := range fields {
		value := sanitize(f.value)
		if value == "" {
			value = "N/A"
		}
		fmt.Fprintf(&sb, "%s: %s\n", theme.Label(runewidth.FillRight(f.label, 10)), match.Apply(value, f.ranges, theme.Highlight))
	}
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	if msg.Fallback {
		sb.WriteString(theme.Notice("[body shown as raw text, it could not be fully decoded]") + "\n")
	} else if v.Match.Fields&model.FieldBody != 0 && len(v.BodyRanges) == 0 {
		sb.WriteString(theme.Notice("[term found in an attachment or enclosed message]") + "\n")
	}
	sb.WriteString(match.Apply(msg.Body, v.BodyRanges, theme.Highlight))
	if !strings.HasSuffix(msg.Body, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// cell fits text into width display columns, highlighting ranges in the
// visible part. Truncated text ends with an ellipsis.
func cell(text string, ranges []model.Range, width int, theme Theme, pad bool) string {
	text = sanitize(text)
	visible := text
	suffix := ""
	if runewidth.StringWidth(text) > width {
		visible = strings.TrimSuffix(runewidth.Truncate(text, width, ellipsis), ellipsis)
		suffix = ellipsis
	}

	out := match.Apply(visible, match.Clip(ranges, len(visible)), theme.Highlight) + suffix
	if !pad {
		return out
	}
	if gap := width - runewidth.StringWidth(visible+suffix); gap > 0 {
		out += strings.Repeat(" ", gap)
	}
	return out
}

// sanitize replaces control characters with spaces, keeping byte offsets.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
