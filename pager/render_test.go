package pager

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/dhcgn/mbox-search/match"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

func TestCell(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		term  string
		width int
		pad   bool
		want  string
	}{
		{name: "fits and pads", text: "Hello", term: "hell", width: 8, pad: true, want: "[Hell]o   "},
		{name: "no padding", text: "Hello", term: "", width: 8, want: "Hello"},
		{name: "truncated", text: "Hello World", term: "world", width: 8, want: "Hello [W]…"},
		{name: "range clipped at cut", text: "Hello World", term: "lo wor", width: 8, want: "Hel[lo W]…"},
		{name: "wide runes", text: "日本語のメール", term: "本", width: 6, pad: true, want: "日[本]… "},
		{name: "control characters", text: "a\tb", term: "", width: 5, pad: true, want: "a b  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cell(tt.text, match.Ranges(tt.text, tt.term), tt.width, bracketTheme(), tt.pad)
			if got != tt.want {
				t.Errorf("cell() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPage_FixedWidth(t *testing.T) {
	matches := makeMatches(2, "hello")
	matches[1].Record.Date = matches[1].Record.Date.AddDate(-100, 0, 0)
	matches = append(matches, model.Match{Record: model.Record{Subject: "undated", From: "ünïcödé sender with a very long display name"}})

	p := NewSession("hello", matches, nil).Page(0, 20)
	var sb strings.Builder
	if err := RenderPage(&sb, p, PlainTheme(), 80); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), sb.String())
	}
	wantSep := strings.Index(lines[1], " | Subject")
	for _, line := range lines[2:] {
		prefix := line[:strings.LastIndex(line, " | ")]
		if w := runewidth.StringWidth(prefix); w != runewidth.StringWidth(lines[1][:wantSep]) {
			t.Errorf("misaligned row %q (width %d)", line, w)
		}
	}
	if !strings.Contains(lines[4], "   3 | -  ") {
		t.Errorf("undated row = %q", lines[4])
	}
}

func TestRenderMessage_Fallback(t *testing.T) {
	s := NewSession("hello", makeMatches(1, "hello"), &fakeFetcher{})
	view, err := s.Message(0)
	if err != nil {
		t.Fatal(err)
	}
	view.Message.Fallback = true

	var sb strings.Builder
	if err := RenderMessage(&sb, view, bracketTheme()); err != nil {
		t.Fatal(err)
	}
	got := sb.String()
	if !strings.Contains(got, "could not be fully decoded") {
		t.Errorf("missing fallback notice:\n%s", got)
	}
	if !strings.Contains(got, "To        : N/A") {
		t.Errorf("missing To placeholder:\n%s", got)
	}
}

func TestRenderMessage_Headers(t *testing.T) {
	view := &MessageView{
		Message: mbox.Message{
			Metadata: model.Metadata{From: "Alice <alice@example.com>", Subject: "minutes", MessageID: "abc@example.com"},
			Body:     "see the attached notes\n",
		},
		Match: model.Match{Fields: model.FieldBody},
	}

	var sb strings.Builder
	if err := RenderMessage(&sb, view, PlainTheme()); err != nil {
		t.Fatal(err)
	}
	got := sb.String()
	for _, want := range []string{
		"Message-ID: abc@example.com",
		"Date      : N/A",
		"[term found in an attachment or enclosed message]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	view.Message.MessageID = ""
	view.BodyRanges = []model.Range{{Start: 8, End: 11}}
	sb.Reset()
	if err := RenderMessage(&sb, view, PlainTheme()); err != nil {
		t.Fatal(err)
	}
	got = sb.String()
	if !strings.Contains(got, "Message-ID: N/A") {
		t.Errorf("missing Message-ID placeholder:\n%s", got)
	}
	if strings.Contains(got, "enclosed message") {
		t.Errorf("notice shown although the displayed body matches:\n%s", got)
	}
}
