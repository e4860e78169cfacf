package pager

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dhcgn/mbox-search/match"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

type fakeFetcher struct {
	err     error
	fetched []model.Record
}

func (f *fakeFetcher) Fetch(rec model.Record) (mbox.Message, error) {
	f.fetched = append(f.fetched, rec)
	if f.err != nil {
		return mbox.Message{}, f.err
	}
	return mbox.Message{
		Metadata: model.Metadata{From: rec.From, Subject: rec.Subject, Date: rec.Date},
		Body:     "body of " + rec.Subject + "\nsecond line mentions hello\n",
	}, nil
}

func makeMatches(n int, term string) []model.Match {
	base := time.Date(2023, 11, 21, 9, 0, 0, 0, time.UTC)
	matches := make([]model.Match, n)
	for i := range matches {
		rec := model.Record{
			Offset:  int64(i * 100),
			Length:  100,
			Date:    base.Add(-time.Duration(i) * time.Hour),
			From:    fmt.Sprintf("Sender %d <s%d@example.com>", i, i),
			Subject: fmt.Sprintf("Hello number %d", i+1),
		}
		matches[i] = model.Match{
			Position:      i,
			Record:        rec,
			Fields:        model.FieldSubject,
			SubjectRanges: match.Ranges(rec.Subject, term),
		}
	}
	return matches
}

func bracketTheme() Theme {
	theme := PlainTheme()
	theme.Highlight = func(s string) string { return "[" + s + "]" }
	return theme
}

func TestSession_Page(t *testing.T) {
	s := NewSession("hello", makeMatches(3, "hello"), &fakeFetcher{})

	tests := []struct {
		name      string
		index     int
		size      int
		wantRows  int
		wantStart int
		wantOOR   bool
	}{
		{name: "first page", index: 0, size: 2, wantRows: 2, wantStart: 0},
		{name: "last partial page", index: 1, size: 2, wantRows: 1, wantStart: 2},
		{name: "past the end", index: 2, size: 2, wantOOR: true},
		{name: "negative index", index: -1, size: 2, wantOOR: true},
		{name: "page 2 of a single page", index: 1, size: 20, wantOOR: true},
		{name: "zero size", index: 0, size: 0, wantOOR: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := s.Page(tt.index, tt.size)
			if p.OutOfRange != tt.wantOOR {
				t.Fatalf("OutOfRange = %v, want %v", p.OutOfRange, tt.wantOOR)
			}
			if len(p.Rows) != tt.wantRows {
				t.Errorf("got %d rows, want %d", len(p.Rows), tt.wantRows)
			}
			if !tt.wantOOR && p.Start != tt.wantStart {
				t.Errorf("Start = %d, want %d", p.Start, tt.wantStart)
			}
			if p.Total != 3 {
				t.Errorf("Total = %d, want 3", p.Total)
			}
		})
	}

	if got := s.Pages(2); got != 2 {
		t.Errorf("Pages(2) = %d, want 2", got)
	}
	if got := NewSession("x", nil, nil).Pages(20); got != 0 {
		t.Errorf("Pages() of empty session = %d, want 0", got)
	}
}

func TestSession_Message(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := NewSession("hello", makeMatches(2, "hello"), fetcher)

	view, err := s.Message(1)
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if view.Match.Record.Subject != "Hello number 2" {
		t.Errorf("view of %q", view.Match.Record.Subject)
	}
	if len(view.SubjectRanges) != 1 || len(view.BodyRanges) != 2 {
		t.Errorf("ranges = %v / %v", view.SubjectRanges, view.BodyRanges)
	}

	for _, pos := range []int{-1, 2, 100} {
		if _, err := s.Message(pos); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Message(%d) error = %v, want ErrOutOfRange", pos, err)
		}
	}
	if len(fetcher.fetched) != 1 {
		t.Errorf("fetched %d records, want 1", len(fetcher.fetched))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{in: "n", want: Command{Kind: CmdNext, Raw: "n"}},
		{in: " P \n", want: Command{Kind: CmdPrev, Raw: "P"}},
		{in: "+", want: Command{Kind: CmdGrow, Raw: "+"}},
		{in: "-", want: Command{Kind: CmdShrink, Raw: "-"}},
		{in: "q", want: Command{Kind: CmdQuit, Raw: "q"}},
		{in: "", want: Command{Kind: CmdBack}},
		{in: "b", want: Command{Kind: CmdBack, Raw: "b"}},
		{in: "12", want: Command{Kind: CmdSelect, N: 12, Raw: "12"}},
		{in: "1x", want: Command{Kind: CmdUnknown, Raw: "1x"}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestLoop_Navigation(t *testing.T) {
	s := NewSession("hello", makeMatches(30, "hello"), &fakeFetcher{})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader(""), &out, Options{Theme: PlainTheme()})

	steps := []struct {
		input     string
		wantState State
		wantPage  int
		wantSize  int
		wantOut   string
	}{
		{input: "p", wantState: Listing, wantPage: 0, wantSize: 20, wantOut: "Already on the first page."},
		{input: "n", wantState: Listing, wantPage: 1, wantSize: 20, wantOut: "Page 2 of 2"},
		{input: "n", wantState: Listing, wantPage: 1, wantSize: 20, wantOut: "Already on the last page."},
		{input: "+", wantState: Listing, wantPage: 0, wantSize: 25, wantOut: "Page 1 of 2 | 25 per page"},
		{input: "-", wantState: Listing, wantPage: 0, wantSize: 20, wantOut: "20 per page"},
		{input: "what", wantState: Listing, wantPage: 0, wantSize: 20, wantOut: `Unknown command "what".`},
		{input: "21", wantState: Listing, wantPage: 0, wantSize: 20, wantOut: "Invalid number."},
		{input: "0", wantState: Listing, wantPage: 0, wantSize: 20, wantOut: "Invalid number."},
		{input: "n", wantState: Listing, wantPage: 1, wantSize: 20, wantOut: "Page 2 of 2"},
		{input: "2", wantState: ViewingMessage, wantPage: 1, wantSize: 20, wantOut: "Hello number 22"},
		{input: "b", wantState: Listing, wantPage: 1, wantSize: 20, wantOut: "Page 2 of 2"},
		{input: "2", wantState: ViewingMessage, wantPage: 1, wantSize: 20, wantOut: "Hello number 22"},
		{input: "", wantState: Listing, wantPage: 1, wantSize: 20, wantOut: "Page 2 of 2"},
		{input: "q", wantState: Exiting, wantPage: 1, wantSize: 20},
	}

	for _, step := range steps {
		out.Reset()
		if err := l.Step(ParseCommand(step.input)); err != nil {
			t.Fatalf("Step(%q) error = %v", step.input, err)
		}
		if l.State() != step.wantState || l.PageIndex() != step.wantPage || l.PageSize() != step.wantSize {
			t.Fatalf("after %q: state=%s page=%d size=%d, want %s/%d/%d",
				step.input, l.State(), l.PageIndex(), l.PageSize(), step.wantState, step.wantPage, step.wantSize)
		}
		if !strings.Contains(out.String(), step.wantOut) {
			t.Errorf("after %q output = %q, want it to contain %q", step.input, out.String(), step.wantOut)
		}
	}
}

func TestLoop_BackOnlyWhileViewing(t *testing.T) {
	s := NewSession("hello", makeMatches(3, "hello"), &fakeFetcher{})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader(""), &out, Options{Theme: PlainTheme()})

	tests := []struct {
		input   string
		wantOut string
	}{
		{"", "Invalid input."},
		{"  ", "Invalid input."},
		{"b", `Unknown command "b".`},
	}
	for _, tt := range tests {
		out.Reset()
		if err := l.Step(ParseCommand(tt.input)); err != nil {
			t.Fatalf("Step(%q) error = %v", tt.input, err)
		}
		if l.State() != Listing {
			t.Errorf("after %q state = %s, want listing", tt.input, l.State())
		}
		got := out.String()
		if got != tt.wantOut+"\n" {
			t.Errorf("after %q output = %q, want only %q", tt.input, got, tt.wantOut)
		}
		if strings.Contains(got, "matching emails") {
			t.Errorf("after %q the page was rendered again", tt.input)
		}
	}
}

func TestLoop_PageSizeBounds(t *testing.T) {
	s := NewSession("hello", makeMatches(3, "hello"), &fakeFetcher{})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader(""), &out, Options{PageSize: 5, MaxSize: 10})

	if err := l.Step(Command{Kind: CmdShrink}); err != nil {
		t.Fatal(err)
	}
	if l.PageSize() != 5 || !strings.Contains(out.String(), "minimum of 5") {
		t.Errorf("shrink at floor: size=%d out=%q", l.PageSize(), out.String())
	}
	for i := 0; i < 3; i++ {
		if err := l.Step(Command{Kind: CmdGrow}); err != nil {
			t.Fatal(err)
		}
	}
	if l.PageSize() != 10 || !strings.Contains(out.String(), "maximum of 10") {
		t.Errorf("grow at ceiling: size=%d out=%q", l.PageSize(), out.String())
	}
}

func TestLoop_RunScripted(t *testing.T) {
	s := NewSession("hello", makeMatches(3, "hello"), &fakeFetcher{})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader("1\nq\nnot reached\n"), &out, Options{Theme: bracketTheme()})

	if err := l.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if l.State() != Exiting {
		t.Errorf("State() = %s, want exiting", l.State())
	}

	got := out.String()
	for _, want := range []string{
		"Found 3 matching emails | Page 1 of 1 | 20 per page",
		"[Hello] number 1",
		"Subject   : [Hello] number 1",
		"second line mentions [hello]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "not reached") {
		t.Error("input after q was processed")
	}
}

func TestLoop_EOFExits(t *testing.T) {
	s := NewSession("hello", makeMatches(1, "hello"), &fakeFetcher{})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader("n\n"), &out, Options{})

	if err := l.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if l.State() != Exiting {
		t.Errorf("State() = %s, want exiting", l.State())
	}
}

func TestLoop_FetchErrorAborts(t *testing.T) {
	errDisk := &model.IOError{Op: "read archive", Path: "inbox.mbox", Err: errors.New("gone")}
	s := NewSession("hello", makeMatches(2, "hello"), &fakeFetcher{err: errDisk})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader("1\n"), &out, Options{})

	err := l.Run()
	var ioErr *model.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Run() error = %v, want *model.IOError", err)
	}
}

func TestLoop_NoMatches(t *testing.T) {
	s := NewSession("hello", nil, &fakeFetcher{})
	var out strings.Builder
	l := NewLoop(s, strings.NewReader("1\nn\nq\n"), &out, Options{})

	if err := l.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "No matches found.") || !strings.Contains(got, "Invalid number.") {
		t.Errorf("output = %q", got)
	}
}
