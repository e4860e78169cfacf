package mbox

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/dhcgn/mbox-search/model"
)

const twoMessages = "From alice@example.com Mon Jan  1 10:00:00 2024\n" +
	"From: Alice <alice@example.com>\n" +
	"Subject: hello\n" +
	"Date: Mon, 1 Jan 2024 10:00:00 +0000\n" +
	"\n" +
	"body one\n" +
	"\n" +
	"From bob@example.com Tue Jan  2 10:00:00 2024\n" +
	"From: Bob <bob@example.com>\n" +
	"Subject: Re: status\n" +
	"\n" +
	"body two\n"

type scanned struct {
	span      model.Span
	header    string
	truncated bool
}

func scanAll(t *testing.T, r io.Reader, opts ScanOptions) ([]scanned, *Scanner) {
	t.Helper()
	s := NewScanner(r, opts)
	var out []scanned
	for s.Next() {
		out = append(out, scanned{span: s.Span(), header: string(s.Header()), truncated: s.HeaderTruncated()})
	}
	return out, s
}

func TestScanner_TwoMessages(t *testing.T) {
	got, s := scanAll(t, strings.NewReader(twoMessages), ScanOptions{})
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}

	second := int64(strings.Index(twoMessages, "From bob@"))
	want := []model.Span{
		{Offset: 0, Length: second},
		{Offset: second, Length: int64(len(twoMessages)) - second},
	}
	for i := range want {
		if got[i].span != want[i] {
			t.Errorf("message %d span = %+v, want %+v", i, got[i].span, want[i])
		}
	}

	wantHeader := "From: Alice <alice@example.com>\nSubject: hello\nDate: Mon, 1 Jan 2024 10:00:00 +0000\n"
	if got[0].header != wantHeader {
		t.Errorf("header = %q, want %q", got[0].header, wantHeader)
	}
	if s.Offset() != int64(len(twoMessages)) {
		t.Errorf("Offset() = %d, want %d", s.Offset(), len(twoMessages))
	}
}

func TestScanner_SpansTileArchive(t *testing.T) {
	preamble := "This is not a message.\nNeither is this.\n"
	data := preamble + twoMessages + "From carol@example.com Wed Jan  3 10:00:00 2024\nSubject: third\n\nno trailing newline"

	got, s := scanAll(t, strings.NewReader(data), ScanOptions{BufferSize: 16})
	if s.Err() != nil {
		t.Fatalf("Err() = %v", s.Err())
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if s.Preamble() != int64(len(preamble)) {
		t.Errorf("Preamble() = %d, want %d", s.Preamble(), len(preamble))
	}

	next := int64(len(preamble))
	for i, m := range got {
		if m.span.Offset != next {
			t.Errorf("message %d starts at %d, want %d", i, m.span.Offset, next)
		}
		if m.span.Length <= 0 {
			t.Errorf("message %d has length %d", i, m.span.Length)
		}
		if !strings.HasPrefix(data[m.span.Offset:], "From ") {
			t.Errorf("message %d does not start with a delimiter", i)
		}
		next = m.span.End()
	}
	if next != int64(len(data)) {
		t.Errorf("spans end at %d, want %d", next, len(data))
	}
}

func TestScanner_EmptyAndDelimiterless(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "no delimiter", data: "Subject: orphan\n\nbody\n"},
		{name: "indented delimiter", data: " From x@y\nbody\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, s := scanAll(t, strings.NewReader(tt.data), ScanOptions{})
			if s.Err() != nil {
				t.Fatalf("Err() = %v", s.Err())
			}
			if len(got) != 0 {
				t.Fatalf("got %d messages, want 0", len(got))
			}
			if s.Preamble() != int64(len(tt.data)) {
				t.Errorf("Preamble() = %d, want %d", s.Preamble(), len(tt.data))
			}
		})
	}
}

func TestScanner_BodyFromLine(t *testing.T) {
	data := "From a@x Mon Jan  1 10:00:00 2024\n" +
		"Subject: one\n" +
		"\n" +
		"hello\n" +
		"From here on we talk business\n" +
		"\n" +
		"From the desk of the editor\n" +
		"bye\n" +
		"\n" +
		"From b@x Mon Jan  1 11:00:00 2024\n" +
		"Subject: two\n" +
		"\n" +
		"body\n"

	tests := []struct {
		name   string
		strict bool
		want   int
	}{
		{name: "default splits on every delimiter line", strict: false, want: 4},
		{name: "strict requires blank line and header", strict: true, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := scanAll(t, strings.NewReader(data), ScanOptions{Strict: tt.strict})
			if len(got) != tt.want {
				t.Fatalf("got %d messages, want %d", len(got), tt.want)
			}
			if tt.strict {
				second := int64(strings.Index(data, "From b@x"))
				if got[1].span.Offset != second {
					t.Errorf("second message at %d, want %d", got[1].span.Offset, second)
				}
			}
		})
	}
}

func TestScanner_LongLines(t *testing.T) {
	sender := strings.Repeat("s", 40) + "@example.com"
	data := "From " + sender + " Mon Jan  1 10:00:00 2024\n" +
		"Subject: " + strings.Repeat("long ", 10) + "\n" +
		"\n" +
		strings.Repeat("x", 16) + "From not a delimiter\n" +
		"\n" +
		"From b@x Mon Jan  1 11:00:00 2024\n" +
		"Subject: two\n" +
		"\n" +
		"body\n"

	got, s := scanAll(t, strings.NewReader(data), ScanOptions{BufferSize: 16})
	if s.Err() != nil {
		t.Fatalf("Err() = %v", s.Err())
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	wantHeader := "Subject: " + strings.Repeat("long ", 10) + "\n"
	if got[0].header != wantHeader {
		t.Errorf("header = %q, want %q", got[0].header, wantHeader)
	}
	if got[1].header != "Subject: two\n" {
		t.Errorf("second header = %q", got[1].header)
	}
}

func TestScanner_CRLF(t *testing.T) {
	data := "From a@x Mon Jan  1 10:00:00 2024\r\n" +
		"Subject: crlf\r\n" +
		"\r\n" +
		"Subject: not a header\r\n" +
		"\r\n" +
		"From b@x Mon Jan  1 11:00:00 2024\r\n" +
		"Subject: two\r\n" +
		"\r\n"

	got, _ := scanAll(t, strings.NewReader(data), ScanOptions{Strict: true})
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].header != "Subject: crlf\r\n" {
		t.Errorf("header = %q", got[0].header)
	}
}

func TestScanner_HeaderTruncated(t *testing.T) {
	line := "X-Filler: " + strings.Repeat("f", 1000) + "\n"
	huge := strings.Repeat(line, MaxHeaderBytes/len(line)+10)
	data := "From a@x Mon Jan  1 10:00:00 2024\n" + huge + "\nbody\n" +
		"From b@x Mon Jan  1 11:00:00 2024\nSubject: small\n\nbody\n"

	got, _ := scanAll(t, strings.NewReader(data), ScanOptions{})
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if !got[0].truncated {
		t.Error("expected first header to be truncated")
	}
	if len(got[0].header) > MaxHeaderBytes {
		t.Errorf("captured %d header bytes, cap is %d", len(got[0].header), MaxHeaderBytes)
	}
	if got[1].truncated {
		t.Error("second header should not be truncated")
	}
	if got[1].span.End() != int64(len(data)) {
		t.Errorf("second span ends at %d, want %d", got[1].span.End(), len(data))
	}
}

func TestScanner_ReadError(t *testing.T) {
	errBoom := errors.New("boom")
	r := io.MultiReader(strings.NewReader(twoMessages), iotest.ErrReader(errBoom))

	got, s := scanAll(t, r, ScanOptions{Name: "archive.mbox"})
	if len(got) != 1 {
		t.Fatalf("got %d messages before the error, want 1", len(got))
	}

	var ioErr *model.IOError
	if !errors.As(s.Err(), &ioErr) {
		t.Fatalf("Err() = %v, want *model.IOError", s.Err())
	}
	if ioErr.Path != "archive.mbox" {
		t.Errorf("IOError.Path = %q", ioErr.Path)
	}
	if !errors.Is(s.Err(), errBoom) {
		t.Errorf("Err() does not wrap the read error: %v", s.Err())
	}
	if s.Next() {
		t.Error("Next() after an error should return false")
	}
}

func BenchmarkScanner(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("From sender@example.com Mon Jan  1 10:00:00 2024\n")
		sb.WriteString("From: Sender <sender@example.com>\nSubject: benchmark message\nDate: Mon, 1 Jan 2024 10:00:00 +0000\n\n")
		sb.WriteString(strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit.\n", 40))
		sb.WriteString("\n")
	}
	data := sb.String()

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := NewScanner(strings.NewReader(data), ScanOptions{})
		n := 0
		for s.Next() {
			n++
		}
		if n != 1000 {
			b.Fatalf("scanned %d messages", n)
		}
	}
}
