// Package testutil builds mbox fixtures for tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mboxlib "github.com/emersion/go-mbox"
)

// Msg describes one fixture message. Empty header fields are omitted.
type Msg struct {
	Sender  string
	From    string
	To      string
	Subject string
	Date    string
	Headers []string
	Body    string
}

// Raw renders the message as RFC 5322 text with LF line endings.
func (m Msg) Raw() string {
	var sb strings.Builder
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", name, value)
		}
	}
	field("From", m.From)
	field("To", m.To)
	field("Subject", m.Subject)
	field("Date", m.Date)
	for _, h := range m.Headers {
		sb.WriteString(h)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(m.Body)
	if !strings.HasSuffix(m.Body, "\n") {
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Archive encodes msgs as an mbox stream.
func Archive(t testing.TB, msgs ...Msg) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := mboxlib.NewWriter(&buf)
	received := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	for i, m := range msgs {
		sender := m.Sender
		if sender == "" {
			sender = "sender@example.com"
		}
		mw, err := w.CreateMessage(sender, received.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
		if _, err := io.WriteString(mw, m.Raw()); err != nil {
			t.Fatalf("write message %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close mbox writer: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to name inside a fresh temporary directory and
// returns the full path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteArchive encodes msgs and writes them to name in a temporary directory.
func WriteArchive(t testing.TB, name string, msgs ...Msg) string {
	t.Helper()
	return WriteFile(t, name, Archive(t, msgs...))
}
