// Package mbox reads mbox archives: it locates message boundaries, extracts
// header metadata and decodes single messages for display.
package mbox

import (
	"errors"
	"fmt"
	"io"
	"os"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mbox-search/model"
)

// CountMessages counts the messages in an mbox file using an independent
// reader. It is used to cross-check an index against its archive.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, model.NewIOError("open", path, err)
	}
	defer file.Close()

	return countMessages(file)
}

func countMessages(r io.Reader) (int, error) {
	reader := mboxlib.NewReader(r)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, fmt.Errorf("message %d: %w", count, err)
		}

		// A read error inside one message still counts it.
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}

// ReadSpan reads the raw bytes of span from the archive at r into buf,
// growing it when needed.
func ReadSpan(r io.ReaderAt, span model.Span, buf []byte) ([]byte, error) {
	if int64(cap(buf)) < span.Length {
		buf = make([]byte, span.Length)
	}
	buf = buf[:span.Length]
	if _, err := io.ReadFull(io.NewSectionReader(r, span.Offset, span.Length), buf); err != nil {
		return nil, err
	}
	return buf, nil
}
