package mbox

import (
	"bufio"
	"bytes"
	"context"
	"os"

	"github.com/dhcgn/mbox-search/model"
)

// Content returns the RFC 5322 message of a raw record, without its
// delimiter line.
func Content(raw []byte) []byte {
	return stripDelimiter(raw)
}

// FileSink writes exported records to an mbox file, byte for byte. A blank
// line is added after a record that does not end with one, so the output
// stays splittable in strict mode.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	count  int
}

// CreateFile creates or truncates the mbox file at path.
func CreateFile(path string) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, model.NewIOError("create export", path, err)
	}
	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriterSize(file, DefaultBufferSize),
	}, nil
}

// Export appends msg to the file.
func (s *FileSink) Export(_ context.Context, msg model.RawMessage) error {
	if _, err := s.writer.Write(msg.Raw); err != nil {
		return model.NewIOError("write export", s.path, err)
	}
	var tail []byte
	switch {
	case bytes.HasSuffix(msg.Raw, []byte("\n\n")), bytes.HasSuffix(msg.Raw, []byte("\r\n\r\n")):
	case bytes.HasSuffix(msg.Raw, []byte("\n")):
		tail = []byte("\n")
	default:
		tail = []byte("\n\n")
	}
	if _, err := s.writer.Write(tail); err != nil {
		return model.NewIOError("write export", s.path, err)
	}
	s.count++
	return nil
}

// Count returns the number of records written.
func (s *FileSink) Count() int {
	return s.count
}

// Close flushes and syncs the file.
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	defer func() {
		s.file = nil
	}()

	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		return model.NewIOError("flush export", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return model.NewIOError("sync export", s.path, err)
	}
	if err := s.file.Close(); err != nil {
		return model.NewIOError("close export", s.path, err)
	}
	return nil
}
