package model

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexMissing is returned when no index exists for an archive yet.
	// The archive has to be indexed with the build command first.
	ErrIndexMissing = errors.New("index not found")

	// ErrCorruptIndex is returned when an index file fails structural
	// validation. The index has to be rebuilt.
	ErrCorruptIndex = errors.New("index is corrupt, rebuild it")
)

// IOError reports an archive or index file that could not be accessed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError wraps err unless it is nil or already an *IOError.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// WarningKind classifies non-fatal per-message anomalies.
type WarningKind string

const (
	// WarnParse marks an unparsable Date header or a malformed header block.
	WarnParse WarningKind = "parse_warning"
	// WarnDecode marks bytes that had to be replaced while decoding.
	WarnDecode WarningKind = "decode_fallback"
)

// Warning is a non-fatal anomaly absorbed into a record.
type Warning struct {
	Kind   WarningKind
	Offset int64
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s at offset %d: %s", w.Kind, w.Offset, w.Detail)
}
