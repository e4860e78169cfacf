// Package index persists the record list of an archive in a compact binary
// file and loads it back with structural validation.
package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dhcgn/mbox-search/model"
)

const (
	// Magic starts every index file.
	Magic = "MBXI"
	// Version is the current schema version.
	Version = 1

	bufferSize = 64 * 1024
	// An encoded record never takes fewer bytes than this.
	minRecordBytes = 8
)

type fileHeader struct {
	_msgpack struct{} `msgpack:",as_array"`

	Version    int
	SourcePath string
	SourceSize int64
	BuiltAt    int64
	Count      int
}

type fileRecord struct {
	_msgpack struct{} `msgpack:",as_array"`

	Offset  int64
	Length  int64
	Unix    int64
	Zone    int
	HasDate bool
	From    string
	Subject string
}

// Write stores idx at path. The file is written to a temporary sibling and
// renamed into place, so readers see either the previous index or the new
// one.
func Write(path string, idx *model.Index) (err error) {
	if err := Validate(idx.Records, idx.Header.SourceSize); err != nil {
		return fmt.Errorf("refusing to write index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return model.NewIOError("create index", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriterSize(tmp, bufferSize)
	if err = Encode(w, idx); err != nil {
		return model.NewIOError("write index", tmp.Name(), err)
	}
	if err = w.Flush(); err != nil {
		return model.NewIOError("flush index", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return model.NewIOError("sync index", tmp.Name(), err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return model.NewIOError("chmod index", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return model.NewIOError("close index", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return model.NewIOError("rename index", path, err)
	}
	return nil
}

// Encode writes idx in the index file format. The record count is taken
// from idx.Records.
func Encode(w io.Writer, idx *model.Index) error {
	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{Version}); err != nil {
		return err
	}

	enc := msgpack.NewEncoder(w)
	header := fileHeader{
		Version:    Version,
		SourcePath: idx.Header.SourcePath,
		SourceSize: idx.Header.SourceSize,
		Count:      len(idx.Records),
	}
	if !idx.Header.BuiltAt.IsZero() {
		header.BuiltAt = idx.Header.BuiltAt.Unix()
	}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	var fr fileRecord
	for i, rec := range idx.Records {
		fr = fileRecord{
			Offset:  rec.Offset,
			Length:  rec.Length,
			From:    rec.From,
			Subject: rec.Subject,
		}
		if rec.HasDate() {
			_, zone := rec.Date.Zone()
			fr.Unix = rec.Date.Unix()
			fr.Zone = zone
			fr.HasDate = true
		}
		if err := enc.Encode(&fr); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

// Load reads the index at path. It returns model.ErrIndexMissing when the
// file does not exist and model.ErrCorruptIndex when it fails validation.
func Load(path string) (*model.Index, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", model.ErrIndexMissing, path)
	}
	if err != nil {
		return nil, model.NewIOError("open index", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, model.NewIOError("stat index", path, err)
	}

	idx, err := Decode(file, info.Size())
	if err != nil {
		var ioErr *model.IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return nil, err
	}
	return idx, nil
}

// Decode parses an index from r. size is the encoded length, used to reject
// implausible record counts before allocating; pass -1 when unknown.
func Decode(r io.Reader, size int64) (*model.Index, error) {
	src := &trackingReader{r: r}
	br := bufio.NewReaderSize(src, bufferSize)

	corrupt := func(format string, args ...any) error {
		if src.err != nil {
			return model.NewIOError("read index", "", src.err)
		}
		return fmt.Errorf("%w: %s", model.ErrCorruptIndex, fmt.Sprintf(format, args...))
	}

	prefix := make([]byte, len(Magic)+1)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return nil, corrupt("missing file signature")
	}
	if string(prefix[:len(Magic)]) != Magic {
		return nil, corrupt("bad file signature %q", prefix[:len(Magic)])
	}
	if prefix[len(Magic)] != Version {
		return nil, corrupt("unsupported schema version %d", prefix[len(Magic)])
	}

	dec := msgpack.NewDecoder(br)
	var header fileHeader
	if err := dec.Decode(&header); err != nil {
		return nil, corrupt("header: %v", err)
	}
	if header.Version != Version {
		return nil, corrupt("header version %d does not match signature", header.Version)
	}
	if header.Count < 0 || size >= 0 && int64(header.Count) > size/minRecordBytes {
		return nil, corrupt("implausible record count %d", header.Count)
	}

	idx := &model.Index{
		Header: model.IndexHeader{
			Version:    header.Version,
			SourcePath: header.SourcePath,
			SourceSize: header.SourceSize,
			Count:      header.Count,
		},
		Records: make([]model.Record, 0, header.Count),
	}
	if header.BuiltAt != 0 {
		idx.Header.BuiltAt = time.Unix(header.BuiltAt, 0)
	}

	for i := 0; i < header.Count; i++ {
		var fr fileRecord
		if err := dec.Decode(&fr); err != nil {
			return nil, corrupt("record %d of %d: %v", i, header.Count, err)
		}
		rec := model.Record{
			Offset:  fr.Offset,
			Length:  fr.Length,
			From:    fr.From,
			Subject: fr.Subject,
		}
		if fr.HasDate {
			rec.Date = time.Unix(fr.Unix, 0).In(time.FixedZone("", fr.Zone))
		}
		idx.Records = append(idx.Records, rec)
	}

	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return nil, corrupt("trailing data after %d records", header.Count)
	}
	if err := Validate(idx.Records, header.SourceSize); err != nil {
		return nil, corrupt("%v", err)
	}
	return idx, nil
}

// Validate checks that records are ordered, contiguous and non-empty, and
// that they fit inside an archive of sourceSize bytes when it is known.
func Validate(records []model.Record, sourceSize int64) error {
	for i, rec := range records {
		if rec.Offset < 0 || rec.Length <= 0 {
			return fmt.Errorf("record %d has invalid span [%d, +%d)", i, rec.Offset, rec.Length)
		}
		if i > 0 && rec.Offset != records[i-1].Offset+records[i-1].Length {
			return fmt.Errorf("record %d at offset %d is not contiguous with record %d", i, rec.Offset, i-1)
		}
	}
	if n := len(records); n > 0 && sourceSize > 0 && records[n-1].Span().End() > sourceSize {
		return fmt.Errorf("records extend to %d beyond the archive size %d", records[n-1].Span().End(), sourceSize)
	}
	return nil
}

// trackingReader remembers the first read error that is not io.EOF, so that
// decode failures caused by I/O are not reported as corruption.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}
