package index

import (
	"fmt"
	"path/filepath"

	"github.com/dhcgn/mbox-search/model"
)

// Staleness compares the source hints stored in h with the archive at path,
// whose current size is size. It returns one line per difference. The hints
// are advisory: a differing path alone does not mean the index is outdated.
func Staleness(h model.IndexHeader, path string, size int64) []string {
	var hints []string
	if abs, err := filepath.Abs(path); err == nil && h.SourcePath != "" && filepath.Clean(h.SourcePath) != abs {
		hints = append(hints, fmt.Sprintf("index was built from %s", h.SourcePath))
	}
	switch {
	case size > h.SourceSize:
		hints = append(hints, fmt.Sprintf("archive grew from %d to %d bytes since the index was built, rebuild it to find new messages", h.SourceSize, size))
	case size < h.SourceSize:
		hints = append(hints, fmt.Sprintf("archive shrank from %d to %d bytes since the index was built, rebuild it", h.SourceSize, size))
	}
	return hints
}
