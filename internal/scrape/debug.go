package scrape

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ArtifactDir stores failure captures under one directory, named by cycle
// timestamp so writes never collide. The directory is bounded: once the file
// count exceeds the cap, the oldest files are evicted.
type ArtifactDir struct {
	dir    string
	max    int
	logger *slog.Logger
}

// NewArtifactDir creates the directory if needed. max bounds the number of
// files kept (an .html and a .png from the same cycle count separately).
func NewArtifactDir(dir string, max int, logger *slog.Logger) (*ArtifactDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scrape: artifact dir: %w", err)
	}
	if max <= 0 {
		max = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactDir{dir: dir, max: max, logger: logger}, nil
}

// Write stores the raw document and, when present, a screenshot for the cycle
// stamped ts. Either may be nil; at least one file is written when any data
// is available.
func (d *ArtifactDir) Write(ts time.Time, doc, screenshot []byte) error {
	stamp := ts.UTC().Format("20060102T150405.000")

	if doc != nil {
		path := filepath.Join(d.dir, stamp+".html")
		if err := os.WriteFile(path, doc, 0o644); err != nil {
			return fmt.Errorf("scrape: write artifact %s: %w", path, err)
		}
	}
	if screenshot != nil {
		path := filepath.Join(d.dir, stamp+".png")
		if err := os.WriteFile(path, screenshot, 0o644); err != nil {
			return fmt.Errorf("scrape: write artifact %s: %w", path, err)
		}
	}

	d.evict()
	return nil
}

// evict removes the oldest files until the directory is back under the cap.
// Timestamp-prefixed names sort chronologically, so name order is age order.
func (d *ArtifactDir) evict() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn("scrape: artifact eviction scan", "error", err)
		return
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= d.max {
		return
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-d.max] {
		if err := os.Remove(filepath.Join(d.dir, name)); err != nil {
			d.logger.Warn("scrape: artifact eviction", "file", name, "error", err)
		}
	}
}
