package convogen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ──────────────────────────────────────────────
// Sinks — full re-serialization on every mutation
// ──────────────────────────────────────────────
//
// A sink persists the whole dataset, not a delta, so an interrupted run
// loses at most the in-flight turn. Persistence errors are surfaced to
// the driver's caller; they imply data-loss risk and must not be
// swallowed.

// Sink persists a dataset snapshot.
type Sink interface {
	Persist(ctx context.Context, ds *Dataset) error
}

// FileSink writes the dataset as JSON via write-then-rename, so a crash
// mid-write never corrupts previously persisted output.
type FileSink struct {
	Path string
}

// NewFileSink builds a sink whose filename carries the run timestamp to
// avoid collisions across runs: name.json → name_20060102-150405.json.
func NewFileSink(dir, name string, now time.Time) *FileSink {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	if ext == "" {
		ext = ".json"
	}
	stamped := fmt.Sprintf("%s_%s%s", stem, now.Format("20060102-150405"), ext)
	return &FileSink{Path: filepath.Join(dir, stamped)}
}

func (s *FileSink) Persist(ctx context.Context, ds *Dataset) error {
	data, err := ds.Marshal()
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename %s: %w", s.Path, err)
	}
	return nil
}

// MultiSink fans one snapshot out to several sinks; the first error wins
// but every sink is still attempted.
type MultiSink []Sink

func (m MultiSink) Persist(ctx context.Context, ds *Dataset) error {
	var firstErr error
	for _, s := range m {
		if err := s.Persist(ctx, ds); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
