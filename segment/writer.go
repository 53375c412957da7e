package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opjio/opj/internal/durable"
)

// Writer implements the write-hidden-then-rename publication protocol
// shared by buffer flush and compaction: create "_<id>.opj", append
// records, fsync and close, then Publish renames it to "<id>.opj".
type Writer[T any] struct {
	seg *Segment[T]
	f   *os.File
	buf []byte
	n   int
}

// NewWriter picks a fresh id and creates its hidden file for writing.
func NewWriter[T any](dir string, codec Codec[T]) (*Writer[T], error) {
	id := NewID()
	seg := newHidden(dir, id, codec)
	path := seg.Path()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &Writer[T]{seg: seg, f: f, buf: make([]byte, codec.Size())}, nil
}

// ID returns the identifier of the segment being written.
func (w *Writer[T]) ID() string { return w.seg.id }

// Append encodes and writes one record. Records must be appended in
// non-decreasing order; the writer does not itself enforce this.
func (w *Writer[T]) Append(v T) error {
	if err := w.seg.codec.Encode(v, w.buf); err != nil {
		return fmt.Errorf("encode record %d: %w", w.n, err)
	}
	if _, err := w.f.Write(w.buf); err != nil {
		return fmt.Errorf("write record %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Publish closes and fsyncs the hidden file and renames it to its active
// name, making it visible to readers. On any failure the hidden file is
// left on disk for the next Open's sweep to clean up.
func (w *Writer[T]) Publish() (*Segment[T], error) {
	if err := durable.Sync(w.f); err != nil {
		w.f.Close()
		return nil, fmt.Errorf("sync %s: %w", w.seg.id, err)
	}
	if err := w.f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", w.seg.id, err)
	}
	if err := w.seg.Activate(); err != nil {
		return nil, err
	}
	w.seg.setLength(w.n)
	return w.seg, nil
}

// Abort closes and removes the hidden file without publishing it.
func (w *Writer[T]) Abort() error {
	path := w.seg.Path()
	w.f.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("abort %s: %w", path, err)
	}
	return nil
}

// Sweep removes every hidden segment file ("_*.opj") in dir. It is called
// once, unconditionally, when a journal is opened: it reclaims space from
// writes that crashed between writing and renaming, and from retired
// segments the previous process never finished deleting.
func Sweep(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "_*.opj"))
	if err != nil {
		return fmt.Errorf("sweep %s: %w", dir, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sweep %s: %w", m, err)
		}
	}
	return nil
}
