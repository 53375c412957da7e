// Package segment implements the immutable, sorted, fixed-width on-disk
// run that the journal calls a segment: write-hidden-then-rename
// publication, retire-then-unlink garbage collection gated on a live
// reader count, and binary-search range selection.
package segment

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrOutOfRange is returned by Get for an index outside [0, Len).
var ErrOutOfRange = errors.New("segment: index out of range")

// Codec is the subset of opj.Codec a segment needs. Any opj.Codec[T]
// satisfies this interface structurally.
type Codec[T any] interface {
	Size() int
	Encode(v T, buf []byte) error
	Decode(buf []byte) (T, error)
	Compare(a, b T) int
}

// Segment is a handle to one on-disk run. It is safe for concurrent use:
// OpenForRead/Reader.Release are reference-counted so Retire never unlinks
// a file while a Reader is still open on it, and Activate/Retire serialize
// against concurrent OpenForRead via mu.
type Segment[T any] struct {
	dir   string
	codec Codec[T]
	id    string

	mu      sync.Mutex
	hidden  bool
	retired bool
	refs    int
	length  int // cached record count once known; -1 if not yet known
}

// NewID returns a fresh, collision-resistant segment identifier.
func NewID() string {
	return uuid.New().String()
}

// newHidden creates a Segment handle for a not-yet-published file, born
// under its hidden name "_<id>.opj".
func newHidden[T any](dir, id string, codec Codec[T]) *Segment[T] {
	return &Segment[T]{dir: dir, codec: codec, id: id, hidden: true, length: -1}
}

// Open wraps an existing, already-active segment file on disk (used when
// rebuilding the segment set on Open). length, if known (e.g. from a prior
// stat), avoids a redundant stat on first use; pass -1 if unknown.
func Open[T any](dir, id string, codec Codec[T], length int) *Segment[T] {
	return &Segment[T]{dir: dir, codec: codec, id: id, hidden: false, length: length}
}

// ID returns the segment's stable identifier, independent of its current
// hidden/active name.
func (s *Segment[T]) ID() string { return s.id }

func (s *Segment[T]) pathLocked() string {
	name := s.id + ".opj"
	if s.hidden {
		name = "_" + name
	}
	return filepath.Join(s.dir, name)
}

// Path returns the segment's current on-disk path.
func (s *Segment[T]) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathLocked()
}

// IsHidden reports whether the segment is currently under its hidden name
// (not yet activated, or retired).
func (s *Segment[T]) IsHidden() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hidden
}

// Length returns the cached record count, or -1 if it has never been
// determined (call OpenForRead once to learn it).
func (s *Segment[T]) Length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

func (s *Segment[T]) setLength(n int) {
	s.mu.Lock()
	s.length = n
	s.mu.Unlock()
}

// Activate renames the segment's hidden file to its active name. It is
// called once, by the writer that produced the file, before anyone else
// can have a handle on it — so it never races a Reader.
func (s *Segment[T]) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hidden {
		return nil
	}
	oldPath := s.pathLocked()
	s.hidden = false
	newPath := s.pathLocked()
	if err := os.Rename(oldPath, newPath); err != nil {
		s.hidden = true
		return fmt.Errorf("activate %s: %w", s.id, err)
	}
	return nil
}

// Retire renames the segment back to its hidden name. Readers that already
// hold an open Reader keep working; the file is unlinked once the last of
// them calls Release (or immediately, if none are outstanding).
func (s *Segment[T]) Retire() error {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil
	}
	oldPath := s.pathLocked()
	s.hidden = true
	newPath := s.pathLocked()
	if err := os.Rename(oldPath, newPath); err != nil {
		s.hidden = false
		s.mu.Unlock()
		return fmt.Errorf("retire %s: %w", s.id, err)
	}
	s.retired = true
	destroyNow := s.refs == 0
	s.mu.Unlock()
	if destroyNow {
		return s.destroy()
	}
	return nil
}

// DestroyIfRetired unlinks the segment's file if and only if it is
// currently hidden because it was retired (not merely unpublished) and no
// reader holds it open. It is a no-op otherwise.
func (s *Segment[T]) DestroyIfRetired() error {
	s.mu.Lock()
	if !s.retired || s.refs != 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.destroy()
}

func (s *Segment[T]) destroy() error {
	s.mu.Lock()
	path := s.pathLocked()
	s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("destroy %s: %w", s.id, err)
	}
	return nil
}

// Reader is a scoped read acquisition on a Segment: it holds an open file
// handle and the segment's record count. Release must be called on every
// exit path; it is safe to defer.
type Reader[T any] struct {
	seg    *Segment[T]
	f      *os.File
	length int
}

// OpenForRead is a scoped acquisition: it opens the segment's current file
// read-only and counts its records. Concurrent OpenForRead calls by
// multiple holders are permitted.
func (s *Segment[T]) OpenForRead() (*Reader[T], error) {
	s.mu.Lock()
	path := s.pathLocked()
	f, err := os.Open(path)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.refs++
	s.mu.Unlock()

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		s.release()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := s.codec.Size()
	length := int(fi.Size() / int64(size))
	s.setLength(length)

	return &Reader[T]{seg: s, f: f, length: length}, nil
}

func (s *Segment[T]) release() {
	s.mu.Lock()
	s.refs--
	destroyNow := s.retired && s.refs == 0
	s.mu.Unlock()
	if destroyNow {
		s.destroy()
	}
}

// Len returns the number of records in the segment.
func (r *Reader[T]) Len() int { return r.length }

// Release closes the underlying file and drops the segment's reference
// count. It is safe to call more than once.
func (r *Reader[T]) Release() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.seg.release()
	return err
}

// Get returns the i-th record, 0 <= i < Len.
func (r *Reader[T]) Get(i int) (T, error) {
	var zero T
	if i < 0 || i >= r.length {
		return zero, fmt.Errorf("get %d of %d: %w", i, r.length, ErrOutOfRange)
	}
	size := r.seg.codec.Size()
	buf := make([]byte, size)
	if _, err := r.f.ReadAt(buf, int64(i)*int64(size)); err != nil {
		return zero, fmt.Errorf("read record %d: %w", i, err)
	}
	return r.seg.codec.Decode(buf)
}

// Iterate returns a lazy, single-pass sequence of every record, in file
// (sorted) order.
func (r *Reader[T]) Iterate() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < r.length; i++ {
			v, err := r.Get(i)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Select returns a lazy sequence of records r such that lo <= r <= hi,
// using two binary searches to resolve the bounds in O(log Len) seeks. A
// nil bound is unbounded on that side.
func (r *Reader[T]) Select(lo, hi *T) iter.Seq[T] {
	from, to := r.bounds(lo, hi)
	return func(yield func(T) bool) {
		for i := from; i < to; i++ {
			v, err := r.Get(i)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

func (r *Reader[T]) bounds(lo, hi *T) (from, to int) {
	from = 0
	if lo != nil {
		from = sort.Search(r.length, func(i int) bool {
			v, err := r.Get(i)
			if err != nil {
				return true
			}
			return r.seg.codec.Compare(v, *lo) >= 0
		})
	}
	to = r.length
	if hi != nil {
		to = sort.Search(r.length, func(i int) bool {
			v, err := r.Get(i)
			if err != nil {
				return true
			}
			return r.seg.codec.Compare(v, *hi) > 0
		})
	}
	return
}
