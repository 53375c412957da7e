package opj

import (
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/opjio/opj/internal/durable"
	"github.com/opjio/opj/segment"
)

// bufferFileName is the companion crash log for the in-memory buffer.
const bufferFileName = "buffer"

// buffer is the in-memory sorted write-staging area plus its on-disk
// crash log, written in insertion order. Sorting happens only at Flush
// time — the log is never rewritten per append.
type buffer[T any] struct {
	dir   string
	codec Codec[T]
	items []T
	file  *os.File
	enc   []byte // scratch, reused across Append calls
}

func openBuffer[T any](dir string, codec Codec[T]) (*buffer[T], error) {
	b := &buffer[T]{dir: dir, codec: codec, enc: make([]byte, codec.Size())}
	if err := b.recover(); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, bufferFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, journalErrf("open buffer", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, journalErrf("seek buffer", path, err)
	}
	b.file = f
	return b, nil
}

// recover replays the companion file into the in-memory sequence. A
// trailing short block (a torn last record) is discarded and the file is
// truncated to drop it, so future appends resume cleanly.
func (b *buffer[T]) recover() error {
	path := filepath.Join(b.dir, bufferFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return journalErrf("read buffer", path, err)
	}

	size := b.codec.Size()
	whole := (len(data) / size) * size
	for off := 0; off < whole; off += size {
		v, err := b.codec.Decode(data[off : off+size])
		if err != nil {
			// A well-formed-length block that still fails to decode is
			// corruption, not a torn write; stop here rather than risk
			// misordering the rest.
			break
		}
		b.insertSorted(v)
	}

	if whole < len(data) {
		if err := os.Truncate(path, int64(whole)); err != nil {
			return journalErrf("truncate buffer", path, err)
		}
	}
	return nil
}

func (b *buffer[T]) insertSorted(v T) {
	i, _ := slices.BinarySearchFunc(b.items, v, b.codec.Compare)
	b.items = slices.Insert(b.items, i, v)
}

// Append inserts v into the sorted in-memory sequence and appends its
// encoding, unsorted, to the companion file, fsyncing before returning.
// It returns the new in-memory length.
func (b *buffer[T]) Append(v T) (int, error) {
	b.insertSorted(v)
	n := len(b.items)
	if err := b.codec.Encode(v, b.enc); err != nil {
		return n, recordErrf("encode", n-1, err)
	}
	if _, err := b.file.Write(b.enc); err != nil {
		return n, recordErrf("write", n-1, err)
	}
	if err := durable.Sync(b.file); err != nil {
		return n, recordErrf("sync", n-1, err)
	}
	return n, nil
}

// Len returns the current in-memory record count.
func (b *buffer[T]) Len() int { return len(b.items) }

// Snapshot returns a copy of the current sorted sequence, safe to read
// without holding the journal's append lock.
func (b *buffer[T]) Snapshot() []T {
	return slices.Clone(b.items)
}

// Flush writes the buffer's sorted contents to a new segment via the
// publication protocol, then empties the buffer and truncates its
// companion file. On any failure before publication, the in-memory
// buffer is left untouched; the hidden segment file is removed if a record
// write fails, and left for the next Open's sweep if Publish fails.
func (b *buffer[T]) Flush() (*segment.Segment[T], error) {
	w, err := segment.NewWriter[T](b.dir, b.codec)
	if err != nil {
		return nil, err
	}
	for _, v := range b.items {
		if err := w.Append(v); err != nil {
			w.Abort()
			return nil, err
		}
	}
	seg, err := w.Publish()
	if err != nil {
		return nil, err
	}

	b.items = b.items[:0]
	if err := b.file.Truncate(0); err != nil {
		return seg, journalErrf("truncate buffer", b.dir, err)
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return seg, journalErrf("seek buffer", b.dir, err)
	}
	return seg, nil
}

// Iterate returns a lazy sequence over a snapshot of the current sorted
// contents, in order.
func (b *buffer[T]) Iterate() iter.Seq[T] {
	items := b.Snapshot()
	return func(yield func(T) bool) {
		for _, v := range items {
			if !yield(v) {
				return
			}
		}
	}
}

// Select returns a lazy sequence over a snapshot's records r such that
// lo <= r <= hi, resolving both bounds with binary search. A nil bound is
// unbounded on that side.
func (b *buffer[T]) Select(lo, hi *T) iter.Seq[T] {
	items := b.Snapshot()
	from := 0
	if lo != nil {
		from = sort.Search(len(items), func(i int) bool {
			return b.codec.Compare(items[i], *lo) >= 0
		})
	}
	to := len(items)
	if hi != nil {
		to = sort.Search(len(items), func(i int) bool {
			return b.codec.Compare(items[i], *hi) > 0
		})
	}
	return func(yield func(T) bool) {
		for i := from; i < to; i++ {
			if !yield(items[i]) {
				return
			}
		}
	}
}

// Close closes the companion file handle.
func (b *buffer[T]) Close() error {
	return b.file.Close()
}
