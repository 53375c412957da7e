// Package opj implements an embedded, append-only, ordered persistent
// journal: an LSM-style store that ingests fixed-width record tuples,
// keeps them durably on the local filesystem as an in-memory sorted
// buffer plus immutable sorted segment files, and exposes them as one
// logically-sorted sequence that can be iterated in order or range-
// queried. Records are never updated or deleted.
//
// A journal directory holds a schema descriptor file ("fmt"), a mutable
// buffer file ("buffer"), and zero or more immutable segment files named
// "<uuid>.opj"; a file whose name begins with "_" is hidden — in-flight
// or retired — and is ignored by readers and swept away on the next Open.
//
// # Concurrency
//
// Concurrent Appends are serialized by an internal lock. Iterate, Select,
// Contains, and Len read the buffer without taking that lock, so they must
// not run concurrently with Append; callers that mix them across
// goroutines need external serialization. The
// background compactor runs on its own goroutine for the journal's
// lifetime, merging the two smallest segments whenever at least two are
// queued, and never blocks a reader: an iterator snapshots the segment
// set at the start of the call and holds each segment open for its
// lifetime, so a concurrent compaction retiring one of those segments
// does not invalidate the iteration in progress.
package opj

import (
	"container/heap"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opjio/opj/compact"
	"github.com/opjio/opj/segment"
)

const schemaFileName = "fmt"

// Journal is the façade over a buffer, a set of immutable segments, and a
// background compactor, exposing their union as one ordered sequence.
type Journal[T any] struct {
	dir    string
	codec  Codec[T]
	opts   Options
	logger *slog.Logger

	appendMu sync.Mutex
	buf      *buffer[T]

	segMu    sync.RWMutex
	segments map[string]*segment.Segment[T]

	compactor *compact.Compactor[T]
	drainWG   sync.WaitGroup

	closeOnce sync.Once
}

// New creates a new journal directory at dir and opens it. It fails with
// ErrJournalAlreadyExists if dir exists and is non-empty.
func New[T any](dir string, codec Codec[T], opts Options) (*Journal[T], error) {
	opts.setDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, journalErrf("mkdir", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, journalErrf("read", dir, err)
	}
	if len(entries) > 0 {
		return nil, journalErrf("new", dir, ErrJournalAlreadyExists)
	}

	schemaPath := filepath.Join(dir, schemaFileName)
	if err := os.WriteFile(schemaPath, []byte(codec.Descriptor()), 0o644); err != nil {
		return nil, journalErrf("write schema", schemaPath, err)
	}

	return open(dir, codec, opts, nil)
}

// Open opens an existing journal directory. It fails with
// ErrJournalNotFound if dir or its schema descriptor file is missing, and
// with ErrSchemaMismatch if the persisted descriptor disagrees with
// codec.Descriptor(). Any "_*.opj" files left behind by a crashed or
// unclean previous process are unlinked before the segment set is
// rebuilt from the remaining "*.opj" files.
func Open[T any](dir string, codec Codec[T], opts Options) (*Journal[T], error) {
	opts.setDefaults()

	schemaPath := filepath.Join(dir, schemaFileName)
	persisted, err := os.ReadFile(schemaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, journalErrf("open", dir, ErrJournalNotFound)
		}
		return nil, journalErrf("read schema", schemaPath, err)
	}
	if string(persisted) != codec.Descriptor() {
		return nil, &JournalError{
			Op: "open", Path: dir,
			Detail: fmt.Sprintf("persisted %q, codec wants %q", persisted, codec.Descriptor()),
			Err:    ErrSchemaMismatch,
		}
	}

	if err := segment.Sweep(dir); err != nil {
		return nil, journalErrf("sweep", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, journalErrf("read", dir, err)
	}
	var existing []*segment.Segment[T]
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".opj") {
			continue
		}
		id := strings.TrimSuffix(name, ".opj")
		existing = append(existing, segment.Open(dir, id, codec, -1))
	}

	return open(dir, codec, opts, existing)
}

func open[T any](dir string, codec Codec[T], opts Options, existing []*segment.Segment[T]) (*Journal[T], error) {
	buf, err := openBuffer(dir, codec)
	if err != nil {
		return nil, err
	}

	j := &Journal[T]{
		dir:      dir,
		codec:    codec,
		opts:     opts,
		logger:   opts.Logger,
		buf:      buf,
		segments: make(map[string]*segment.Segment[T]),
	}

	j.compactor = compact.New[T](dir, codec, opts.Logger, opts.CompactionBackoff)
	j.drainWG.Add(1)
	go j.drainCompactions()

	for _, seg := range existing {
		r, err := seg.OpenForRead()
		if err != nil {
			return nil, err
		}
		length := r.Len()
		r.Release()
		j.segments[seg.ID()] = seg
		j.compactor.Enqueue(seg, length)
	}

	if opts.Verbose {
		j.logger.LogAttrs(opts.Context, slog.LevelDebug, "opj: opened journal",
			slog.String("dir", dir), slog.Int("segments", len(existing)), slog.Int("buffered", buf.Len()))
	}

	return j, nil
}

// drainCompactions runs for the journal's lifetime, applying each merge
// outcome to the segment set and re-enqueueing the output so compaction
// keeps converging. It is the façade's half of the message-passing
// protocol that replaces a direct compactor->journal back-reference.
func (j *Journal[T]) drainCompactions() {
	defer j.drainWG.Done()
	for res := range j.compactor.Results() {
		j.segMu.Lock()
		delete(j.segments, res.Retired[0].ID())
		delete(j.segments, res.Retired[1].ID())
		j.segments[res.Output.ID()] = res.Output
		j.segMu.Unlock()

		if j.opts.Verbose {
			j.logger.LogAttrs(j.opts.Context, slog.LevelDebug, "opj: compacted segments",
				slog.String("a", res.Retired[0].ID()), slog.String("b", res.Retired[1].ID()),
				slog.String("out", res.Output.ID()), slog.Int("length", res.Length))
		}

		j.compactor.Enqueue(res.Output, res.Length)
	}
}

// Append inserts v into the buffer, flushing to a new segment and
// enqueueing it for compaction if that pushes the buffer over
// Options.MaxBufferSize. The priority a freshly-flushed segment is
// enqueued with equals its pre-flush buffer length, which is exactly its
// record count.
func (j *Journal[T]) Append(v T) error {
	j.appendMu.Lock()
	defer j.appendMu.Unlock()

	n, err := j.buf.Append(v)
	if err != nil {
		return err
	}
	if n <= j.opts.MaxBufferSize {
		return nil
	}

	seg, err := j.buf.Flush()
	if err != nil {
		return err
	}

	j.segMu.Lock()
	j.segments[seg.ID()] = seg
	j.segMu.Unlock()

	j.compactor.Enqueue(seg, n)
	return nil
}

// snapshotSegments copies the current segment set and takes a
// read-acquisition on every segment in it, for use by Iterate/Select (the
// buffer is snapshotted separately, by sources). The caller must
// release every segment.Reader in the returned slice (done automatically
// by the k-way merge as each source is exhausted or abandoned).
func (j *Journal[T]) snapshotSegments() []*segment.Reader[T] {
	j.segMu.RLock()
	segs := make([]*segment.Segment[T], 0, len(j.segments))
	for _, s := range j.segments {
		segs = append(segs, s)
	}
	j.segMu.RUnlock()

	readers := make([]*segment.Reader[T], 0, len(segs))
	for _, s := range segs {
		r, err := s.OpenForRead()
		if err != nil {
			// The segment may have been retired and unlinked between the
			// snapshot and the open; skip it — its records survive in
			// whatever replaced it.
			continue
		}
		readers = append(readers, r)
	}
	return readers
}

type mergeSource[T any] struct {
	next    func() (T, bool)
	release func()
}

type mergeItem[T any] struct {
	value T
	src   *mergeSource[T]
}

type mergeHeap[T any] struct {
	items []mergeItem[T]
	cmp   func(a, b T) int
}

func (h *mergeHeap[T]) Len() int            { return len(h.items) }
func (h *mergeHeap[T]) Less(i, j int) bool  { return h.cmp(h.items[i].value, h.items[j].value) < 0 }
func (h *mergeHeap[T]) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap[T]) Push(x any)          { h.items = append(h.items, x.(mergeItem[T])) }
func (h *mergeHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// kwayMerge streams the smallest head across all sources in order,
// releasing each source as it is exhausted, and all remaining sources if
// the consumer stops early.
func (j *Journal[T]) kwayMerge(sources []*mergeSource[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		h := &mergeHeap[T]{cmp: j.codec.Compare}
		releaseAll := func(remaining []mergeItem[T]) {
			for _, it := range remaining {
				it.src.release()
			}
		}

		for _, src := range sources {
			if v, ok := src.next(); ok {
				heap.Push(h, mergeItem[T]{value: v, src: src})
			} else {
				src.release()
			}
		}

		for h.Len() > 0 {
			it := heap.Pop(h).(mergeItem[T])
			if !yield(it.value) {
				it.src.release()
				releaseAll(h.items)
				return
			}
			if v, ok := it.src.next(); ok {
				heap.Push(h, mergeItem[T]{value: v, src: it.src})
			} else {
				it.src.release()
			}
		}
	}
}

func (j *Journal[T]) sources(lo, hi *T) []*mergeSource[T] {
	readers := j.snapshotSegments()
	sources := make([]*mergeSource[T], 0, len(readers)+1)

	var bufSeq iter.Seq[T]
	if lo == nil && hi == nil {
		bufSeq = j.buf.Iterate()
	} else {
		bufSeq = j.buf.Select(lo, hi)
	}
	next, stop := iter.Pull(bufSeq)
	sources = append(sources, &mergeSource[T]{next: next, release: stop})

	for _, r := range readers {
		var seq iter.Seq[T]
		if lo == nil && hi == nil {
			seq = r.Iterate()
		} else {
			seq = r.Select(lo, hi)
		}
		next, stop := iter.Pull(seq)
		reader := r
		sources = append(sources, &mergeSource[T]{
			next: next,
			release: func() {
				stop()
				reader.Release()
			},
		})
	}
	return sources
}

// Iterate returns the journal's full contents as one non-decreasing
// sequence, merging the buffer and a snapshot of the current segment set.
func (j *Journal[T]) Iterate() iter.Seq[T] {
	return j.kwayMerge(j.sources(nil, nil))
}

// Select returns the subsequence with lo <= r <= hi, merged across the
// buffer and segments from their own Select. Either bound may be nil for
// unbounded.
func (j *Journal[T]) Select(lo, hi *T) iter.Seq[T] {
	return j.kwayMerge(j.sources(lo, hi))
}

// Contains reports whether v is present, via Select(v, v).
func (j *Journal[T]) Contains(v T) bool {
	for range j.Select(&v, &v) {
		return true
	}
	return false
}

// Len returns the sum of the buffer length and every segment's record
// count at the time of the call. It is advisory: unlike Iterate, it is
// not a single consistent snapshot against concurrent compaction.
func (j *Journal[T]) Len() int {
	n := j.buf.Len()
	j.segMu.RLock()
	segs := make([]*segment.Segment[T], 0, len(j.segments))
	for _, s := range j.segments {
		segs = append(segs, s)
	}
	j.segMu.RUnlock()
	for _, s := range segs {
		if l := s.Length(); l >= 0 {
			n += l
			continue
		}
		r, err := s.OpenForRead()
		if err != nil {
			continue
		}
		n += r.Len()
		r.Release()
	}
	return n
}

// Close stops the background compactor, waits for its current merge (if
// any) to finish and publish, waits for the drain goroutine to exit, and
// closes the buffer's companion file. A merge result that the worker has
// not handed over when it sees the stop signal is not applied to the
// in-memory segment set; its files are already on disk. Close is
// idempotent.
func (j *Journal[T]) Close() error {
	var err error
	j.closeOnce.Do(func() {
		j.compactor.Close()
		j.drainWG.Wait()
		err = j.buf.Close()
	})
	return err
}
