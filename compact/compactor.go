// Package compact implements the background two-way merge compactor. It
// owns its own priority queue and never reaches back into the journal
// façade: the façade pushes newly-activated segments in via Enqueue and
// drains merge outcomes from Results, keeping the two sides decoupled
// (see Journal.drainCompactions in package opj).
package compact

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opjio/opj/segment"
)

// Codec is the subset of opj.Codec a compactor needs.
type Codec[T any] interface {
	Size() int
	Encode(v T, buf []byte) error
	Decode(buf []byte) (T, error)
	Compare(a, b T) int
}

// Result is the outcome of merging two segments: Output replaces Retired,
// which together held exactly the same multiset of records.
type Result[T any] struct {
	Output  *segment.Segment[T]
	Retired [2]*segment.Segment[T]
	Length  int
}

// Compactor runs one background worker that repeatedly merges the two
// lowest-priority (smallest) enqueued segments into one.
type Compactor[T any] struct {
	dir     string
	codec   Codec[T]
	logger  *slog.Logger
	backoff time.Duration

	mu    sync.Mutex
	queue queue[T]

	wake chan struct{}
	out  chan Result[T]
	stop chan struct{}
	wg   sync.WaitGroup
}

// New starts a compactor's worker goroutine. Call Close to stop it.
func New[T any](dir string, codec Codec[T], logger *slog.Logger, backoff time.Duration) *Compactor[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	c := &Compactor[T]{
		dir:     dir,
		codec:   codec,
		logger:  logger,
		backoff: backoff,
		wake:    make(chan struct{}, 1),
		out:     make(chan Result[T]),
		stop:    make(chan struct{}),
	}
	heap.Init(&c.queue)
	c.wg.Add(1)
	go c.run()
	return c
}

// Enqueue adds a segment to the compaction queue with the given priority
// (its record count).
func (c *Compactor[T]) Enqueue(seg *segment.Segment[T], priority int) {
	c.mu.Lock()
	heap.Push(&c.queue, entry[T]{seg: seg, priority: priority})
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Results returns the channel of merge outcomes. The caller must drain it
// until it is closed (which happens once Close has stopped the worker).
func (c *Compactor[T]) Results() <-chan Result[T] { return c.out }

// Close stops the worker after its current merge, if any, publishes, then
// closes Results.
func (c *Compactor[T]) Close() {
	close(c.stop)
	c.wg.Wait()
	close(c.out)
}

func (c *Compactor[T]) dequeueTwo() (entry[T], entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Len() < 2 {
		return entry[T]{}, entry[T]{}, false
	}
	a := heap.Pop(&c.queue).(entry[T])
	b := heap.Pop(&c.queue).(entry[T])
	return a, b, true
}

func (c *Compactor[T]) requeue(a, b entry[T]) {
	c.mu.Lock()
	heap.Push(&c.queue, a)
	heap.Push(&c.queue, b)
	c.mu.Unlock()
}

func (c *Compactor[T]) run() {
	defer c.wg.Done()
	for {
		a, b, ok := c.dequeueTwo()
		if !ok {
			select {
			case <-c.wake:
				continue
			case <-c.stop:
				return
			}
		}

		res, err := c.merge(a, b)
		if err != nil {
			c.logger.Error("compaction failed", "err", err, "a", a.seg.ID(), "b", b.seg.ID())
			c.requeue(a, b)
			select {
			case <-time.After(c.backoff):
			case <-c.stop:
				return
			}
			continue
		}

		select {
		case c.out <- res:
		case <-c.stop:
			return
		}
	}
}

// merge performs the O(|A|+|B|) streaming two-way merge and publishes the
// result. Ties favor b's record, per the journal's documented tie-break.
func (c *Compactor[T]) merge(a, b entry[T]) (Result[T], error) {
	ra, err := a.seg.OpenForRead()
	if err != nil {
		return Result[T]{}, fmt.Errorf("open %s for merge: %w", a.seg.ID(), err)
	}
	defer ra.Release()

	rb, err := b.seg.OpenForRead()
	if err != nil {
		return Result[T]{}, fmt.Errorf("open %s for merge: %w", b.seg.ID(), err)
	}
	defer rb.Release()

	w, err := segment.NewWriter[T](c.dir, c.codec)
	if err != nil {
		return Result[T]{}, fmt.Errorf("create merge output: %w", err)
	}

	na, nb := ra.Len(), rb.Len()
	i, j, length := 0, 0, 0
	for i < na || j < nb {
		switch {
		case i >= na:
			v, err := rb.Get(j)
			if err != nil {
				w.Abort()
				return Result[T]{}, err
			}
			if err := w.Append(v); err != nil {
				w.Abort()
				return Result[T]{}, err
			}
			j++
		case j >= nb:
			v, err := ra.Get(i)
			if err != nil {
				w.Abort()
				return Result[T]{}, err
			}
			if err := w.Append(v); err != nil {
				w.Abort()
				return Result[T]{}, err
			}
			i++
		default:
			va, err := ra.Get(i)
			if err != nil {
				w.Abort()
				return Result[T]{}, err
			}
			vb, err := rb.Get(j)
			if err != nil {
				w.Abort()
				return Result[T]{}, err
			}
			if c.codec.Compare(va, vb) < 0 {
				if err := w.Append(va); err != nil {
					w.Abort()
					return Result[T]{}, err
				}
				i++
			} else {
				if err := w.Append(vb); err != nil {
					w.Abort()
					return Result[T]{}, err
				}
				j++
			}
		}
		length++
	}

	out, err := w.Publish()
	if err != nil {
		return Result[T]{}, fmt.Errorf("publish merge output: %w", err)
	}

	if err := a.seg.Retire(); err != nil {
		return Result[T]{}, fmt.Errorf("retire %s: %w", a.seg.ID(), err)
	}
	if err := b.seg.Retire(); err != nil {
		return Result[T]{}, fmt.Errorf("retire %s: %w", b.seg.ID(), err)
	}

	return Result[T]{Output: out, Retired: [2]*segment.Segment[T]{a.seg, b.seg}, Length: length}, nil
}
