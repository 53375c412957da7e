package compact

import "github.com/opjio/opj/segment"

// entry is one item in the compactor's min-priority queue: a segment
// handle and the priority (record count) it was enqueued with.
type entry[T any] struct {
	seg      *segment.Segment[T]
	priority int
}

// queue is a container/heap min-heap keyed by priority, ties broken
// arbitrarily (heap does not guarantee FIFO among equal priorities).
type queue[T any] []entry[T]

func (q queue[T]) Len() int           { return len(q) }
func (q queue[T]) Less(i, j int) bool { return q[i].priority < q[j].priority }
func (q queue[T]) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue[T]) Push(x any)        { *q = append(*q, x.(entry[T])) }
func (q *queue[T]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
