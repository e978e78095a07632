// Package buffer implements the in-memory ingestion queue shared between the
// usage agent's add_report front door and its periodic flusher.
package buffer

import "sync"

// Buffer is an unbounded, thread-safe FIFO queue of pending items. Growth is
// bounded in practice by the owner's flush cadence and size trigger, not by
// the Buffer itself.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates an empty Buffer.
func New[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// Push appends item and returns the queue length immediately after the
// append. Safe for concurrent callers, including a concurrent Drain.
func (b *Buffer[T]) Push(item T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return len(b.items)
}

// Drain atomically removes and returns every item currently queued, in
// insertion order. Two concurrent drains never observe overlapping slices:
// whichever acquires the lock first takes everything queued so far, the
// other sees an empty result.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	drained := b.items
	b.items = nil
	return drained
}

// Len reports the number of items currently queued. Intended for
// observability only; the result may be stale by the time the caller acts on
// it.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
