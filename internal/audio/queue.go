package audio

import (
	"sync"
	"time"
)

// PopResult tells the consumer what Pop produced
type PopResult int

const (
	PopChunk   PopResult = iota // A chunk was returned
	PopEnd                      // The queue is closed and drained
	PopTimeout                  // Nothing arrived within the timeout
)

func (r PopResult) String() string {
	switch r {
	case PopChunk:
		return "chunk"
	case PopEnd:
		return "end"
	case PopTimeout:
		return "timeout"
	}
	return "unknown"
}

// Queue is the per-session FIFO between the socket reader and the
// recognition stream. Producers never block. A single consumer pops
// with a timeout so it can observe cancellation between chunks.
type Queue struct {
	mu        sync.Mutex
	items     [][]byte
	closed    bool
	maxChunks int // 0 means unbounded; otherwise the oldest chunk is dropped on overflow
	dropped   int

	signal    chan struct{} // capacity 1, nudges a waiting consumer
	closedCh  chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue. maxChunks <= 0 leaves it unbounded.
func NewQueue(maxChunks int) *Queue {
	if maxChunks < 0 {
		maxChunks = 0
	}
	return &Queue{
		maxChunks: maxChunks,
		signal:    make(chan struct{}, 1),
		closedCh:  make(chan struct{}),
	}
}

// Push appends a chunk. It returns false if the queue is already closed.
func (q *Queue) Push(chunk []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.maxChunks > 0 && len(q.items) >= q.maxChunks {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, chunk)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop returns the next chunk in arrival order. Chunks pushed before Close
// are still delivered; once drained, every call returns PopEnd.
func (q *Queue) Pop(timeout time.Duration) ([]byte, PopResult) {
	if chunk, res, ok := q.tryPop(); ok {
		return chunk, res
	}
	if timeout <= 0 {
		return nil, PopTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.signal:
		case <-q.closedCh:
		case <-timer.C:
			if chunk, res, ok := q.tryPop(); ok {
				return chunk, res
			}
			return nil, PopTimeout
		}
		if chunk, res, ok := q.tryPop(); ok {
			return chunk, res
		}
	}
}

func (q *Queue) tryPop() ([]byte, PopResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) > 0 {
		chunk := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		return chunk, PopChunk, true
	}
	if q.closed {
		return nil, PopEnd, true
	}
	return nil, PopTimeout, false
}

// Close marks the end of input. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.closedCh)
	})
}

// Closed reports whether Close has been called
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of chunks waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many chunks were discarded on overflow
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
