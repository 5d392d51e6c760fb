// Package queue implements the outgoing send buffer for the chat client:
// a bounded FIFO of pending messages and a sliding-window rate limiter that
// keeps sends under the platform's per-window cap. Both are owned exclusively
// by the outbound transport; producers reach them only through Say.
package queue

import "sync"

// Item is one message waiting to be sent.
type Item struct {
	Channel string // channel name, without the leading '#'
	Text    string // already truncated to the transport limit
	Nonce   string // client nonce attached to the outgoing line
}

// Queue is a fixed-capacity FIFO ring. When a push would exceed capacity the
// oldest entry is evicted to make room, so the newest message always wins.
type Queue struct {
	mu       sync.Mutex
	buf      []Item
	head     int // read position
	tail     int // write position
	count    int
	capacity int
}

// New creates a queue holding at most capacity items.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]Item, capacity),
		capacity: capacity,
	}
}

// Push appends an item. If the queue is full the oldest entry is dropped and
// returned with dropped=true so the caller can log it.
func (q *Queue) Push(item Item) (evicted Item, dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		evicted = q.buf[q.head]
		q.buf[q.head] = Item{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		dropped = true
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++

	return evicted, dropped
}

// Pop removes and returns the oldest item. ok is false when the queue is
// empty.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Item{}, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = Item{} // clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--

	return item, true
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}
