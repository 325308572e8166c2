// Package queue provides the bounded FIFO buffer between record producers
// and the single writer draining to the network.
package queue

import (
	"errors"
	"sync"

	"github.com/opentrail/trailship/record"
)

// Policy decides what Push does when the queue is full.
type Policy string

const (
	// Block applies backpressure: Push waits for room.
	Block Policy = "block"
	// Drop rejects immediately with ErrFull.
	Drop Policy = "drop"
)

var (
	// ErrFull is returned by Push under the Drop policy when the queue is
	// at capacity.
	ErrFull = errors.New("queue full")
	// ErrClosed is returned for operations after Close.
	ErrClosed = errors.New("queue closed")
)

// Queue is a bounded FIFO of records. Any number of producers may Push
// concurrently; exactly one consumer Pops.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    []record.Record
	capacity int
	policy   Policy
	closed   bool
}

// New returns a queue with the given capacity and overflow policy.
// Capacity must be at least 1.
func New(capacity int, policy Policy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		items:    make([]record.Record, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends a record. Under the Block policy it waits for room; under
// Drop it returns ErrFull when at capacity. After Close it always returns
// ErrClosed, including for callers that were blocked waiting.
func (q *Queue) Push(r record.Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if len(q.items) >= q.capacity {
		if q.policy == Drop {
			return ErrFull
		}
		for len(q.items) >= q.capacity && !q.closed {
			q.notFull.Wait()
		}
		if q.closed {
			return ErrClosed
		}
	}
	q.items = append(q.items, r)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest record, blocking while the queue is
// empty. It returns ok=false only once the queue is closed and empty.
func (q *Queue) Pop() (record.Record, bool) {
	return q.PopWith(nil)
}

// PopWith is Pop with a hand-off hook: take runs while the queue's lock is
// still held, so the consumer can mark the record in flight before it stops
// counting toward Depth. take must not call back into the queue.
func (q *Queue) PopWith(take func()) (record.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return record.Record{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	if take != nil {
		take()
	}
	q.notFull.Signal()
	return r, true
}

// Depth returns the number of queued records.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops intake and wakes every blocked Push and Pop. Records already
// queued stay available to Pop and Drain. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Drain returns and removes everything still queued. It is only valid after
// Close; draining an open queue would race the consumer.
func (q *Queue) Drain() ([]record.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		return nil, errors.New("queue: drain before close")
	}
	rest := q.items
	q.items = nil
	return rest, nil
}
