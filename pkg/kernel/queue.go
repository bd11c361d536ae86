package kernel

import (
	"context"
	"time"

	"github.com/gammazero/deque"
	"v.io/x/lib/nsync"
)

// Queue is a bounded FIFO. Send blocks while full and Receive blocks
// while empty. Receivers wait only on an empty queue and senders only
// on a full one, so a waiting receiver is handed the item directly.
type Queue[T any] struct {
	mu       nsync.Mu
	cv       nsync.CV
	capacity int
	items    deque.Deque[T]
	senders  waitList[T]
	recvs    waitList[T]
	peekers  waitList[T]
}

// NewQueue creates a queue holding up to capacity items.
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Queue[T]{capacity: capacity}, nil
}

// MustNewQueue creates a queue and halts on failure.
func MustNewQueue[T any](capacity int) *Queue[T] {
	q, err := NewQueue[T](capacity)
	if err != nil {
		Halt(err)
	}
	return q
}

// Cap returns the capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Send appends v, waiting up to timeout for space. It fails with
// ErrQueueFull when no space appears in time.
func (q *Queue[T]) Send(ctx context.Context, v T, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.put(v); ok {
		return nil
	}
	if timeout == NoWait {
		return ErrQueueFull
	}
	w := q.senders.push(TaskFrom(ctx), v)
	if err := waitUntil(ctx, &q.mu, &q.cv, w.isDone, timeout); err != nil {
		q.senders.remove(w)
		if err == ErrTimeout {
			err = ErrQueueFull
		}
		return err
	}
	return nil
}

// SendFromISR is the interrupt variant of Send. A full queue drops v
// and returns ErrQueueFull.
func (q *Queue[T]) SendFromISR(v T) (woken bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	woken, ok := q.put(v)
	if !ok {
		return false, ErrQueueFull
	}
	return woken, nil
}

// put delivers v to peekers, then to a waiting receiver or the buffer.
func (q *Queue[T]) put(v T) (woken, ok bool) {
	if q.items.Len() >= q.capacity {
		return false, false
	}
	woken = q.wakePeekers(v)
	if w := q.recvs.pop(); w != nil {
		w.item = v
		woken = w.wake() || woken
		q.cv.Broadcast()
		return woken, true
	}
	q.items.PushBack(v)
	return woken, true
}

func (q *Queue[T]) wakePeekers(v T) (woken bool) {
	if q.peekers.len() == 0 {
		return false
	}
	for w := q.peekers.pop(); w != nil; w = q.peekers.pop() {
		w.item = v
		woken = w.wake() || woken
	}
	q.cv.Broadcast()
	return woken
}

// Receive removes the oldest item, waiting up to timeout for one.
func (q *Queue[T]) Receive(ctx context.Context, timeout time.Duration) (v T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() > 0 {
		v = q.items.PopFront()
		if w := q.senders.pop(); w != nil {
			q.items.PushBack(w.item)
			w.wake()
			q.cv.Broadcast()
		}
		return v, nil
	}
	if timeout == NoWait {
		return v, ErrTimeout
	}
	w := q.recvs.push(TaskFrom(ctx), v)
	if err = waitUntil(ctx, &q.mu, &q.cv, w.isDone, timeout); err != nil {
		q.recvs.remove(w)
		return v, err
	}
	return w.item, nil
}

// Peek returns the oldest item without removing it, waiting up to
// timeout for one.
func (q *Queue[T]) Peek(ctx context.Context, timeout time.Duration) (v T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() > 0 {
		return q.items.Front(), nil
	}
	if timeout == NoWait {
		return v, ErrTimeout
	}
	w := q.peekers.push(TaskFrom(ctx), v)
	if err = waitUntil(ctx, &q.mu, &q.cv, w.isDone, timeout); err != nil {
		q.peekers.remove(w)
		return v, err
	}
	return w.item, nil
}

// overwrite replaces the pending item of a capacity-1 queue. Items of
// blocked senders are older than v, so they are superseded too: those
// senders complete as if their item had been overwritten.
func (q *Queue[T]) overwrite(v T) (woken bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() > 0 {
		q.items.Clear()
		q.items.PushBack(v)
		for w := q.senders.pop(); w != nil; w = q.senders.pop() {
			woken = w.wake() || woken
		}
		q.cv.Broadcast()
		return woken
	}
	woken, _ = q.put(v)
	return woken
}

// Mailbox is a capacity-1 queue holding the latest known value. Only
// the most recent unread value is ever received.
type Mailbox[T any] struct {
	*Queue[T]
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{Queue: &Queue[T]{capacity: 1}}
}

// Overwrite replaces the pending value unconditionally.
func (m *Mailbox[T]) Overwrite(v T) {
	m.overwrite(v)
}

// OverwriteFromISR is the interrupt variant of Overwrite.
func (m *Mailbox[T]) OverwriteFromISR(v T) (woken bool) {
	return m.overwrite(v)
}
