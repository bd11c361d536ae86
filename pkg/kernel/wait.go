package kernel

import (
	"context"
	"time"

	"v.io/x/lib/nsync"
)

// Wait bounds.
const (
	// NoWait makes a blocking operation fail immediately.
	NoWait time.Duration = 0
	// WaitForever waits until the operation is satisfied or the context
	// is canceled.
	WaitForever time.Duration = -1
)

func deadlineOf(timeout time.Duration) time.Time {
	if timeout < 0 {
		return nsync.NoDeadline
	}
	return time.Now().Add(timeout)
}

// waitUntil blocks on cv with mu held until cond holds. The calling
// task is marked blocked for the duration.
func waitUntil(ctx context.Context, mu *nsync.Mu, cv *nsync.CV, cond func() bool, timeout time.Duration) error {
	t := TaskFrom(ctx)
	deadline := deadlineOf(timeout)
	t.block(timeout)
	defer t.resume()
	for !cond() {
		outcome := cv.WaitWithDeadline(mu, deadline, ctx.Done())
		if cond() {
			break
		}
		switch outcome {
		case nsync.Expired:
			return ErrTimeout
		case nsync.Cancelled:
			return ctx.Err()
		}
	}
	return nil
}

// waiter is a blocked caller of a primitive. An item handed off to a
// waiter is stored in item before done is set.
type waiter[T any] struct {
	task *Task
	prio Priority
	seq  uint64
	item T
	done bool
}

func (w *waiter[T]) isDone() bool {
	return w.done
}

// wake completes the wait and reports whether the woken task should
// preempt the running one.
func (w *waiter[T]) wake() bool {
	w.done = true
	w.task.ready()
	return w.task.preempts(w.prio)
}

// waitList orders waiters by priority, highest first, and by arrival
// among equal priorities.
type waitList[T any] struct {
	waiters []*waiter[T]
	seq     uint64
}

func (l *waitList[T]) push(t *Task, item T) *waiter[T] {
	l.seq++
	w := &waiter[T]{task: t, prio: t.priority(), seq: l.seq, item: item}
	pos := len(l.waiters)
	for n, o := range l.waiters {
		if w.prio > o.prio {
			pos = n
			break
		}
	}
	l.waiters = append(l.waiters, nil)
	copy(l.waiters[pos+1:], l.waiters[pos:])
	l.waiters[pos] = w
	return w
}

func (l *waitList[T]) pop() *waiter[T] {
	if len(l.waiters) == 0 {
		return nil
	}
	w := l.waiters[0]
	l.waiters[0] = nil
	l.waiters = l.waiters[1:]
	return w
}

func (l *waitList[T]) remove(w *waiter[T]) {
	for n, o := range l.waiters {
		if o == w {
			l.waiters = append(l.waiters[:n], l.waiters[n+1:]...)
			return
		}
	}
}

func (l *waitList[T]) top() *waiter[T] {
	if len(l.waiters) == 0 {
		return nil
	}
	return l.waiters[0]
}

func (l *waitList[T]) len() int {
	return len(l.waiters)
}

// Delay blocks the calling task for d. It is the timed wait used in
// place of busy loops.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := TaskFrom(ctx)
	t.block(d)
	defer t.resume()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
