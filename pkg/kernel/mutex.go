package kernel

import (
	"context"
	"sync/atomic"
	"time"

	"v.io/x/lib/nsync"
)

const noWaiter = -1

// Mutex is a lock owned by a task with priority inheritance: while a
// higher priority task waits, the owner runs at the waiter's priority.
type Mutex struct {
	mu      nsync.Mu
	cv      nsync.CV
	owner   *Task
	waiters waitList[struct{}]
	top     atomic.Int64
}

// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex {
	m := &Mutex{}
	m.top.Store(noWaiter)
	return m
}

// Owner returns the owning task, nil when unlocked.
func (m *Mutex) Owner() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Lock acquires the mutex for the calling task.
func (m *Mutex) Lock(ctx context.Context, timeout time.Duration) error {
	t := TaskFrom(ctx)
	if t == nil {
		return ErrNoTask
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == nil {
		m.owner = t
		t.addHeld(m)
		return nil
	}
	if m.owner == t {
		return ErrRecursiveLock
	}
	if timeout == NoWait {
		return ErrTimeout
	}
	w := m.waiters.push(t, struct{}{})
	m.updateTop()
	m.owner.inherit()
	if err := waitUntil(ctx, &m.mu, &m.cv, w.isDone, timeout); err != nil {
		m.waiters.remove(w)
		m.updateTop()
		m.owner.inherit()
		return err
	}
	return nil
}

// Unlock releases the mutex and hands it to the highest priority waiter.
// The caller's priority falls back to what its remaining mutexes justify.
func (m *Mutex) Unlock(ctx context.Context) error {
	t := TaskFrom(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if t == nil || m.owner != t {
		return ErrNotOwner
	}
	t.removeHeld(m)
	w := m.waiters.pop()
	m.updateTop()
	if w == nil {
		m.owner = nil
		t.inherit()
		return nil
	}
	m.owner = w.task
	w.task.addHeld(m)
	w.task.inherit()
	t.inherit()
	w.wake()
	m.cv.Broadcast()
	return nil
}

func (m *Mutex) updateTop() {
	if w := m.waiters.top(); w != nil {
		m.top.Store(int64(w.prio))
	} else {
		m.top.Store(noWaiter)
	}
}

func (m *Mutex) topWaiter() (Priority, bool) {
	p := m.top.Load()
	if p == noWaiter {
		return 0, false
	}
	return Priority(p), true
}
