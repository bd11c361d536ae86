package kernel

import (
	"context"
	"time"

	"v.io/x/lib/nsync"
)

// BinarySemaphore is a single-bit event latch. Gives before a take do
// not accumulate.
type BinarySemaphore struct {
	mu      nsync.Mu
	cv      nsync.CV
	value   bool
	waiters waitList[struct{}]
}

// NewBinarySemaphore creates a semaphore with value 0.
func NewBinarySemaphore() *BinarySemaphore {
	return &BinarySemaphore{}
}

// Value returns 0 or 1.
func (s *BinarySemaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value {
		return 1
	}
	return 0
}

// Give sets the semaphore, or hands it to the highest priority waiter.
func (s *BinarySemaphore) Give() {
	s.give()
}

// GiveFromISR is the interrupt variant of Give. It never blocks and
// reports whether a task of higher priority than the running one was
// woken.
func (s *BinarySemaphore) GiveFromISR() (woken bool) {
	return s.give()
}

func (s *BinarySemaphore) give() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.waiters.pop(); w != nil {
		woken := w.wake()
		s.cv.Broadcast()
		return woken
	}
	s.value = true
	return false
}

// Take waits until the semaphore is given and resets it.
func (s *BinarySemaphore) Take(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value {
		s.value = false
		return nil
	}
	if timeout == NoWait {
		return ErrTimeout
	}
	w := s.waiters.push(TaskFrom(ctx), struct{}{})
	if err := waitUntil(ctx, &s.mu, &s.cv, w.isDone, timeout); err != nil {
		s.waiters.remove(w)
		return err
	}
	return nil
}
