package lab

import (
	"context"
	"time"

	"github.com/robotalks/rtlab/pkg/kernel"
)

// SharedCounter is an integer shared by tasks. Every access holds the
// mutex, so readers only see values a writer stored.
type SharedCounter struct {
	mutex   *kernel.Mutex
	value   int
	Timeout time.Duration
}

// NewSharedCounter creates a counter holding v. Lock waits are bounded
// by timeout.
func NewSharedCounter(v int, timeout time.Duration) *SharedCounter {
	return &SharedCounter{mutex: kernel.NewMutex(), value: v, Timeout: timeout}
}

// Mutex returns the guarding mutex.
func (c *SharedCounter) Mutex() *kernel.Mutex {
	return c.mutex
}

// Load reads the value. It implements display.ValueSource.
func (c *SharedCounter) Load(ctx context.Context) (v int, err error) {
	err = c.Update(ctx, func(cur int) int {
		v = cur
		return cur
	})
	return
}

// Store replaces the value.
func (c *SharedCounter) Store(ctx context.Context, v int) error {
	return c.Update(ctx, func(int) int { return v })
}

// Update replaces the value with fn(value). fn runs with the mutex
// held and must not block.
func (c *SharedCounter) Update(ctx context.Context, fn func(int) int) error {
	if err := c.mutex.Lock(ctx, c.Timeout); err != nil {
		return err
	}
	c.value = fn(c.value)
	return c.mutex.Unlock(ctx)
}
