// Package display multiplexes a value over the two digit planes of a
// seven-segment display.
package display

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robotalks/rtlab/pkg/hal"
	"github.com/robotalks/rtlab/pkg/kernel"
)

// Split reduces v modulo 100 and returns its decimal digits.
func Split(v int) (high, low uint8) {
	v %= 100
	if v < 0 {
		v += 100
	}
	high = uint8(v / 10)
	low = uint8(v - int(high)*10)
	return
}

// ValueSource provides the value to show on each refresh.
type ValueSource interface {
	Load(ctx context.Context) (int, error)
}

// ValueSourceFunc is a func implementing ValueSource.
type ValueSourceFunc func(ctx context.Context) (int, error)

// Load implements ValueSource.
func (f ValueSourceFunc) Load(ctx context.Context) (int, error) {
	return f(ctx)
}

// Tick waits for the next refresh.
type Tick interface {
	Wait(ctx context.Context) error
}

// Refresher shows one plane per Step: the active plane is disabled
// before the segment lines change and the other plane is enabled only
// after its digit is written, so at most one plane is lit at a time.
type Refresher struct {
	Display hal.SevenSegment
	Source  ValueSource
	Tick    Tick

	active    atomic.Int32
	refreshes atomic.Uint64
}

// New creates a Refresher. PlaneB starts active so the first refresh
// shows PlaneA.
func New(d hal.SevenSegment, src ValueSource, tick Tick) *Refresher {
	r := &Refresher{Display: d, Source: src, Tick: tick}
	r.active.Store(int32(hal.PlaneB))
	return r
}

// Active returns the plane enabled by the last refresh.
func (r *Refresher) Active() hal.Plane {
	return hal.Plane(r.active.Load())
}

// Refreshes returns the number of completed refreshes.
func (r *Refresher) Refreshes() uint64 {
	return r.refreshes.Load()
}

// Step implements kernel.Body.
func (r *Refresher) Step(ctx context.Context) error {
	if err := r.Tick.Wait(ctx); err != nil {
		return err
	}
	v, err := r.Source.Load(ctx)
	if err != nil {
		return err
	}
	r.Refresh(v)
	return nil
}

// Refresh switches to the other plane showing its digit of v.
func (r *Refresher) Refresh(v int) {
	high, low := Split(v)
	cur := r.Active()
	next := cur.Other()
	digit := low
	if next == hal.PlaneB {
		digit = high
	}
	r.Display.DisablePlane(cur)
	r.Display.WriteDigit(digit)
	r.Display.EnablePlane(next)
	r.active.Store(int32(next))
	r.refreshes.Add(1)
}

// SemaphoreTick waits for a semaphore given by a periodic source.
type SemaphoreTick struct {
	Sem *kernel.BinarySemaphore
}

// Wait implements Tick.
func (t SemaphoreTick) Wait(ctx context.Context) error {
	return t.Sem.Take(ctx, kernel.WaitForever)
}

// DelayTick delays the task for Period.
type DelayTick struct {
	Period time.Duration
}

// Wait implements Tick.
func (t DelayTick) Wait(ctx context.Context) error {
	return kernel.Delay(ctx, t.Period)
}

// NewTimerTick creates an auto-reload timer giving a semaphore every
// period. The timer is started asynchronously, so the first tick may
// arrive one period late.
func NewTimerTick(ctx context.Context, svc *kernel.TimerService, name string, period time.Duration) (SemaphoreTick, *kernel.Timer, error) {
	sem := kernel.NewBinarySemaphore()
	timer, err := svc.NewTimer(name, period, true, func(*kernel.Timer) {
		sem.Give()
	})
	if err != nil {
		return SemaphoreTick{}, nil, err
	}
	if err := timer.Start(ctx, kernel.NoWait); err != nil {
		return SemaphoreTick{}, nil, err
	}
	return SemaphoreTick{Sem: sem}, timer, nil
}
