package isr

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robotalks/rtlab/pkg/kernel"
)

// FlagRegister abstracts an interrupt flag register. Bits are latched
// by hardware and cleared by handlers.
type FlagRegister interface {
	Pending() uint16
	Set(mask uint16)
	Clear(mask uint16)
}

// Handler services an interrupt. status holds the pending enabled bits
// at entry. The handler must clear them before returning, and returns
// whether a higher priority task was woken.
type Handler interface {
	HandleInterrupt(status uint16, flags FlagRegister) (yield bool)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(status uint16, flags FlagRegister) bool

// HandleInterrupt implements Handler.
func (f HandlerFunc) HandleInterrupt(status uint16, flags FlagRegister) bool {
	return f(status, flags)
}

// Vector binds an interrupt source to its handler.
type Vector struct {
	Name    string
	Flags   FlagRegister
	Enable  uint16
	Handler Handler

	served   atomic.Uint64
	spurious atomic.Uint64
}

// Served returns the number of dispatched interrupts.
func (v *Vector) Served() uint64 {
	return v.served.Load()
}

// Spurious returns the number of interrupts with no enabled bit pending.
func (v *Vector) Spurious() uint64 {
	return v.spurious.Load()
}

// ErrInterruptStorm is wrapped by StormError.
var ErrInterruptStorm = errors.New("interrupt storm")

// StormError indicates a handler returned with its flags still set.
type StormError struct {
	Vector string
	Flags  uint16
}

// Error implements error.
func (e *StormError) Error() string {
	return fmt.Sprintf("interrupt storm on %s: flags %#04x not cleared", e.Vector, e.Flags)
}

// Unwrap returns ErrInterruptStorm.
func (e *StormError) Unwrap() error {
	return ErrInterruptStorm
}

// Yielder is the interrupt return path of the scheduler.
type Yielder interface {
	YieldFromISR(yield bool)
}

// Controller dispatches interrupts at a single level above all tasks:
// handlers never nest and flags only change under its lock.
type Controller struct {
	lock    sync.Mutex
	yielder Yielder
}

// NewController creates a Controller returning through y.
func NewController(y Yielder) *Controller {
	return &Controller{yielder: y}
}

// Trigger latches bits in the vector's flag register and dispatches the
// vector if any enabled bit is pending. A disabled vector only latches.
func (c *Controller) Trigger(v *Vector, bits uint16) {
	c.lock.Lock()
	defer c.lock.Unlock()
	v.Flags.Set(bits)
	c.dispatch(v)
}

// Raise dispatches the vector with the flags already latched.
func (c *Controller) Raise(v *Vector) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.dispatch(v)
}

// Locked runs fn with interrupts masked, used by drivers touching
// registers shared with handlers.
func (c *Controller) Locked(fn func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fn()
}

func (c *Controller) dispatch(v *Vector) {
	if v.Handler == nil {
		return
	}
	status := v.Flags.Pending() & v.Enable
	if status == 0 {
		v.spurious.Add(1)
		return
	}
	yield := v.Handler.HandleInterrupt(status, v.Flags)
	if left := v.Flags.Pending() & status; left != 0 {
		kernel.Halt(&StormError{Vector: v.Name, Flags: left})
		return
	}
	v.served.Add(1)
	if c.yielder != nil {
		c.yielder.YieldFromISR(yield)
	}
}

// Register is a plain FlagRegister.
type Register struct {
	bits atomic.Uint32
}

// Pending implements FlagRegister.
func (r *Register) Pending() uint16 {
	return uint16(r.bits.Load())
}

// Set implements FlagRegister.
func (r *Register) Set(mask uint16) {
	for {
		old := r.bits.Load()
		if r.bits.CompareAndSwap(old, old|uint32(mask)) {
			return
		}
	}
}

// Clear implements FlagRegister.
func (r *Register) Clear(mask uint16) {
	for {
		old := r.bits.Load()
		if r.bits.CompareAndSwap(old, old&^uint32(mask)) {
			return
		}
	}
}
