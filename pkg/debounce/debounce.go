// Package debounce confirms button presses signaled by edge interrupts
// by re-sampling the input line after a settle window.
package debounce

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtlab/pkg/hal"
	"github.com/robotalks/rtlab/pkg/kernel"
)

// State of a button.
type State int

// Button states.
const (
	Idle State = iota
	Settling
	Confirmed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Settling:
		return "settling"
	case Confirmed:
		return "confirmed"
	}
	return "unknown"
}

// Mode decides how buttons asserted in the same round are reported.
type Mode int

// Modes.
const (
	// Independent reports every asserted button.
	Independent Mode = iota
	// Exclusive reports only the first asserted button in configured order.
	Exclusive
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "independent"
}

// ParseMode parses the name of a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "independent":
		return Independent, nil
	case "exclusive":
		return Exclusive, nil
	}
	return Independent, fmt.Errorf("invalid multi-press mode %q", s)
}

// Button is a physical button. Mask selects its bits in the edge signal.
type Button struct {
	Name string
	Line hal.LineID
	Mask uint32
}

// EdgeSource delivers edge signals from the interrupt handler. The
// returned bits tell which buttons had an edge.
type EdgeSource interface {
	WaitEdge(ctx context.Context, timeout time.Duration) (uint32, error)
}

// SemaphoreEdges is an EdgeSource without status bits: every button is
// a candidate on each signal.
type SemaphoreEdges struct {
	Sem *kernel.BinarySemaphore
}

// WaitEdge implements EdgeSource.
func (e SemaphoreEdges) WaitEdge(ctx context.Context, timeout time.Duration) (uint32, error) {
	if err := e.Sem.Take(ctx, timeout); err != nil {
		return 0, err
	}
	return ^uint32(0), nil
}

// NotifiedEdges is an EdgeSource reading the status bits accumulated in
// the notification value of the task.
type NotifiedEdges struct {
	Task *kernel.Task
}

// WaitEdge implements EdgeSource.
func (e NotifiedEdges) WaitEdge(ctx context.Context, timeout time.Duration) (uint32, error) {
	return e.Task.NotifyWait(ctx, 0, ^uint32(0), timeout)
}

// EmitFunc receives a confirmed press.
type EmitFunc func(ctx context.Context, btn Button) error

// Config of the debouncer.
type Config struct {
	Settle time.Duration
	Mode   Mode
}

// Debouncer is the body of the debounce task.
type Debouncer struct {
	Config  Config
	Buttons []Button
	Edges   EdgeSource
	Lines   hal.InputLines
	Emit    EmitFunc

	states   []atomic.Int32
	pending  uint32
	presses  atomic.Uint64
	glitches atomic.Uint64
}

// New creates a Debouncer.
func New(conf Config, edges EdgeSource, lines hal.InputLines, emit EmitFunc, buttons ...Button) *Debouncer {
	return &Debouncer{
		Config:  conf,
		Buttons: buttons,
		Edges:   edges,
		Lines:   lines,
		Emit:    emit,
		states:  make([]atomic.Int32, len(buttons)),
	}
}

// State returns the state of the n-th button.
func (d *Debouncer) State(n int) State {
	return State(d.states[n].Load())
}

// Presses returns the number of confirmed presses.
func (d *Debouncer) Presses() uint64 {
	return d.presses.Load()
}

// Glitches returns the number of rejected edges.
func (d *Debouncer) Glitches() uint64 {
	return d.glitches.Load()
}

func (d *Debouncer) mask() (m uint32) {
	for _, btn := range d.Buttons {
		m |= btn.Mask
	}
	return
}

func (d *Debouncer) setState(n int, s State) {
	d.states[n].Store(int32(s))
}

// Step implements kernel.Body. It handles one edge signal: candidates
// settle, edges latched meanwhile are absorbed as bounce, then each
// candidate is re-sampled.
func (d *Debouncer) Step(ctx context.Context) error {
	bits := d.pending
	d.pending = 0
	if bits == 0 {
		var err error
		if bits, err = d.Edges.WaitEdge(ctx, kernel.WaitForever); err != nil {
			return err
		}
	}
	bits &= d.mask()

	var settling uint32
	for n, btn := range d.Buttons {
		if bits&btn.Mask != 0 {
			settling |= btn.Mask
			d.setState(n, Settling)
		}
	}
	if settling == 0 {
		return nil
	}

	if err := kernel.Delay(ctx, d.Config.Settle); err != nil {
		return err
	}
	for {
		more, err := d.Edges.WaitEdge(ctx, kernel.NoWait)
		if err != nil {
			break
		}
		d.pending |= more & d.mask()
	}
	d.pending &^= settling

	var emitErr error
	reported := false
	for n, btn := range d.Buttons {
		if btn.Mask&settling == 0 {
			continue
		}
		if reported || !d.Lines.ReadInputLine(btn.Line) {
			if !reported {
				d.glitches.Add(1)
				glog.V(2).Infof("debounce: %s glitch rejected", btn.Name)
			}
			d.setState(n, Idle)
			continue
		}
		d.setState(n, Confirmed)
		d.presses.Add(1)
		glog.V(2).Infof("debounce: %s pressed", btn.Name)
		if d.Emit != nil {
			if err := d.Emit(ctx, btn); err != nil && emitErr == nil {
				emitErr = err
			}
		}
		d.setState(n, Idle)
		reported = d.Config.Mode == Exclusive
	}
	return emitErr
}
