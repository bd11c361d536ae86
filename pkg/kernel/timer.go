package kernel

import (
	"container/heap"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// TimerCallback runs in the timer service task at each expiry. It must
// not block.
type TimerCallback func(*Timer)

// Timer is a software timer served by a TimerService. All control
// operations post a command to the service and return before it is
// applied.
type Timer struct {
	name       string
	autoReload bool
	callback   TimerCallback
	service    *TimerService

	active atomic.Bool
	fired  atomic.Uint64

	// owned by the service task
	period  time.Duration
	expiry  time.Time
	index   int
	pending bool
}

type timerOp int

const (
	timerStart timerOp = iota
	timerStop
	timerChangePeriod
)

type timerCommand struct {
	op     timerOp
	timer  *Timer
	period time.Duration
	issued time.Time
}

// TimerService is the execution context of timer callbacks.
type TimerService struct {
	task     *Task
	commands *Queue[timerCommand]
	timers   timerHeap
}

// NewTimerService creates the timer service task with a command queue
// of queueLen entries.
func NewTimerService(k *Kernel, prio Priority, queueLen int) (*TimerService, error) {
	commands, err := NewQueue[timerCommand](queueLen)
	if err != nil {
		return nil, err
	}
	s := &TimerService{commands: commands}
	if s.task, err = k.CreateTask("timer-service", prio, s); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNewTimerService creates the timer service and halts on failure.
func MustNewTimerService(k *Kernel, prio Priority, queueLen int) *TimerService {
	s, err := NewTimerService(k, prio, queueLen)
	if err != nil {
		Halt(err)
	}
	return s
}

// Task returns the service task.
func (s *TimerService) Task() *Task {
	return s.task
}

// NewTimer creates a dormant timer.
func (s *TimerService) NewTimer(name string, period time.Duration, autoReload bool, cb TimerCallback) (*Timer, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return &Timer{
		name:       name,
		autoReload: autoReload,
		callback:   cb,
		service:    s,
		period:     period,
		index:      -1,
	}, nil
}

// MustNewTimer creates a timer and halts on failure.
func (s *TimerService) MustNewTimer(name string, period time.Duration, autoReload bool, cb TimerCallback) *Timer {
	t, err := s.NewTimer(name, period, autoReload, cb)
	if err != nil {
		Halt(err)
	}
	return t
}

// Step implements Body. It waits for a command until the nearest expiry
// and then fires all expired timers.
func (s *TimerService) Step(ctx context.Context) error {
	wait := WaitForever
	if len(s.timers) > 0 {
		if wait = time.Until(s.timers[0].expiry); wait < 0 {
			wait = NoWait
		}
	}
	cmd, err := s.commands.Receive(ctx, wait)
	switch {
	case err == nil:
		s.apply(cmd)
	case errors.Is(err, ErrTimeout):
	default:
		return err
	}
	s.fire(time.Now())
	return nil
}

func (s *TimerService) apply(cmd timerCommand) {
	t := cmd.timer
	switch cmd.op {
	case timerStart:
		s.schedule(t, cmd.issued.Add(t.period))
	case timerChangePeriod:
		t.period = cmd.period
		s.schedule(t, cmd.issued.Add(t.period))
	case timerStop:
		if t.pending {
			heap.Remove(&s.timers, t.index)
			t.pending = false
		}
		t.active.Store(false)
	}
}

func (s *TimerService) schedule(t *Timer, expiry time.Time) {
	t.expiry = expiry
	t.active.Store(true)
	if t.pending {
		heap.Fix(&s.timers, t.index)
		return
	}
	t.pending = true
	heap.Push(&s.timers, t)
}

func (s *TimerService) fire(now time.Time) {
	for len(s.timers) > 0 && !s.timers[0].expiry.After(now) {
		t := s.timers[0]
		if t.autoReload {
			t.expiry = t.expiry.Add(t.period)
			heap.Fix(&s.timers, 0)
		} else {
			heap.Pop(&s.timers)
			t.pending = false
			t.active.Store(false)
		}
		t.fired.Add(1)
		if cb := t.callback; cb != nil {
			cb(t)
		}
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// IsActive reports whether the service has the timer scheduled.
func (t *Timer) IsActive() bool {
	return t.active.Load()
}

// Fired returns the number of expiries served.
func (t *Timer) Fired() uint64 {
	return t.fired.Load()
}

// Start arms the timer one period from now. Starting an active timer
// restarts it.
func (t *Timer) Start(ctx context.Context, timeout time.Duration) error {
	return t.post(ctx, timerCommand{op: timerStart}, timeout)
}

// Reset is an alias of Start.
func (t *Timer) Reset(ctx context.Context, timeout time.Duration) error {
	return t.Start(ctx, timeout)
}

// Stop disarms the timer.
func (t *Timer) Stop(ctx context.Context, timeout time.Duration) error {
	return t.post(ctx, timerCommand{op: timerStop}, timeout)
}

// ChangePeriod changes the period and restarts the timer.
func (t *Timer) ChangePeriod(ctx context.Context, period, timeout time.Duration) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}
	return t.post(ctx, timerCommand{op: timerChangePeriod, period: period}, timeout)
}

// StartFromISR is the interrupt variant of Start.
func (t *Timer) StartFromISR() (woken bool, err error) {
	return t.service.commands.SendFromISR(timerCommand{op: timerStart, timer: t, issued: time.Now()})
}

func (t *Timer) post(ctx context.Context, cmd timerCommand, timeout time.Duration) error {
	cmd.timer, cmd.issued = t, time.Now()
	if err := t.service.commands.Send(ctx, cmd, timeout); err != nil {
		glog.Warningf("timer %s: command dropped: %v", t.name, err)
		return err
	}
	return nil
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	t := old[len(old)-1]
	old[len(old)-1] = nil
	t.index = -1
	*h = old[:len(old)-1]
	return t
}
