package kernel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"v.io/x/lib/nsync"
)

// Priority of a task, higher is more urgent.
type Priority int

// Predefined priorities.
const (
	PriorityIdle   Priority = 0
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityTop    Priority = 4
)

// State of a task.
type State int32

// Task states.
const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateSuspended
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	}
	return "unknown"
}

// Body is the code of a task. Step is invoked forever until the
// task context is canceled.
type Body interface {
	Step(ctx context.Context) error
}

// StepFunc is the func form of Body.
type StepFunc func(ctx context.Context) error

// Step implements Body.
func (f StepFunc) Step(ctx context.Context) error {
	return f(ctx)
}

// Task is a unit of concurrent execution with a fixed base priority.
type Task struct {
	name   string
	base   Priority
	body   Body
	kernel *Kernel

	state     atomic.Int32
	effective atomic.Int64
	steps     atomic.Uint64
	failures  atomic.Uint64

	// mu protects held and the notification slot.
	mu            nsync.Mu
	held          []*Mutex
	notifyCV      nsync.CV
	notifyValue   uint32
	notifyPending bool
	notifyWaiting bool
}

func newTask(k *Kernel, name string, prio Priority, body Body) *Task {
	t := &Task{name: name, base: prio, body: body, kernel: k}
	t.effective.Store(int64(prio))
	return t
}

// Name implements framework.Named.
func (t *Task) Name() string {
	return t.name
}

// BasePriority returns the priority assigned at creation.
func (t *Task) BasePriority() Priority {
	return t.base
}

// EffectivePriority returns the base priority or the inherited one
// when a higher priority task waits on a mutex held by this task.
func (t *Task) EffectivePriority() Priority {
	return Priority(t.effective.Load())
}

// State returns current state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Steps returns the number of completed steps.
func (t *Task) Steps() uint64 {
	return t.steps.Load()
}

// Failures returns the number of steps which returned an error.
func (t *Task) Failures() uint64 {
	return t.failures.Load()
}

// Run implements framework.Runnable. Errors from a step are logged and
// the task continues with the next iteration.
func (t *Task) Run(ctx context.Context) error {
	ctx = WithTask(ctx, t)
	for {
		if err := ctx.Err(); err != nil {
			t.block(WaitForever)
			return err
		}
		t.resume()
		err := t.body.Step(ctx)
		t.steps.Add(1)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			t.block(WaitForever)
			return ctx.Err()
		}
		t.failures.Add(1)
		glog.Warningf("%v", &TaskError{Task: t.name, Err: err})
	}
}

// block marks the task as waiting. A wait without bound is reported
// as suspended.
func (t *Task) block(timeout time.Duration) {
	if t == nil {
		return
	}
	if t.kernel != nil {
		t.kernel.current.CompareAndSwap(t, nil)
	}
	if timeout < 0 {
		t.state.Store(int32(StateSuspended))
	} else {
		t.state.Store(int32(StateBlocked))
	}
}

// ready marks a waiting task as ready when its event arrives.
func (t *Task) ready() {
	if t != nil {
		t.state.Store(int32(StateReady))
	}
}

// resume marks the task as the running one.
func (t *Task) resume() {
	if t == nil {
		return
	}
	t.state.Store(int32(StateRunning))
	if t.kernel != nil {
		t.kernel.current.Store(t)
	}
}

func (t *Task) priority() Priority {
	if t == nil {
		return PriorityIdle
	}
	return t.EffectivePriority()
}

// preempts reports whether a task of priority p made ready now should
// run before the task the kernel considers running.
func (t *Task) preempts(p Priority) bool {
	if t == nil || t.kernel == nil {
		return true
	}
	return t.kernel.preempts(p)
}

func (t *Task) addHeld(m *Mutex) {
	t.mu.Lock()
	t.held = append(t.held, m)
	t.mu.Unlock()
}

func (t *Task) removeHeld(m *Mutex) {
	t.mu.Lock()
	for n, h := range t.held {
		if h == m {
			t.held = append(t.held[:n], t.held[n+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

// inherit recomputes the effective priority from the waiters of all
// held mutexes.
func (t *Task) inherit() {
	t.mu.Lock()
	eff := t.base
	for _, m := range t.held {
		if p, ok := m.topWaiter(); ok && p > eff {
			eff = p
		}
	}
	t.effective.Store(int64(eff))
	t.mu.Unlock()
}

type taskKey struct{}

// WithTask binds the calling task to the context.
func WithTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, t)
}

// TaskFrom extracts the calling task, nil when the caller is not a task.
func TaskFrom(ctx context.Context) *Task {
	if t, ok := ctx.Value(taskKey{}).(*Task); ok {
		return t
	}
	return nil
}
