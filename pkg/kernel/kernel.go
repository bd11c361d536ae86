package kernel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	fx "github.com/robotalks/rtlab/pkg/framework"
)

// Kernel holds the fixed task set and exposes the scheduler contract
// relied upon by primitives and interrupt handlers.
type Kernel struct {
	lock    sync.Mutex
	tasks   []*Task
	started bool

	current   atomic.Pointer[Task]
	isrExits  atomic.Uint64
	isrYields atomic.Uint64
}

// Stats summarizes kernel activity.
type Stats struct {
	ISRExits  uint64
	ISRYields uint64
}

// New creates a kernel with no tasks.
func New() *Kernel {
	return &Kernel{}
}

// CreateTask registers a task. Tasks can only be created before Start.
func (k *Kernel) CreateTask(name string, prio Priority, body Body) (*Task, error) {
	k.lock.Lock()
	defer k.lock.Unlock()
	if k.started {
		return nil, ErrStarted
	}
	t := newTask(k, name, prio, body)
	k.tasks = append(k.tasks, t)
	return t, nil
}

// MustCreateTask creates a task and halts on failure.
func (k *Kernel) MustCreateTask(name string, prio Priority, body Body) *Task {
	t, err := k.CreateTask(name, prio, body)
	if err != nil {
		Halt(err)
	}
	return t
}

// Tasks returns the registered tasks in creation order.
func (k *Kernel) Tasks() []*Task {
	k.lock.Lock()
	defer k.lock.Unlock()
	return append([]*Task(nil), k.tasks...)
}

// Task finds a task by name.
func (k *Kernel) Task(name string) *Task {
	k.lock.Lock()
	defer k.lock.Unlock()
	for _, t := range k.tasks {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Running returns the task considered running, nil if all tasks wait.
func (k *Kernel) Running() *Task {
	return k.current.Load()
}

// Start fixes the task set and runs all tasks until ctx is canceled.
func (k *Kernel) Start(ctx context.Context) error {
	k.lock.Lock()
	if k.started {
		k.lock.Unlock()
		return ErrStarted
	}
	k.started = true
	tasks := append([]*Task(nil), k.tasks...)
	k.lock.Unlock()

	glog.Infof("kernel: starting %d tasks", len(tasks))
	runner := fx.NewRunnerWith(ctx)
	for _, t := range tasks {
		runner.Go(t)
	}
	err := runner.Wait()
	glog.Info("kernel: all tasks stopped")
	return err
}

// YieldFromISR is called on interrupt return. A requested yield lets
// the woken task run before the interrupted one resumes.
func (k *Kernel) YieldFromISR(yield bool) {
	k.isrExits.Add(1)
	if yield {
		k.isrYields.Add(1)
		runtime.Gosched()
	}
}

// Stats returns activity counters.
func (k *Kernel) Stats() Stats {
	return Stats{
		ISRExits:  k.isrExits.Load(),
		ISRYields: k.isrYields.Load(),
	}
}

func (k *Kernel) preempts(p Priority) bool {
	cur := k.current.Load()
	return cur == nil || p > cur.EffectivePriority()
}
