package kernel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitLimit = 2 * time.Second

func idleBody(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func testTask(t *testing.T, k *Kernel, name string, prio Priority) (*Task, context.Context) {
	task, err := k.CreateTask(name, prio, StepFunc(idleBody))
	require.NoError(t, err)
	return task, WithTask(context.Background(), task)
}

func requireState(t *testing.T, task *Task, state State) {
	require.Eventuallyf(t, func() bool {
		return task.State() == state
	}, waitLimit, time.Millisecond, "task %s expected %s, got %s", task.Name(), state, task.State())
}

func TestStateString(t *testing.T) {
	testCases := map[State]string{
		StateReady:     "ready",
		StateRunning:   "running",
		StateBlocked:   "blocked",
		StateSuspended: "suspended",
		State(99):      "unknown",
	}
	for state, str := range testCases {
		require.Equal(t, str, state.String())
	}
}

func TestKernelFixedTaskSet(t *testing.T) {
	k := New()
	var steps atomic.Int32
	_, err := k.CreateTask("a", PriorityNormal, StepFunc(func(ctx context.Context) error {
		if steps.Add(1) == 1 {
			return errors.New("transient")
		}
		return Delay(ctx, time.Millisecond)
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Start(ctx) }()
	require.Eventually(t, func() bool { return steps.Load() > 2 }, waitLimit, time.Millisecond)

	_, err = k.CreateTask("b", PriorityNormal, StepFunc(idleBody))
	require.Equal(t, ErrStarted, err)
	require.Equal(t, ErrStarted, k.Start(ctx))

	cancel()
	require.NoError(t, <-done)
	task := k.Task("a")
	require.NotNil(t, task)
	require.Equal(t, uint64(1), task.Failures())
	require.Nil(t, k.Task("b"))
	require.Len(t, k.Tasks(), 1)
}

func TestTaskWaitStates(t *testing.T) {
	k := New()
	task, ctx := testTask(t, k, "waiter", PriorityNormal)
	sem := NewBinarySemaphore()

	done := make(chan error, 1)
	go func() { done <- sem.Take(ctx, WaitForever) }()
	requireState(t, task, StateSuspended)
	sem.Give()
	require.NoError(t, <-done)
	require.Equal(t, StateRunning, task.State())
	require.Equal(t, task, k.Running())

	go func() { done <- sem.Take(ctx, time.Minute) }()
	requireState(t, task, StateBlocked)
	require.Nil(t, k.Running())
	sem.Give()
	require.NoError(t, <-done)
}

func TestYieldFromISR(t *testing.T) {
	k := New()
	k.YieldFromISR(false)
	k.YieldFromISR(true)
	require.Equal(t, Stats{ISRExits: 2, ISRYields: 1}, k.Stats())
}

func TestHalt(t *testing.T) {
	var halted error
	restore := SetHaltHandler(func(err error) { halted = err })
	defer restore()

	require.Nil(t, MustNewQueue[int](0))
	require.Equal(t, ErrInvalidCapacity, halted)

	k := New()
	go k.Start(context.Background())
	require.Eventually(t, func() bool {
		_, err := k.CreateTask("late", PriorityLow, StepFunc(idleBody))
		return err == ErrStarted
	}, waitLimit, time.Millisecond)
	k.MustCreateTask("late", PriorityLow, StepFunc(idleBody))
	require.Equal(t, ErrStarted, halted)
}

func TestDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, Delay(context.Background(), 5*time.Millisecond))
	require.True(t, time.Since(start) >= 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, Delay(ctx, time.Hour))
}
