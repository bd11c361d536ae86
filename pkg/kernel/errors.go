package kernel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

var (
	// ErrTimeout indicates a bounded wait expired before the event arrived.
	ErrTimeout = errors.New("timeout")
	// ErrQueueFull indicates an item was not enqueued because the queue is full.
	ErrQueueFull = errors.New("queue full")
	// ErrInvalidCapacity indicates a queue is created with capacity < 1.
	ErrInvalidCapacity = errors.New("invalid queue capacity")
	// ErrInvalidPeriod indicates a timer is created with a non-positive period.
	ErrInvalidPeriod = errors.New("invalid timer period")
	// ErrNotOwner indicates the caller doesn't own the mutex or notification slot.
	ErrNotOwner = errors.New("not owner")
	// ErrRecursiveLock indicates the owner tried to lock the mutex again.
	ErrRecursiveLock = errors.New("mutex already held by caller")
	// ErrNoTask indicates the operation requires a calling task.
	ErrNoTask = errors.New("no calling task")
	// ErrStarted indicates the task set is already fixed.
	ErrStarted = errors.New("kernel already started")
	// ErrNotificationPending indicates a notification without overwrite
	// hits a pending slot.
	ErrNotificationPending = errors.New("notification pending")
)

// TaskError wraps the error returned from a task step.
type TaskError struct {
	Task string
	Err  error
}

// Error implements error.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Unwrap returns the wrapped error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// HaltHandler is invoked on configuration-fatal errors.
type HaltHandler func(error)

var (
	haltLock    sync.Mutex
	haltHandler HaltHandler = func(err error) {
		glog.Fatalf("halt: %v", err)
	}
)

// SetHaltHandler replaces the handler used by Halt and returns a func
// restoring the previous one.
func SetHaltHandler(h HaltHandler) (restore func()) {
	haltLock.Lock()
	prev := haltHandler
	haltHandler = h
	haltLock.Unlock()
	return func() {
		haltLock.Lock()
		haltHandler = prev
		haltLock.Unlock()
	}
}

// Halt stops the system deterministically. There is no degraded mode
// without the coordination objects.
func Halt(err error) {
	haltLock.Lock()
	h := haltHandler
	haltLock.Unlock()
	h(err)
}
