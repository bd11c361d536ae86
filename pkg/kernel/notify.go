package kernel

import (
	"context"
	"time"
)

// NotifyAction defines how a notification updates the slot value.
type NotifyAction int

// Notification actions.
const (
	NotifyNoAction NotifyAction = iota
	NotifySetBits
	NotifyIncrement
	NotifySetValueWithOverwrite
	NotifySetValueWithoutOverwrite
)

// String implements fmt.Stringer.
func (a NotifyAction) String() string {
	switch a {
	case NotifyNoAction:
		return "no-action"
	case NotifySetBits:
		return "set-bits"
	case NotifyIncrement:
		return "increment"
	case NotifySetValueWithOverwrite:
		return "set-value-overwrite"
	case NotifySetValueWithoutOverwrite:
		return "set-value"
	}
	return "unknown"
}

// Notify updates the notification slot of the task and marks it pending.
func (t *Task) Notify(action NotifyAction, value uint32) error {
	_, err := t.notify(action, value)
	return err
}

// NotifyFromISR is the interrupt variant of Notify.
func (t *Task) NotifyFromISR(action NotifyAction, value uint32) (woken bool, err error) {
	return t.notify(action, value)
}

// NotifyGive increments the notification value, used as a light
// weight counting semaphore.
func (t *Task) NotifyGive() {
	t.notify(NotifyIncrement, 0)
}

// NotifyGiveFromISR is the interrupt variant of NotifyGive.
func (t *Task) NotifyGiveFromISR() (woken bool) {
	woken, _ = t.notify(NotifyIncrement, 0)
	return
}

func (t *Task) notify(action NotifyAction, value uint32) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch action {
	case NotifySetBits:
		t.notifyValue |= value
	case NotifyIncrement:
		t.notifyValue++
	case NotifySetValueWithOverwrite:
		t.notifyValue = value
	case NotifySetValueWithoutOverwrite:
		if t.notifyPending {
			return false, ErrNotificationPending
		}
		t.notifyValue = value
	}
	t.notifyPending = true
	if !t.notifyWaiting {
		return false, nil
	}
	t.notifyCV.Broadcast()
	t.ready()
	return t.preempts(t.EffectivePriority()), nil
}

// NotifyPending reports whether a notification is pending.
func (t *Task) NotifyPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notifyPending
}

func (t *Task) checkOwner(ctx context.Context) error {
	if caller := TaskFrom(ctx); caller != nil && caller != t {
		return ErrNotOwner
	}
	return nil
}

// NotifyTake waits until the notification value is non-zero. It returns
// the value before it is cleared, or decremented when clear is false.
func (t *Task) NotifyTake(ctx context.Context, clear bool, timeout time.Duration) (uint32, error) {
	if err := t.checkOwner(ctx); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.notifyValue == 0 {
		if timeout == NoWait {
			return 0, ErrTimeout
		}
		t.notifyWaiting = true
		err := waitUntil(ctx, &t.mu, &t.notifyCV, func() bool { return t.notifyValue != 0 }, timeout)
		t.notifyWaiting = false
		if err != nil {
			return 0, err
		}
	}
	v := t.notifyValue
	if clear {
		t.notifyValue = 0
	} else {
		t.notifyValue--
	}
	t.notifyPending = false
	return v, nil
}

// NotifyWait waits until a notification is pending. Bits in
// clearOnEntry are cleared before waiting when nothing is pending, bits
// in clearOnExit are cleared after the value is read.
func (t *Task) NotifyWait(ctx context.Context, clearOnEntry, clearOnExit uint32, timeout time.Duration) (uint32, error) {
	if err := t.checkOwner(ctx); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.notifyPending {
		t.notifyValue &^= clearOnEntry
		if timeout == NoWait {
			return 0, ErrTimeout
		}
		t.notifyWaiting = true
		err := waitUntil(ctx, &t.mu, &t.notifyCV, func() bool { return t.notifyPending }, timeout)
		t.notifyWaiting = false
		if err != nil {
			return 0, err
		}
	}
	v := t.notifyValue
	t.notifyValue &^= clearOnExit
	t.notifyPending = false
	return v, nil
}
