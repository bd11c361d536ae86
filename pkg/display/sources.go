package display

import (
	"context"
	"errors"

	"github.com/robotalks/rtlab/pkg/kernel"
)

// Integer is a value type a mailbox can carry to the display.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// MailboxSource peeks at a mailbox without waiting. The last value is
// shown again while the mailbox is empty, which is accepted as stale.
type MailboxSource[T Integer] struct {
	Mailbox *kernel.Mailbox[T]

	last int
}

// Load implements ValueSource.
func (s *MailboxSource[T]) Load(ctx context.Context) (int, error) {
	v, err := s.Mailbox.Peek(ctx, kernel.NoWait)
	switch {
	case err == nil:
		s.last = int(v)
	case !errors.Is(err, kernel.ErrTimeout):
		return 0, err
	}
	return s.last, nil
}

// NotifiedSource reads values delivered to the calling task's
// notification slot, e.g. with SetValueWithOverwrite. It must be
// loaded from the task receiving the notifications.
type NotifiedSource struct {
	last int
}

// Load implements ValueSource.
func (s *NotifiedSource) Load(ctx context.Context) (int, error) {
	t := kernel.TaskFrom(ctx)
	if t == nil {
		return 0, kernel.ErrNoTask
	}
	v, err := t.NotifyWait(ctx, 0, 0, kernel.NoWait)
	switch {
	case err == nil:
		s.last = int(v)
	case !errors.Is(err, kernel.ErrTimeout):
		return 0, err
	}
	return s.last, nil
}
