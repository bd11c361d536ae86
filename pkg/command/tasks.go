package command

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtlab/pkg/kernel"
)

// ParserTask receives symbols and enqueues parsed commands.
type ParserTask struct {
	Parser   *Parser
	Symbols  *kernel.Queue[byte]
	Commands *kernel.Queue[Command]
	// SendTimeout bounds the wait for space in Commands.
	SendTimeout time.Duration
	// OnCommand, if set, observes each enqueued command.
	OnCommand func(Command)
	// OnDrop, if set, observes each command lost on a full queue.
	OnDrop func(Command)

	parsed  atomic.Uint64
	dropped atomic.Uint64
}

// Parsed returns the number of enqueued commands.
func (t *ParserTask) Parsed() uint64 {
	return t.parsed.Load()
}

// Dropped returns the number of commands lost on a full queue.
func (t *ParserTask) Dropped() uint64 {
	return t.dropped.Load()
}

// Step implements kernel.Body.
func (t *ParserTask) Step(ctx context.Context) error {
	b, err := t.Symbols.Receive(ctx, kernel.WaitForever)
	if err != nil {
		return err
	}
	cmd := t.Parser.Parse(b)
	if cmd == nil {
		return nil
	}
	if err := t.Commands.Send(ctx, cmd, t.SendTimeout); err != nil {
		if errors.Is(err, kernel.ErrQueueFull) {
			t.dropped.Add(1)
			if fn := t.OnDrop; fn != nil {
				fn(cmd)
			}
		}
		return err
	}
	t.parsed.Add(1)
	glog.V(2).Infof("parser: %s queued", cmd)
	if fn := t.OnCommand; fn != nil {
		fn(cmd)
	}
	return nil
}

// ActuatorTask applies commands in FIFO order.
type ActuatorTask struct {
	Commands *kernel.Queue[Command]
	Handler  Handler

	applied atomic.Uint64
}

// Applied returns the number of applied commands.
func (t *ActuatorTask) Applied() uint64 {
	return t.applied.Load()
}

// Step implements kernel.Body.
func (t *ActuatorTask) Step(ctx context.Context) error {
	cmd, err := t.Commands.Receive(ctx, kernel.WaitForever)
	if err != nil {
		return err
	}
	if err := cmd.Dispatch(t.Handler); err != nil {
		return err
	}
	t.applied.Add(1)
	glog.V(2).Infof("actuator: %s applied", cmd)
	return nil
}
