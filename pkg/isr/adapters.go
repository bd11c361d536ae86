package isr

import (
	"sync/atomic"

	"github.com/robotalks/rtlab/pkg/hal"
	"github.com/robotalks/rtlab/pkg/kernel"
)

// GiveSemaphore gives sem on every interrupt, used for edge latches
// and periodic ticks.
func GiveSemaphore(sem *kernel.BinarySemaphore) Handler {
	return HandlerFunc(func(status uint16, flags FlagRegister) bool {
		woken := sem.GiveFromISR()
		flags.Clear(status)
		return woken
	})
}

// OverwriteMailbox publishes the latest value read from the source,
// e.g. a conversion result, superseding any unread one.
func OverwriteMailbox[T any](mb *kernel.Mailbox[T], read func() T) Handler {
	return HandlerFunc(func(status uint16, flags FlagRegister) bool {
		woken := mb.OverwriteFromISR(read())
		flags.Clear(status)
		return woken
	})
}

// NotifyGive increments the notification value of the task.
func NotifyGive(task *kernel.Task) Handler {
	return HandlerFunc(func(status uint16, flags FlagRegister) bool {
		woken := task.NotifyGiveFromISR()
		flags.Clear(status)
		return woken
	})
}

// NotifyBits records the pending status bits in the notification value
// of the task, so sources sharing a vector can be told apart.
func NotifyBits(task *kernel.Task) Handler {
	return HandlerFunc(func(status uint16, flags FlagRegister) bool {
		woken, _ := task.NotifyFromISR(kernel.NotifySetBits, uint32(status))
		flags.Clear(status)
		return woken
	})
}

// SymbolReceiver forwards received bytes into a queue. A byte arriving
// at a full queue is dropped and counted.
type SymbolReceiver struct {
	Queue *kernel.Queue[byte]
	RX    hal.ByteReceiver
	// Echo, if set, transmits each received byte back.
	Echo hal.ByteTransmitter

	received atomic.Uint64
	dropped  atomic.Uint64
}

// HandleInterrupt implements Handler.
func (r *SymbolReceiver) HandleInterrupt(status uint16, flags FlagRegister) bool {
	b := r.RX.ReceiveByte()
	r.received.Add(1)
	woken, err := r.Queue.SendFromISR(b)
	if err != nil {
		r.dropped.Add(1)
	}
	if r.Echo != nil {
		r.Echo.TransmitByte(b)
	}
	flags.Clear(status)
	return woken
}

// Received returns the number of bytes received.
func (r *SymbolReceiver) Received() uint64 {
	return r.received.Load()
}

// Dropped returns the number of bytes dropped on a full queue.
func (r *SymbolReceiver) Dropped() uint64 {
	return r.dropped.Load()
}
