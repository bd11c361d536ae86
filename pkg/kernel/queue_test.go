package kernel

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewQueue(t *testing.T) {
	_, err := NewQueue[int](0)
	require.Equal(t, ErrInvalidCapacity, err)
	q, err := NewQueue[int](3)
	require.NoError(t, err)
	require.Equal(t, 3, q.Cap())
	require.Equal(t, 0, q.Len())
}

func TestQueueFullAndEmpty(t *testing.T) {
	ctx := context.Background()
	q := MustNewQueue[byte](2)

	_, err := q.Receive(ctx, NoWait)
	require.Equal(t, ErrTimeout, err)
	require.NoError(t, q.Send(ctx, 'a', NoWait))
	woken, err := q.SendFromISR('b')
	require.NoError(t, err)
	require.False(t, woken)
	require.Equal(t, ErrQueueFull, q.Send(ctx, 'c', NoWait))
	require.Equal(t, ErrQueueFull, q.Send(ctx, 'c', time.Millisecond))
	_, err = q.SendFromISR('c')
	require.Equal(t, ErrQueueFull, err)

	v, err := q.Peek(ctx, NoWait)
	require.NoError(t, err)
	require.Equal(t, byte('a'), v)
	require.Equal(t, 2, q.Len())
}

func TestQueueFIFO(t *testing.T) {
	for _, capacity := range []int{2, 3, 8} {
		q := MustNewQueue[int](capacity)
		ctx := context.Background()
		const count = 500
		rnd := rand.New(rand.NewSource(int64(capacity)))
		delays := make([]time.Duration, count)
		for n := range delays {
			if rnd.Intn(10) == 0 {
				delays[n] = time.Duration(rnd.Intn(100)) * time.Microsecond
			}
		}
		sent := make(chan error, 1)
		go func() {
			for n := 0; n < count; n++ {
				if d := delays[n]; d > 0 {
					time.Sleep(d)
				}
				if err := q.Send(ctx, n, WaitForever); err != nil {
					sent <- err
					return
				}
			}
			sent <- nil
		}()
		received := make([]int, 0, count)
		for n := 0; n < count; n++ {
			if d := delays[count-1-n]; d > 0 {
				time.Sleep(d)
			}
			v, err := q.Receive(ctx, waitLimit)
			require.NoError(t, err)
			received = append(received, v)
		}
		require.NoError(t, <-sent)
		for n, v := range received {
			require.Equalf(t, n, v, "capacity %d position %d", capacity, n)
		}
	}
}

func TestQueueBlockedSenderResumes(t *testing.T) {
	k := New()
	q := MustNewQueue[int](1)
	sender, ctx := testTask(t, k, "sender", PriorityNormal)
	require.NoError(t, q.Send(ctx, 1, NoWait))

	done := make(chan error, 1)
	go func() { done <- q.Send(ctx, 2, WaitForever) }()
	requireState(t, sender, StateSuspended)

	v, err := q.Receive(context.Background(), NoWait)
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.NoError(t, <-done)
	v, err = q.Receive(context.Background(), NoWait)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestQueueReceiverHandOff(t *testing.T) {
	k := New()
	q := MustNewQueue[string](4)
	recv, ctx := testTask(t, k, "recv", PriorityHigh)

	got, errs := make(chan string, 1), make(chan error, 1)
	go func() {
		v, err := q.Receive(ctx, WaitForever)
		got <- v
		errs <- err
	}()
	requireState(t, recv, StateSuspended)
	woken, err := q.SendFromISR("x")
	require.NoError(t, err)
	require.True(t, woken)
	require.Equal(t, "x", <-got)
	require.NoError(t, <-errs)
	require.Equal(t, 0, q.Len())
}

func TestMailbox(t *testing.T) {
	ctx := context.Background()
	mb := NewMailbox[int]()
	require.Equal(t, 1, mb.Cap())

	_, err := mb.Peek(ctx, NoWait)
	require.Equal(t, ErrTimeout, err)
	for n := 0; n < 5; n++ {
		mb.Overwrite(n)
		require.Equal(t, 1, mb.Len())
	}
	require.False(t, mb.OverwriteFromISR(7))
	for n := 0; n < 3; n++ {
		v, err := mb.Peek(ctx, NoWait)
		require.NoError(t, err)
		require.Equal(t, 7, v)
		require.Equal(t, 1, mb.Len())
	}
	require.Equal(t, ErrQueueFull, mb.Send(ctx, 8, NoWait))
	v, err := mb.Receive(ctx, NoWait)
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 0, mb.Len())
}

func TestMailboxPeekWaiter(t *testing.T) {
	k := New()
	mb := NewMailbox[int]()
	peeker, ctx := testTask(t, k, "peeker", PriorityNormal)

	got, errs := make(chan int, 1), make(chan error, 1)
	go func() {
		v, err := mb.Peek(ctx, WaitForever)
		got <- v
		errs <- err
	}()
	requireState(t, peeker, StateSuspended)
	require.True(t, mb.OverwriteFromISR(42))
	require.Equal(t, 42, <-got)
	require.NoError(t, <-errs)
	require.Equal(t, 1, mb.Len())
}

func TestMailboxOverwriteSupersedesSender(t *testing.T) {
	k := New()
	mb := NewMailbox[int]()
	sender, ctx := testTask(t, k, "sender", PriorityNormal)
	require.NoError(t, mb.Send(ctx, 1, NoWait))

	done := make(chan error, 1)
	go func() { done <- mb.Send(ctx, 2, WaitForever) }()
	requireState(t, sender, StateSuspended)

	mb.Overwrite(3)
	require.NoError(t, <-done)
	v, err := mb.Receive(context.Background(), NoWait)
	require.NoError(t, err)
	require.Equal(t, 3, v)
	_, err = mb.Receive(context.Background(), NoWait)
	require.Equal(t, ErrTimeout, err)
	require.Equal(t, 0, mb.Len())
}
