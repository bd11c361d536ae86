package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMutexOwnership(t *testing.T) {
	k := New()
	m := NewMutex()
	a, actx := testTask(t, k, "a", PriorityNormal)
	_, bctx := testTask(t, k, "b", PriorityNormal)

	require.Equal(t, ErrNoTask, m.Lock(context.Background(), NoWait))
	require.NoError(t, m.Lock(actx, NoWait))
	require.Equal(t, a, m.Owner())
	require.Equal(t, ErrRecursiveLock, m.Lock(actx, NoWait))
	require.Equal(t, ErrTimeout, m.Lock(bctx, NoWait))
	require.Equal(t, ErrTimeout, m.Lock(bctx, time.Millisecond))
	require.Equal(t, ErrNotOwner, m.Unlock(bctx))
	require.NoError(t, m.Unlock(actx))
	require.Nil(t, m.Owner())
	require.Equal(t, ErrNotOwner, m.Unlock(actx))
}

func TestMutexMutualExclusion(t *testing.T) {
	k := New()
	m := NewMutex()
	var (
		inside  int
		maxSeen int
		value   [2]int
		torn    bool
		wg      sync.WaitGroup
		probe   sync.Mutex
	)
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		_, ctx := testTask(t, k, "worker", Priority(i))
		wg.Add(1)
		go func(ctx context.Context, n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if err := m.Lock(ctx, WaitForever); err != nil {
					errs <- err
					return
				}
				probe.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				probe.Unlock()
				if value[0] != value[1] {
					torn = true
				}
				value[0] = n*1000 + j
				time.Sleep(time.Microsecond)
				value[1] = n*1000 + j
				probe.Lock()
				inside--
				probe.Unlock()
				if err := m.Unlock(ctx); err != nil {
					errs <- err
					return
				}
			}
		}(ctx, i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, maxSeen)
	require.False(t, torn)
}

func TestMutexPriorityInheritance(t *testing.T) {
	k := New()
	m := NewMutex()
	low, lowCtx := testTask(t, k, "low", PriorityLow)
	mid, midCtx := testTask(t, k, "mid", PriorityNormal)
	high, highCtx := testTask(t, k, "high", PriorityHigh)

	require.NoError(t, m.Lock(lowCtx, NoWait))
	require.Equal(t, PriorityLow, low.EffectivePriority())

	midDone := make(chan error, 1)
	go func() { midDone <- m.Lock(midCtx, WaitForever) }()
	requireState(t, mid, StateSuspended)
	require.Equal(t, PriorityNormal, low.EffectivePriority())

	highDone := make(chan error, 1)
	go func() { highDone <- m.Lock(highCtx, 200*time.Millisecond) }()
	requireState(t, high, StateBlocked)
	require.Equal(t, PriorityHigh, low.EffectivePriority())

	// the high waiter gives up, the owner falls back to the remaining waiter
	require.Equal(t, ErrTimeout, <-highDone)
	require.Equal(t, PriorityNormal, low.EffectivePriority())

	require.NoError(t, m.Unlock(lowCtx))
	require.NoError(t, <-midDone)
	require.Equal(t, PriorityLow, low.EffectivePriority())
	require.Equal(t, mid, m.Owner())
	require.Equal(t, PriorityNormal, mid.EffectivePriority())
	require.NoError(t, m.Unlock(midCtx))
}

func TestMutexHandOffByPriority(t *testing.T) {
	k := New()
	m := NewMutex()
	_, ownerCtx := testTask(t, k, "owner", PriorityIdle)
	low, lowCtx := testTask(t, k, "low", PriorityLow)
	high, highCtx := testTask(t, k, "high", PriorityHigh)

	require.NoError(t, m.Lock(ownerCtx, NoWait))
	order := make(chan string, 2)
	waitLock := func(ctx context.Context, name string) {
		require.NoError(t, m.Lock(ctx, WaitForever))
		order <- name
		require.NoError(t, m.Unlock(ctx))
	}
	go waitLock(lowCtx, "low")
	requireState(t, low, StateSuspended)
	go waitLock(highCtx, "high")
	requireState(t, high, StateSuspended)

	require.NoError(t, m.Unlock(ownerCtx))
	require.Equal(t, "high", <-order)
	require.Equal(t, "low", <-order)
}
