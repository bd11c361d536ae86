package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBinarySemaphoreGiveTake(t *testing.T) {
	sem := NewBinarySemaphore()
	ctx := context.Background()

	require.Equal(t, ErrTimeout, sem.Take(ctx, NoWait))
	sem.Give()
	sem.Give()
	require.Equal(t, 1, sem.Value())
	require.NoError(t, sem.Take(ctx, NoWait))
	require.Equal(t, 0, sem.Value())
	require.Equal(t, ErrTimeout, sem.Take(ctx, NoWait))

	start := time.Now()
	require.Equal(t, ErrTimeout, sem.Take(ctx, 10*time.Millisecond))
	require.True(t, time.Since(start) >= 10*time.Millisecond)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.Equal(t, context.Canceled, sem.Take(cctx, WaitForever))
}

func TestBinarySemaphoreValueBounded(t *testing.T) {
	sem := NewBinarySemaphore()
	ctx := context.Background()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan int, 1)

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for n := 0; n < 1000; n++ {
				sem.Give()
			}
		}()
		go func() {
			defer wg.Done()
			for n := 0; n < 1000; n++ {
				sem.Take(ctx, time.Microsecond)
			}
		}()
	}
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if v := sem.Value(); v != 0 && v != 1 {
					select {
					case violations <- v:
					default:
					}
				}
			}
		}
	}()
	wg.Wait()
	close(stop)
	select {
	case v := <-violations:
		t.Fatalf("semaphore value %d", v)
	default:
	}
	require.Contains(t, []int{0, 1}, sem.Value())
}

func TestBinarySemaphoreHandOffByPriority(t *testing.T) {
	k := New()
	sem := NewBinarySemaphore()
	low, lowCtx := testTask(t, k, "low", PriorityLow)
	high, highCtx := testTask(t, k, "high", PriorityHigh)

	order := make(chan string, 2)
	errs := make(chan error, 2)
	take := func(ctx context.Context, name string) {
		if err := sem.Take(ctx, WaitForever); err != nil {
			errs <- err
			return
		}
		order <- name
	}
	go take(lowCtx, "low")
	requireState(t, low, StateSuspended)
	go take(highCtx, "high")
	requireState(t, high, StateSuspended)

	require.True(t, sem.GiveFromISR(), "no task running, woken task must run")
	require.Equal(t, "high", <-order)
	require.Equal(t, 0, sem.Value())

	// the high priority task is now running, waking the low one must not preempt it
	require.Equal(t, high, k.Running())
	require.False(t, sem.GiveFromISR())
	require.Equal(t, "low", <-order)
	require.Zero(t, len(errs))
}

func TestBinarySemaphoreTimeoutLeavesNoWaiter(t *testing.T) {
	sem := NewBinarySemaphore()
	require.Equal(t, ErrTimeout, sem.Take(context.Background(), time.Millisecond))
	sem.Give()
	require.Equal(t, 1, sem.Value())
}
