package match

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestForEach_VisitsEveryIndex(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 64} {
		seen := make([]int32, 1000)
		if err := forEach(context.Background(), len(seen), workers, func(i int) {
			atomic.AddInt32(&seen[i], 1)
		}); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		for i, n := range seen {
			if n != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, n)
			}
		}
	}
}

func TestForEach_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Chunks of 100 start at offsets that are not multiples of 256.
	for _, n := range []int{0, 1, 7, 300} {
		var calls atomic.Int32
		err := forEach(ctx, n, 3, func(int) { calls.Add(1) })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("n=%d: err = %v, want context.Canceled", n, err)
		}
		if c := calls.Load(); c != 0 {
			t.Errorf("n=%d: fn called %d times after cancel", n, c)
		}
	}
}
