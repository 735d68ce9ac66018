package observable

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValueGetSetUpdate(t *testing.T) {
	v := NewValue(1)
	if got := v.Get(); got != 1 {
		t.Fatalf("Get() = %d, expected 1", got)
	}

	v.Set(5)
	if got := v.Update(func(x int) int { return x * 2 }); got != 10 {
		t.Errorf("Update() = %d, expected 10", got)
	}

	if v.CompareAndSwap(func(x int) bool { return x == 3 }, 0) {
		t.Error("CompareAndSwap should not swap on mismatch")
	}
	if !v.CompareAndSwap(func(x int) bool { return x == 10 }, 0) || v.Get() != 0 {
		t.Error("CompareAndSwap should swap on match")
	}
}

func TestSubscribeReplaysAndConflates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v := NewValue("a")
	ch := v.Subscribe(ctx)

	if got := <-ch; got != "a" {
		t.Fatalf("first value = %q, expected replay of %q", got, "a")
	}

	v.Set("b")
	v.Set("c")
	v.Set("d")
	if got := <-ch; got != "d" {
		t.Errorf("conflated value = %q, expected %q", got, "d")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// a last buffered value is allowed, the close must follow
			if _, ok := <-ch; ok {
				t.Error("channel not closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestAwait(t *testing.T) {
	v := NewValue(0)
	go func() {
		for i := 1; i <= 3; i++ {
			time.Sleep(5 * time.Millisecond)
			v.Set(i)
		}
	}()

	got, err := v.Await(context.Background(), func(x int) bool { return x >= 3 })
	if err != nil || got != 3 {
		t.Errorf("Await() = %d, %v; expected 3, nil", got, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = v.Await(ctx, func(x int) bool { return x > 100 })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v, expected deadline exceeded", err)
	}
}
