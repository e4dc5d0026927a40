package runloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/testutil/testlog"
)

func TestDeadlineExpiry(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(time.Unix(1000, 0))

	var d Deadline
	if d.Expired(clock.Now()) {
		t.Fatalf("unarmed deadline must not expire")
	}
	d.Arm(clock.Now(), 2*time.Second)
	if d.Expired(clock.Now()) {
		t.Fatalf("deadline expired early")
	}
	clock.Advance(1999 * time.Millisecond)
	if d.Expired(clock.Now()) {
		t.Fatalf("deadline expired before bound")
	}
	clock.Advance(time.Millisecond)
	if !d.Expired(clock.Now()) {
		t.Fatalf("deadline should expire at bound")
	}
	d.Clear()
	if d.Expired(clock.Now()) {
		t.Fatalf("cleared deadline must not expire")
	}
}

func TestHorizonKeepsEarliest(t *testing.T) {
	testlog.Start(t)
	base := time.Unix(0, 0)
	var h Horizon
	if _, ok := h.Next(); ok {
		t.Fatalf("empty horizon should report no deadline")
	}
	h.Until(base.Add(5 * time.Second))
	h.Until(base.Add(2 * time.Second))
	h.Until(base.Add(9 * time.Second))

	var d Deadline
	d.Arm(base, 3*time.Second)
	h.Watch(&d)

	at, ok := h.Next()
	if !ok || !at.Equal(base.Add(2*time.Second)) {
		t.Fatalf("unexpected horizon: %v %v", at, ok)
	}
	h.Reset()
	if _, ok := h.Next(); ok {
		t.Fatalf("reset horizon should be empty")
	}
}

func TestLoopRunsPostedWorkSerially(t *testing.T) {
	testlog.Start(t)
	loop := New(SystemClock{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var steps atomic.Int64
	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx, func(now time.Time) (time.Time, bool) {
			steps.Add(1)
			return time.Time{}, false
		})
	}()

	var counter int
	for i := 0; i < 10; i++ {
		if err := loop.Call(ctx, func() { counter++ }); err != nil {
			t.Fatalf("call: %v", err)
		}
	}
	if counter != 10 {
		t.Fatalf("unexpected counter: %d", counter)
	}
	if steps.Load() < 10 {
		t.Fatalf("expected a step after each post, got %d", steps.Load())
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := loop.Post(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after run returns, got %v", err)
	}
}

func TestLoopWakesAtRequestedDeadline(t *testing.T) {
	testlog.Start(t)
	loop := New(SystemClock{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fired := make(chan struct{})
	var target time.Time
	go func() {
		_ = loop.Run(ctx, func(now time.Time) (time.Time, bool) {
			if target.IsZero() {
				target = now.Add(20 * time.Millisecond)
			}
			if !now.Before(target) {
				select {
				case <-fired:
				default:
					close(fired)
				}
				return time.Time{}, false
			}
			return target, true
		})
	}()

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatalf("loop never woke for its deadline")
	}
}
