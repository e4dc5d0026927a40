// Package runloop is the single goroutine that owns all driver state.
//
// Ownership boundary:
// - one step function run per wakeup, never concurrently
// - posted closures from other goroutines, run between steps
// - deadline bookkeeping for every bounded wait
package runloop

import (
	"context"
	"errors"
	"time"
)

var ErrStopped = errors.New("runloop: stopped")

// StepFunc runs one pass of the owner's state machines and reports the
// earliest time it needs to run again. ok=false means "only on input".
type StepFunc func(now time.Time) (next time.Time, ok bool)

type Loop struct {
	clock Clock
	posts chan func()
	wake  chan struct{}
	done  chan struct{}
}

func New(clock Clock, backlog int) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	if backlog <= 0 {
		backlog = 64
	}
	return &Loop{
		clock: clock,
		posts: make(chan func(), backlog),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Clock() Clock {
	return l.clock
}

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.posts <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Call runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Notify forces one extra step without queuing work.
func (l *Loop) Notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Run(ctx context.Context, step StepFunc) error {
	defer close(l.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		now := l.clock.Now()
		next, ok := step(now)

		var timerC <-chan time.Time
		if ok {
			wait := next.Sub(now)
			if wait <= 0 {
				// Yield: drain whatever is already queued, then step again.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case fn := <-l.posts:
					fn()
				default:
				}
				continue
			}
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.posts:
			fn()
		case <-l.wake:
		case <-timerC:
		}
		timer.Stop()
	}
}
