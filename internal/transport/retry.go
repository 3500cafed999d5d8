package transport

import (
	"context"
	"time"
)

// Retry runs an attempt repeatedly until its context is done, waiting a fixed
// Delay after every attempt. There is no retry limit.
type Retry struct {
	Delay time.Duration

	// Sleep waits d or until ctx is done and reports whether the full delay
	// elapsed. Nil means sleepCtx.
	Sleep func(ctx context.Context, d time.Duration) bool

	// OnError is called for every attempt that returned a non-nil error,
	// with the 1-based attempt number.
	OnError func(attempt int, err error)
}

// Run calls fn until ctx is done. An attempt that returns nil is still
// followed by the delay: fn is expected to run for as long as ctx lives, so a
// clean return means the resource went away.
func (r Retry) Run(ctx context.Context, fn func(ctx context.Context) error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	delay := r.Delay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := fn(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && r.OnError != nil {
			r.OnError(attempt, err)
		}
		if !sleep(ctx, delay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
