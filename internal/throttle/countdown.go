package throttle

import (
	"context"
	"time"
)

// Countdown is a running lock countdown started by StartCountdown.
type Countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartCountdown reports the current status to fn and, while the throttle is
// locked, keeps re-observing it every interval. The tick ends on its own once
// it has reported the unlocked status, or when ctx is cancelled or Stop is
// called. Starting while unlocked reports once and runs no tick.
//
// fn runs synchronously for the first report and on the countdown goroutine
// afterwards, never concurrently with itself.
func (t *Throttle) StartCountdown(ctx context.Context, interval time.Duration, fn func(Status)) *Countdown {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	c := &Countdown{done: make(chan struct{})}

	st := t.Observe(ctx)
	if fn != nil {
		fn(st)
	}
	if !st.Locked {
		c.cancel = func() {}
		close(c.done)
		return c
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, t, interval, fn)
	return c
}

func (c *Countdown) run(ctx context.Context, t *Throttle, interval time.Duration, fn func(Status)) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := t.Observe(ctx)
			if fn != nil {
				fn(st)
			}
			if !st.Locked {
				return
			}
		}
	}
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} { return c.done }

// Stop cancels the countdown and waits for its goroutine to exit. It is safe
// to call more than once and after the countdown has finished by itself.
func (c *Countdown) Stop() {
	c.cancel()
	<-c.done
}
