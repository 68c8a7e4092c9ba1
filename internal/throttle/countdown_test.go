package throttle

import (
	"context"
	"sync"
	"testing"
	"time"
)

type statusLog struct {
	mu  sync.Mutex
	all []Status
}

func (l *statusLog) add(st Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, st)
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.all...)
}

func TestCountdownWhileOpenRunsNoTick(t *testing.T) {
	th := Load(context.Background(), newMapStore(), newFakeClock())

	var log statusLog
	c := th.StartCountdown(context.Background(), time.Millisecond, log.add)

	select {
	case <-c.Done():
	default:
		t.Fatalf("expected countdown to be finished immediately")
	}
	if got := log.snapshot(); len(got) != 1 || got[0].Locked {
		t.Fatalf("unexpected reports: %+v", got)
	}
	c.Stop()
}

func TestCountdownEndsWhenLockExpires(t *testing.T) {
	clock := newFakeClock()
	store := newMapStore()
	th := Load(context.Background(), store, clock)
	failTimes(t, th, 5)

	var log statusLog
	c := th.StartCountdown(context.Background(), 5*time.Millisecond, log.add)

	first := log.snapshot()
	if len(first) != 1 || !first[0].Locked {
		t.Fatalf("expected locked first report, got %+v", first)
	}

	clock.Advance(DefaultLockDuration)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		c.Stop()
		t.Fatalf("countdown did not stop after lock expiry")
	}

	reports := log.snapshot()
	last := reports[len(reports)-1]
	if last.Locked || last.RemainingAttempts != DefaultMaxAttempts {
		t.Fatalf("unexpected final report: %+v", last)
	}
	for _, st := range reports[:len(reports)-1] {
		if !st.Locked {
			t.Fatalf("open status reported before the final one: %+v", reports)
		}
	}
	if _, present := store.data[KeyLockedUntil]; present {
		t.Fatalf("expected expiry to be persisted by the countdown")
	}

	c.Stop()
}

func TestCountdownStop(t *testing.T) {
	th := Load(context.Background(), newMapStore(), newFakeClock())
	failTimes(t, th, 5)

	c := th.StartCountdown(context.Background(), time.Millisecond, nil)
	c.Stop()

	select {
	case <-c.Done():
	default:
		t.Fatalf("expected Done to be closed after Stop")
	}
	c.Stop()
}

func TestCountdownStopsWithContext(t *testing.T) {
	th := Load(context.Background(), newMapStore(), newFakeClock())
	failTimes(t, th, 5)

	ctx, cancel := context.WithCancel(context.Background())
	c := th.StartCountdown(ctx, time.Millisecond, nil)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown ignored context cancellation")
	}
}

func TestCountdownFollowsLockEnteredElsewhere(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMapStore()

	failTimes(t, Load(ctx, store, clock), 5)
	stale := Load(ctx, store, clock)

	clock.Advance(DefaultLockDuration)
	failTimes(t, Load(ctx, store, clock), 5)

	var log statusLog
	c := stale.StartCountdown(ctx, 5*time.Millisecond, log.add)
	defer c.Stop()

	if first := log.snapshot(); len(first) != 1 || !first[0].Locked {
		t.Fatalf("expected the newer lock to be reported, got %+v", first)
	}
	select {
	case <-c.Done():
		t.Fatalf("countdown ended while the profile is locked")
	default:
	}
	if !Load(ctx, store, clock).IsLocked() {
		t.Fatalf("countdown cleared the newer lock")
	}

	clock.Advance(DefaultLockDuration)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown did not stop after the newer lock expired")
	}
	if Load(ctx, store, clock).IsLocked() {
		t.Fatalf("expected profile to be open")
	}
}
