// Package throttle implements the client-side login throttle: consecutive
// failed attempts are counted per client profile and, once MaxAttempts is
// reached, further logins are refused until LockDuration has passed.
//
// State lives in two independent entries of a KeyValueStore so it survives
// reloads. Persistence is best effort; a store that fails or holds garbage
// degrades the throttle to in-memory bookkeeping, never to an error.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 15 * time.Second
	DefaultTickInterval = time.Second
)

type Config struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  DefaultMaxAttempts,
		LockDuration: DefaultLockDuration,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.LockDuration <= 0 {
		c.LockDuration = DefaultLockDuration
	}
	return c
}

// State is the persisted part of a throttle. LockedUntil is epoch
// milliseconds and nil when no lock is set.
type State struct {
	FailedAttempts int
	LockedUntil    *int64
}

// Status is derived from a State at a given instant.
type Status struct {
	Locked            bool
	RemainingAttempts int
	LockRemaining     time.Duration
}

// IsLockExpired reports whether s carries a lock that has run out at now.
func IsLockExpired(s State, now time.Time) bool {
	return s.LockedUntil != nil && now.UnixMilli() >= *s.LockedUntil
}

// Evaluate derives the status of s at now. An expired lock evaluates as a
// fully reset throttle even before anyone has persisted the reset.
func Evaluate(s State, now time.Time, cfg Config) Status {
	cfg = cfg.withDefaults()
	if s.LockedUntil != nil {
		nowMs := now.UnixMilli()
		if nowMs < *s.LockedUntil {
			return Status{
				Locked:        true,
				LockRemaining: time.Duration(*s.LockedUntil-nowMs) * time.Millisecond,
			}
		}
		return Status{RemainingAttempts: cfg.MaxAttempts}
	}
	return Status{RemainingAttempts: max(0, cfg.MaxAttempts-s.FailedAttempts)}
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

type Option func(*Throttle)

func WithConfig(cfg Config) Option {
	return func(t *Throttle) { t.cfg = cfg.withDefaults() }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Throttle) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithStoreErrorHook registers fn to be told about swallowed persistence
// failures. op is one of "read", "write", "decode".
func WithStoreErrorHook(fn func(op string, err error)) Option {
	return func(t *Throttle) { t.onStoreError = fn }
}

type Throttle struct {
	mu           sync.Mutex
	cfg          Config
	store        KeyValueStore
	clock        Clock
	logger       *slog.Logger
	onStoreError func(op string, err error)

	state State
}

// Load builds a throttle from whatever store holds. A nil store yields a
// purely in-memory throttle; a nil clock uses SystemClock.
func Load(ctx context.Context, store KeyValueStore, clock Clock, opts ...Option) *Throttle {
	if clock == nil {
		clock = SystemClock
	}
	t := &Throttle{
		cfg:    DefaultConfig(),
		store:  store,
		clock:  clock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state = t.read(ctx)
	return t
}

func (t *Throttle) Config() Config { return t.cfg }

// State returns a copy of the current bookkeeping.
func (t *Throttle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyState(t.state)
}

func (t *Throttle) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Evaluate(t.state, t.clock.Now(), t.cfg)
}

func (t *Throttle) IsLocked() bool { return t.Status().Locked }

func (t *Throttle) RemainingAttempts() int { return t.Status().RemainingAttempts }

func (t *Throttle) LockRemaining() time.Duration { return t.Status().LockRemaining }

// RecordFailedAttempt counts one failed login. Reaching MaxAttempts starts a
// lock of LockDuration and resets the counter.
func (t *Throttle) RecordFailedAttempt(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.expire(ctx, now)

	t.state.FailedAttempts++
	if t.state.FailedAttempts >= t.cfg.MaxAttempts {
		until := now.Add(t.cfg.LockDuration).UnixMilli()
		t.state = State{LockedUntil: &until}
		t.logger.Info("login throttle locked", "until", time.UnixMilli(until).UTC(), "duration", t.cfg.LockDuration)
	}
	t.write(ctx)
}

// RecordSuccess clears all history regardless of the current state.
func (t *Throttle) RecordSuccess(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = State{}
	t.write(ctx)
}

// Observe applies the LOCKED -> OPEN transition when the lock has run out,
// persists it, and returns the resulting status.
func (t *Throttle) Observe(ctx context.Context) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.expire(ctx, now) {
		t.write(ctx)
		t.logger.Debug("login throttle lock expired")
	}
	return Evaluate(t.state, now, t.cfg)
}

// expire handles a lock that has run out in memory. The store may have moved
// on since this throttle loaded it, so the persisted entries are read again
// and only a lock that is still expired there is cleared. It reports whether
// the state was reset. Callers hold t.mu.
func (t *Throttle) expire(ctx context.Context, now time.Time) bool {
	if !IsLockExpired(t.state, now) {
		return false
	}
	if t.store != nil {
		t.state = t.read(ctx)
		if !IsLockExpired(t.state, now) {
			return false
		}
	}
	t.state = State{}
	return true
}

func copyState(s State) State {
	out := State{FailedAttempts: s.FailedAttempts}
	if s.LockedUntil != nil {
		v := *s.LockedUntil
		out.LockedUntil = &v
	}
	return out
}
