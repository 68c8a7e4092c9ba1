package throttle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	KeyFailedAttempts = "login_failed_attempts"
	KeyLockedUntil    = "login_locked_until"
)

// KeyValueStore is the persistence capability a throttle needs. Get reports
// ok=false for a missing key; that is not an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var errCorrupt = errors.New("corrupt throttle entry")

// read loads both entries independently; any entry that cannot be read or
// decoded falls back to its default.
func (t *Throttle) read(ctx context.Context) State {
	var s State
	if t.store == nil {
		return s
	}

	if raw, ok := t.get(ctx, KeyFailedAttempts); ok {
		n, err := decodeAttempts(raw, t.cfg.MaxAttempts)
		if err != nil {
			t.storeError("decode", fmt.Errorf("%s: %w", KeyFailedAttempts, err))
		} else {
			s.FailedAttempts = n
		}
	}

	if raw, ok := t.get(ctx, KeyLockedUntil); ok {
		until, err := decodeLockedUntil(raw)
		if err != nil {
			t.storeError("decode", fmt.Errorf("%s: %w", KeyLockedUntil, err))
		} else {
			s.LockedUntil = until
		}
	}

	return s
}

func (t *Throttle) get(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil {
		t.storeError("read", fmt.Errorf("get %s: %w", key, err))
		return nil, false
	}
	return raw, ok
}

// write mirrors the in-memory state to the store. Callers hold t.mu.
func (t *Throttle) write(ctx context.Context) {
	if t.store == nil {
		return
	}

	if err := t.store.Set(ctx, KeyFailedAttempts, []byte(strconv.Itoa(t.state.FailedAttempts))); err != nil {
		t.storeError("write", fmt.Errorf("set %s: %w", KeyFailedAttempts, err))
	}

	if t.state.LockedUntil == nil {
		if err := t.store.Delete(ctx, KeyLockedUntil); err != nil {
			t.storeError("write", fmt.Errorf("delete %s: %w", KeyLockedUntil, err))
		}
		return
	}
	if err := t.store.Set(ctx, KeyLockedUntil, []byte(strconv.FormatInt(*t.state.LockedUntil, 10))); err != nil {
		t.storeError("write", fmt.Errorf("set %s: %w", KeyLockedUntil, err))
	}
}

func (t *Throttle) storeError(op string, err error) {
	t.logger.Warn("login throttle store error", "op", op, "err", err)
	if t.onStoreError != nil {
		t.onStoreError(op, err)
	}
}

func decodeAttempts(raw []byte, maxAttempts int) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if n < 0 || n > maxAttempts {
		return 0, fmt.Errorf("%w: attempts %d out of range", errCorrupt, n)
	}
	return n, nil
}

func decodeLockedUntil(raw []byte) (*int64, error) {
	var until *int64
	if err := json.Unmarshal(raw, &until); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if until != nil && *until <= 0 {
		return nil, fmt.Errorf("%w: lock timestamp %d", errCorrupt, *until)
	}
	return until, nil
}
