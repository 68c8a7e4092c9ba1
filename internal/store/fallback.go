package store

import (
	"context"
	"sync"

	"QLDCwebserver/internal/throttle"
)

// FallbackStore keeps throttle state usable while its primary store fails.
// Writes the primary rejects are held in process memory and take precedence
// over the primary until the primary accepts a write for the same key again.
// Failures are reported to onError and never returned.
type FallbackStore struct {
	primary throttle.KeyValueStore
	onError func(op string, err error)

	mu      sync.Mutex
	pending map[string]pendingEntry
}

type pendingEntry struct {
	value   []byte
	deleted bool
}

func Fallback(primary throttle.KeyValueStore, onError func(op string, err error)) *FallbackStore {
	return &FallbackStore{
		primary: primary,
		onError: onError,
		pending: make(map[string]pendingEntry),
	}
}

func (f *FallbackStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	e, held := f.pending[key]
	f.mu.Unlock()
	if held {
		if e.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), e.value...), true, nil
	}

	v, ok, err := f.primary.Get(ctx, key)
	if err != nil {
		f.report("read", err)
		return nil, false, nil
	}
	return v, ok, nil
}

func (f *FallbackStore) Set(ctx context.Context, key string, value []byte) error {
	err := f.primary.Set(ctx, key, value)
	f.settle(key, pendingEntry{value: append([]byte(nil), value...)}, err)
	return nil
}

func (f *FallbackStore) Delete(ctx context.Context, key string) error {
	err := f.primary.Delete(ctx, key)
	f.settle(key, pendingEntry{deleted: true}, err)
	return nil
}

// Pending reports how many keys are currently held in memory.
func (f *FallbackStore) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *FallbackStore) settle(key string, e pendingEntry, err error) {
	f.mu.Lock()
	if err != nil {
		f.pending[key] = e
	} else {
		delete(f.pending, key)
	}
	f.mu.Unlock()

	if err != nil {
		f.report("write", err)
	}
}

func (f *FallbackStore) report(op string, err error) {
	if f.onError != nil {
		f.onError(op, err)
	}
}
