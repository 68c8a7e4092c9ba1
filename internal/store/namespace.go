// Package store holds the KeyValueStore backends that persist login throttle
// state, and helpers shared by all of them.
package store

import (
	"context"

	"QLDCwebserver/internal/throttle"
)

// Namespace scopes every key of kv under prefix, separated by a colon.
func Namespace(kv throttle.KeyValueStore, prefix string) throttle.KeyValueStore {
	if prefix == "" {
		return kv
	}
	return &namespaced{kv: kv, prefix: prefix + ":"}
}

type namespaced struct {
	kv     throttle.KeyValueStore
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.kv.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.kv.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.kv.Delete(ctx, n.prefix+key)
}

// Backend is a KeyValueStore the server owns for its whole lifetime.
type Backend interface {
	throttle.KeyValueStore
	Ping(ctx context.Context) error
	Close() error
}
