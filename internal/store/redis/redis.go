package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store keeps throttle entries as plain Redis strings without expiry; the
// throttle decides when a lock is over, not Redis.
type Store struct {
	client *redis.Client
}

func New(opts Options) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}))
}

func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const op = "store.redis.Get"

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	const op = "store.redis.Set"

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "store.redis.Delete"

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	const op = "store.redis.Ping"

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) Close() error {
	const op = "store.redis.Close"

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
