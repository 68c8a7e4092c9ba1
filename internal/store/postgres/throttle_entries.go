package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ThrottleStore struct {
	pool *pgxpool.Pool
}

func NewThrottleStore(pool *pgxpool.Pool) *ThrottleStore {
	return &ThrottleStore{pool: pool}
}

func (s *ThrottleStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const q = `
		SELECT value
		FROM throttle_entries
		WHERE key = $1
	`

	var value string
	err := s.pool.QueryRow(ctx, q, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get throttle entry: %w", err)
	}
	return []byte(value), true, nil
}

func (s *ThrottleStore) Set(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO throttle_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, q, key, string(value)); err != nil {
		return fmt.Errorf("set throttle entry: %w", err)
	}
	return nil
}

func (s *ThrottleStore) Delete(ctx context.Context, key string) error {
	const q = `
		DELETE FROM throttle_entries
		WHERE key = $1
	`

	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("delete throttle entry: %w", err)
	}
	return nil
}

func (s *ThrottleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *ThrottleStore) Close() error {
	s.pool.Close()
	return nil
}
