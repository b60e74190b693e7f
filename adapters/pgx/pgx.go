// Package pgx persists the bearer token in PostgreSQL.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eaglesoak/portal/core"
)

// querier is the part of pgxpool.Pool the store uses
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Adapter struct {
	db  querier
	key string
}

var _ core.TokenStore = (*Adapter)(nil)

func New(pool *pgxpool.Pool, key string) *Adapter {
	if key == "" {
		key = core.TokenKey
	}
	return &Adapter{
		db:  pool,
		key: key,
	}
}

// Connect opens a pool on dsn and makes sure the table exists
func Connect(ctx context.Context, dsn, key string) (*Adapter, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgx: ping: %w", err)
	}

	adapter := New(pool, key)
	if err := adapter.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return adapter, pool, nil
}

func (a *Adapter) Migrate(ctx context.Context) error {
	_, err := a.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS portal_client_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("pgx: migrate: %w", err)
	}
	return nil
}

func (a *Adapter) Load(ctx context.Context) (string, error) {
	var token string
	err := a.db.QueryRow(ctx, `SELECT value FROM portal_client_state WHERE key = $1`, a.key).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("pgx: load token: %w", err)
	}
	return token, nil
}

func (a *Adapter) Save(ctx context.Context, token string) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO portal_client_state (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		a.key, token)
	if err != nil {
		return fmt.Errorf("pgx: save token: %w", err)
	}
	return nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, `DELETE FROM portal_client_state WHERE key = $1`, a.key); err != nil {
		return fmt.Errorf("pgx: clear token: %w", err)
	}
	return nil
}
