package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eaglesoak/portal/adapters/pgx"
	"github.com/eaglesoak/portal/adapters/redis"
	"github.com/eaglesoak/portal/adapters/sqlite"
	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/internal/config"
	"github.com/eaglesoak/portal/pkg/crypto"
)

func openTokenStore(ctx context.Context, sc config.StoreConfig) (core.TokenStore, func(), error) {
	var (
		store   core.TokenStore
		cleanup = func() {}
	)

	switch sc.Kind {
	case config.StoreMemory:
		store = core.NewMemoryTokenStore("")

	case config.StoreSQLite:
		s, err := sqlite.Open(sc.DSN, core.TokenKey)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = s, func() { _ = s.Close() }

	case config.StoreRedis:
		s, err := redis.Dial(ctx, sc.DSN, core.TokenKey)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = s, func() { _ = s.Close() }

	case config.StorePostgres:
		s, pool, err := pgx.Connect(ctx, sc.DSN, core.TokenKey)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = s, pool.Close

	default:
		return nil, nil, fmt.Errorf("unknown token store %q", sc.Kind)
	}

	if sc.Passphrase == "" {
		return store, cleanup, nil
	}
	sealed, err := crypto.NewSealedTokenStore(store, sc.Passphrase)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Debug("token store sealed", zap.String("kind", sc.Kind))
	return sealed, cleanup, nil
}
