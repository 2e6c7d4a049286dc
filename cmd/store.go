package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "assess.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initProvider builds the reference data provider sharing the store's
// connection.
func initProvider(st store.Store) (refdata.Provider, error) {
	switch s := st.(type) {
	case *store.PostgresStore:
		return refdata.NewPostgres(s.Pool()), nil
	case *store.SQLiteStore:
		return refdata.NewSQLite(s.DB()), nil
	default:
		return nil, eris.New("store does not expose a reference data provider")
	}
}
