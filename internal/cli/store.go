package cli

import (
	"context"
	"fmt"

	"auction-house/internal/config"
	"auction-house/internal/repository"
	"auction-house/internal/repository/mongostore"
	"auction-house/internal/repository/mysqlstore"
	"auction-house/internal/repository/pgstore"
)

// Backend is an opened store
type Backend interface {
	repository.AuctionDB
	Close(ctx context.Context) error
}

// Migrator is implemented by backends with a schema to create
type Migrator interface {
	Migrate(ctx context.Context) error
}

type memoryBackend struct {
	*repository.MemoryRepo
}

func (memoryBackend) Close(context.Context) error { return nil }

// openBackend connects to the store selected in cfg
func openBackend(ctx context.Context, cfg config.Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Store {
	case config.StoreMemory:
		return memoryBackend{repository.NewMemoryRepo()}, nil
	case config.StorePostgres:
		backend, err = connectOrNil(pgstore.Connect(ctx, cfg.DatabaseURL))
	case config.StoreMySQL:
		backend, err = connectOrNil(mysqlstore.Open(ctx, cfg.MySQLDSN))
	case config.StoreMongo:
		backend, err = connectOrNil(mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB))
	default:
		return nil, fmt.Errorf("cli: unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("cli: open %s store: %w", cfg.Store, err)
	}
	return backend, nil
}

// connectOrNil keeps a failed connect from leaking a typed nil into Backend
func connectOrNil[S Backend](store S, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return store, nil
}
