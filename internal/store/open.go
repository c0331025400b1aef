// Package store selects the profile and purchase backend.
package store

import (
	"context"
	"fmt"

	"ekh_mining/internal/config"
	"ekh_mining/internal/db"
	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/store/memstore"
	"ekh_mining/internal/store/mongostore"
	"ekh_mining/internal/store/pgstore"
)

// Backend is what every driver provides.
type Backend interface {
	repository.ProfileStore
	repository.PurchaseLedger
	AddPurchase(ctx context.Context, p *domain.PresalePurchase) error
}

// Open connects to the backend named by cfg.StoreDriver. The returned func
// releases the connection.
func Open(ctx context.Context, cfg *config.Config) (Backend, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, database := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		s := mongostore.New(database)
		if err := s.EnsureIndexes(ctx); err != nil {
			db.DisconnectMongo(client)
			return nil, nil, err
		}
		return s, func() { db.DisconnectMongo(client) }, nil

	case config.StorePostgres:
		pool := db.Connect(ctx, cfg.DatabaseURL)
		return pgstore.New(pool), pool.Close, nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
