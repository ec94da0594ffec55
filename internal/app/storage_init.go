package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/postgres"
)

// storage хранит выбранные репозитории заказов и outbox.
type storage struct {
	orders domain.OrderRepository
	outbox domain.OutboxRepository
	ping   func(ctx context.Context) error
	close  func() error
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storage, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		logger.WithField("driver", StorageDriverMemory).Info("storage initialized")
		return &storage{
			orders: store,
			outbox: store,
			ping:   func(context.Context) error { return nil },
			close:  func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		version, applied, err := store.MigrationStatus(ctx)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.WithFields(log.Fields{
			"driver":         StorageDriverPostgres,
			"schema_version": version,
			"migrations":     applied,
		}).Info("storage initialized")

		return &storage{
			orders: postgres.NewOrderRepository(store),
			outbox: postgres.NewOutboxRepository(store),
			ping:   store.Ping,
			close:  store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
