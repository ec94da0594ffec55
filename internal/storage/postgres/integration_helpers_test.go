package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// integrationDSNEnv переопределяет контейнер и направляет тесты в готовую базу.
var integrationDSNEnv = []string{"ORDERFLOW_POSTGRES_TEST_DSN", "ORDERFLOW_POSTGRES_DSN"}

// startIntegrationPostgres открывает Store на базе из окружения либо поднимает
// postgres:15-alpine через testcontainers. Возвращает функцию остановки.
func startIntegrationPostgres(t *testing.T) (*Store, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("integration tests are skipped in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, env := range integrationDSNEnv {
		dsn := strings.TrimSpace(os.Getenv(env))
		if dsn == "" {
			continue
		}
		store, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("open postgres from %s: %v", env, err)
		}
		return store, func() { _ = store.Close() }
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("orderflow"),
		tcpostgres.WithUsername("orderflow"),
		tcpostgres.WithPassword("orderflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(context.Background())
		t.Fatalf("container connection string: %v", err)
	}

	store, err := Open(ctx, dsn)
	if err != nil {
		_ = container.Terminate(context.Background())
		t.Fatalf("open postgres container: %v", err)
	}

	return store, func() {
		_ = store.Close()
		_ = container.Terminate(context.Background())
	}
}

func truncateIntegrationTables(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.DB().ExecContext(ctx, `
		TRUNCATE TABLE outbox_messages, order_items, orders RESTART IDENTITY CASCADE
	`); err != nil {
		t.Fatalf("truncate integration tables: %v", err)
	}
}
