// Package testsupport provides shared test fixtures (a disposable Postgres
// container wired through internal/store) for every package's integration
// tests, so the testcontainers bootstrap is written once instead of per
// package.
package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coreflow/runtime/internal/store"
)

// NewStore starts a disposable Postgres container, applies the embedded
// migrations, and returns a ready *store.Store. The container and pool are
// torn down via t.Cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("coreflow_test"),
		postgres.WithUsername("coreflow"),
		postgres.WithPassword("coreflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := store.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "coreflow",
		Password:        "coreflow",
		Database:        "coreflow_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}

	s, err := store.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
