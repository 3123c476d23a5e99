package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
)

func TestStore_HealthAfterMigrate(t *testing.T) {
	s := testsupport.NewStore(t)

	status, err := s.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.GreaterOrEqual(t, status.MaxOpenConns, 1)
}

func TestStore_MigrationsCreateCoreTables(t *testing.T) {
	s := testsupport.NewStore(t)

	var exists bool
	err := s.DB.GetContext(context.Background(), &exists,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'events')`)
	require.NoError(t, err)
	assert.True(t, exists)
}
