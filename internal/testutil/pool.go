package testutil

import (
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	sharedMu        sync.Mutex
	sharedContainer *PostgresContainer
)

// NewPool returns a pgx pool backed by a PostgreSQL container that is
// shared across the tests of a package, with the schema applied. Each
// call gets the same database, so tests must use unique row data.
//
// Precondition: Docker must be available.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedContainer == nil {
		sharedContainer = startPostgresContainer(t)
		sharedContainer.ApplyMigrations(t)
	}
	return sharedContainer.RawPool
}
