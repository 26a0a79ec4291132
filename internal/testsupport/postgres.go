package testsupport

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"airquality/internal/adapters/config"
	"airquality/internal/adapters/postgres"
)

// PostgresTestHelper holds a transaction that is rolled back when the test ends
type PostgresTestHelper struct {
	client     *postgres.Client
	tx         *sqlx.Tx
	rolledBack bool
}

// NewPostgresTestHelper connects and begins the test transaction
func NewPostgresTestHelper(t *testing.T, cfg config.PostgresConfig) *PostgresTestHelper {
	t.Helper()

	ctx := context.Background()
	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create postgres client: %v", err)
	}

	tx, err := client.DB().BeginTxx(ctx, nil)
	if err != nil {
		_ = client.Close()
		t.Fatalf("failed to start transaction: %v", err)
	}

	helper := &PostgresTestHelper{client: client, tx: tx}
	t.Cleanup(func() { _ = client.Close() })
	t.Cleanup(helper.Rollback)

	return helper
}

// NewTestPostgres loads the Postgres config from the environment, skipping when absent
func NewTestPostgres(t *testing.T) *PostgresTestHelper {
	t.Helper()
	return NewPostgresTestHelper(t, LoadPostgresConfigFromEnv(t))
}

// Tx returns the active transaction
func (h *PostgresTestHelper) Tx() *sqlx.Tx {
	return h.tx
}

// DB returns the pool, outside the test transaction
func (h *PostgresTestHelper) DB() *sqlx.DB {
	return h.client.DB()
}

// Rollback rolls back the transaction once
func (h *PostgresTestHelper) Rollback() {
	if h.rolledBack {
		return
	}
	_ = h.tx.Rollback()
	h.rolledBack = true
}
