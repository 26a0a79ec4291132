package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"airquality/internal/adapters/clickhouse"
	"airquality/internal/adapters/config"
)

// ClickHouseTestHelper manages a connection and cleanup for ClickHouse integration tests
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper connects to ClickHouse
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return &ClickHouseTestHelper{client: client}
}

// Conn returns the raw connection
func (h *ClickHouseTestHelper) Conn() driver.Conn {
	return h.client.Conn()
}

// RegisterTableCleanup deletes rows matching condition once the test completes.
// Shared tables are never dropped.
func (h *ClickHouseTestHelper) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.client.Conn().Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition))
	})
}
