package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janisliepins/stockflow-backend/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migration validation failed: %v", err)
	}
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory",
		"CHECK (quantity >= 0)",
		"CHECK (reserved_quantity >= 0)",
		"CHECK (reserved_quantity <= quantity)",
		"ux_inventory_product_id",
		"DROP TABLE IF EXISTS inventory",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationEnforcesNaturalKey(t *testing.T) {
	content := readMigration(t, "*_create_customer_orders.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_source_external_id",
		"WHERE source IS NOT NULL",
		"CHECK ((source IS NULL) = (external_order_id IS NULL))",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationIndexesDispatchScan(t *testing.T) {
	content := readMigration(t, "*_create_outbox_events.sql")

	if !strings.Contains(content, "idx_outbox_events_dispatch ON outbox_events (status, available_at)") {
		t.Errorf("missing composite dispatch index")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
