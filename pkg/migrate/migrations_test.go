package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one migration matching %s, got %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCatalogMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_catalog.sql"),
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_products_slug",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_products_sku",
		"CHECK (stock >= 0)",
		"CHECK (average_rating >= 0 AND average_rating <= 5)",
		"CREATE TABLE IF NOT EXISTS product_categories",
		"DROP TABLE IF EXISTS categories",
	)
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_orders.sql"),
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_order_number",
		"'pending', 'confirmed', 'processing', 'shipped', 'delivered', 'cancelled', 'refunded'",
		"'pending', 'paid', 'failed', 'refunded', 'partially_refunded'",
		"reserved_quantity INT NOT NULL DEFAULT 0",
		"DROP TABLE IF EXISTS orders",
	)
}

func TestReviewsMigrationEnforcesOnePerUser(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_reviews.sql"),
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_reviews_product_user ON reviews (product_id, user_id)",
		"CHECK (rating BETWEEN 1 AND 5)",
	)
}

func TestCartsMigrationEnforcesOneCartPerUser(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_carts_and_coupons.sql"),
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_user ON carts (user_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_coupons_code",
		"CHECK (quantity >= 1)",
	)
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := migrate.CreateSQLMigration(dir, "Add Gift Cards!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260304050607_add_gift_cards.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add gift cards", now); err == nil {
		t.Fatalf("expected duplicate migration error")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatalf("expected sanitize error")
	}
}

func TestCreateSQLMigrationEnforcesNamingAndOrder(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	if _, err := migrate.CreateSQLMigration(dir, "gift cards", now); err == nil {
		t.Fatalf("expected error for name without a schema verb")
	}
	if _, err := migrate.CreateSQLMigration(dir, "add", now); err == nil {
		t.Fatalf("expected error for verb without subject")
	}
	if _, err := migrate.CreateSQLMigration(dir, "add "+strings.Repeat("x", 80), now); err == nil {
		t.Fatalf("expected error for overlong name")
	}
	if _, err := migrate.CreateSQLMigration(dir, "create gift cards", now); err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add gift card index", now.Add(-time.Hour)); err == nil {
		t.Fatalf("expected error for version older than existing migration")
	}
	path, err := migrate.CreateSQLMigration(dir, "  Add--Gift  Card Index ", now.Add(time.Second))
	if err != nil {
		t.Fatalf("create later migration: %v", err)
	}
	if filepath.Base(path) != "20260304050608_add_gift_card_index.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
}

func TestValidateFSRejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"down before up":     "-- +goose Down\n-- +goose Up\n",
		"unclosed up block":  "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"unclosed down":      "-- +goose Up\n-- +goose Down\n-- +goose StatementBegin\nSELECT 1;\n",
		"stray end":          "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
		"nested begin":       "-- +goose Up\n-- +goose StatementBegin\n-- +goose StatementBegin\n-- +goose StatementEnd\n-- +goose StatementEnd\n-- +goose Down\n",
		"missing up section": "-- +goose Down\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"20260101000001_create_things.sql": {Data: []byte(body)}}
			if err := migrate.ValidateFS(fsys); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateFSRejectsBadNames(t *testing.T) {
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	for _, filename := range []string{
		"20261399000000_create_things.sql",
		"20260101000001_things.sql",
		"20260101000001_create.sql",
	} {
		fsys := fstest.MapFS{filename: {Data: body}}
		if err := migrate.ValidateFS(fsys); err == nil {
			t.Fatalf("expected %s to be rejected", filename)
		}
	}

	dup := fstest.MapFS{
		"20260101000001_create_things.sql": {Data: body},
		"20260101000001_add_other.sql":     {Data: body},
	}
	if err := migrate.ValidateFS(dup); err == nil {
		t.Fatalf("expected duplicate version error")
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded()); err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename error")
	}

	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_create_missing_down.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected missing down marker error")
	}
}

func TestEmbeddedMatchesDirectory(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	bundled, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(bundled) != len(onDisk) {
		t.Fatalf("embedded %d migrations, directory has %d", len(bundled), len(onDisk))
	}
	for i, path := range onDisk {
		if filepath.Base(path) != bundled[i] {
			t.Fatalf("embedded migration %d is %s, want %s", i, bundled[i], filepath.Base(path))
		}
	}
}
