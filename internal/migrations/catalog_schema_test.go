package migrations

import (
	"strings"
	"testing"
)

func TestApparelMigrationDefinesCatalogTable(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_apparels.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE apparels",
		"id TEXT PRIMARY KEY",
		"category TEXT NOT NULL CHECK (category IN ('clothing', 'footwear'))",
		"price_cents BIGINT NOT NULL",
		"COMMENT ON TABLE apparels",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 || items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected embedded migrations: %+v", items)
	}
	if !strings.Contains(items[1].UpSQL, "CREATE INDEX idx_apparels_color") {
		t.Fatalf("index migration = %q", items[1].UpSQL)
	}
}
