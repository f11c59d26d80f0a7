// Package duckdb serves the apparel catalog from parquet objects through an
// in-memory DuckDB database, so the execution service can run without a
// Postgres instance.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/retailsearch/retailsearch/internal/storage"
)

const DriverName = "duckdb"

// Catalog is an in-memory DuckDB database with one view per table, each view
// reading local copies of the table's parquet objects. Nothing outside those
// copies is readable once the catalog is open.
type Catalog struct {
	DB *sql.DB

	workDir string
	tables  map[string][]string
}

// OpenCatalog downloads the parquet objects for every table and registers a
// view for it. A key ending in "/" is treated as a prefix and every parquet
// object below it is loaded.
func OpenCatalog(ctx context.Context, store storage.ObjectStore, objects map[string]string) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("at least one catalog object is required")
	}

	workDir, err := os.MkdirTemp("", "retailsearch-catalog-")
	if err != nil {
		return nil, fmt.Errorf("create catalog temp dir: %w", err)
	}
	// allowed_directories compares resolved paths.
	if resolved, err := filepath.EvalSymlinks(workDir); err == nil {
		workDir = resolved
	}
	catalog := &Catalog{workDir: workDir, tables: map[string][]string{}}

	tableNames := make([]string, 0, len(objects))
	for tableName := range objects {
		tableNames = append(tableNames, tableName)
	}
	sort.Strings(tableNames)

	for _, tableName := range tableNames {
		keys, err := resolveKeys(ctx, store, objects[tableName])
		if err != nil {
			_ = catalog.Close()
			return nil, fmt.Errorf("resolve objects for table %q: %w", tableName, err)
		}
		for index, key := range keys {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tableName), index))
			if err := download(ctx, store, key, localPath); err != nil {
				_ = catalog.Close()
				return nil, err
			}
			catalog.tables[tableName] = append(catalog.tables[tableName], localPath)
		}
	}

	db, err := sql.Open(DriverName, "")
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	catalog.DB = db

	for _, tableName := range tableNames {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
			quoteIdent(tableName), quoteStringArray(catalog.tables[tableName]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			_ = catalog.Close()
			return nil, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}
	if err := restrictFileAccess(ctx, db, workDir); err != nil {
		_ = catalog.Close()
		return nil, err
	}
	return catalog, nil
}

// restrictFileAccess confines every later statement to the catalog files:
// external access is switched off except for workDir and the configuration
// is locked so a query cannot switch it back on.
func restrictFileAccess(ctx context.Context, db *sql.DB, workDir string) error {
	statements := []string{
		`SET GLOBAL allowed_directories = ` + quoteStringArray([]string{workDir + string(filepath.Separator)}),
		`SET GLOBAL enable_external_access = false`,
		`SET GLOBAL lock_configuration = true`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("restrict duckdb file access: %w", err)
		}
	}
	return nil
}

// Tables returns the registered view names in sorted order.
func (c *Catalog) Tables() []string {
	out := make([]string, 0, len(c.tables))
	for tableName := range c.tables {
		out = append(out, tableName)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Close() error {
	var closeErr error
	if c.DB != nil {
		closeErr = c.DB.Close()
	}
	if c.workDir != "" {
		if err := os.RemoveAll(c.workDir); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

func resolveKeys(ctx context.Context, store storage.ObjectStore, key string) ([]string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("object key is empty")
	}
	if !strings.HasSuffix(key, "/") {
		return []string{key}, nil
	}
	infos, err := store.List(ctx, key)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".parquet") {
			keys = append(keys, info.Key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no parquet objects under %q", key)
	}
	return keys, nil
}

func download(ctx context.Context, store storage.ObjectStore, key, localPath string) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
