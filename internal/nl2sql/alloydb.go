package nl2sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/retailsearch/retailsearch/internal/query"
)

const ProviderAlloyDB = "alloydb-ai-nl"

const alloyDBGetSQL = `SELECT alloydb_ai_nl.get_sql($1, $2) ->> 'sql'`

// AlloyDBTranslator asks the AlloyDB AI natural-language extension for SQL.
// The config name and search text are bound parameters.
type AlloyDBTranslator struct {
	pool query.Leaser
}

func NewAlloyDBTranslator(pool query.Leaser) (*AlloyDBTranslator, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &AlloyDBTranslator{pool: pool}, nil
}

func (t *AlloyDBTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	configName := strings.TrimSpace(req.ConfigName)
	if configName == "" {
		configName = DefaultConfigName
	}

	lease, err := t.pool.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer lease.Release()

	var generated sql.NullString
	if err := lease.QueryRowContext(ctx, alloyDBGetSQL, configName, req.NaturalLanguage).Scan(&generated); err != nil {
		return Result{}, fmt.Errorf("alloydb get_sql: %w", err)
	}
	return Result{
		SQL:      strings.TrimSpace(generated.String),
		Provider: ProviderAlloyDB,
		Model:    configName,
	}, nil
}
