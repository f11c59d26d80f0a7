package nl2sql

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/retailsearch/retailsearch/internal/query"
)

// LoadTableContexts reads column names and a few sample rows for each table.
// A table whose sample query fails is still listed, without columns.
func LoadTableContexts(ctx context.Context, executor query.Executor, tables []string, sampleRows int) ([]TableContext, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if sampleRows <= 0 {
		sampleRows = 5
	}

	contexts := make([]TableContext, 0, len(tables))
	var firstErr error
	for _, table := range tables {
		table = strings.TrimSpace(table)
		if table == "" {
			continue
		}
		tableContext := TableContext{TableName: table}
		result, err := executor.Execute(ctx, query.Statement{
			Text: "SELECT * FROM " + quoteIdent(table) + " LIMIT " + strconv.Itoa(sampleRows),
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sample table %q: %w", table, err)
			}
		} else {
			tableContext.Columns = append(tableContext.Columns, result.Columns...)
			tableContext.SampleRows = append(tableContext.SampleRows, result.Rows...)
		}
		contexts = append(contexts, tableContext)
	}
	return contexts, firstErr
}

// CachedSchema loads table context once and reuses it for ttl.
func CachedSchema(executor query.Executor, tables []string, sampleRows int, ttl time.Duration) SchemaFunc {
	var (
		mu       sync.Mutex
		cached   []TableContext
		loadedAt time.Time
	)
	return func(ctx context.Context) ([]TableContext, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != nil && time.Since(loadedAt) < ttl {
			return cached, nil
		}
		contexts, err := LoadTableContexts(ctx, executor, tables, sampleRows)
		if err != nil {
			return contexts, err
		}
		cached = contexts
		loadedAt = time.Now()
		return cached, nil
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
