package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/retailsearch/retailsearch/internal/catalog"
)

const upsertBatchSize = 200

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping apparel db: %w", err)
	}
	return nil
}

// UpsertApparels writes items in batches inside one transaction.
func (r *Repository) UpsertApparels(ctx context.Context, items []catalog.Apparel) (int, error) {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for start := 0; start < len(items); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(items) {
			end = len(items)
		}
		n, err := upsertBatch(ctx, tx, items[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}
	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}

func (r *Repository) CountApparels(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apparels`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count apparels: %w", err)
	}
	return count, nil
}

// ListApparels returns the whole catalog ordered by id.
func (r *Repository) ListApparels(ctx context.Context) ([]catalog.Apparel, error) {
	query := `SELECT ` + strings.Join(catalog.Columns(), ", ") + ` FROM apparels ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list apparels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]catalog.Apparel, 0)
	for rows.Next() {
		var item catalog.Apparel
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Category, &item.Subcategory, &item.Gender, &item.Color,
			&item.Size, &item.Brand, &item.Material, &item.PriceCents, &item.InStock, &item.Description,
		); err != nil {
			return nil, fmt.Errorf("scan apparel: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func upsertBatch(ctx context.Context, q dbTX, items []catalog.Apparel) (int, error) {
	query, args := buildUpsert(items)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert apparels: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return len(items), nil
	}
	return int(affected), nil
}

func buildUpsert(items []catalog.Apparel) (string, []any) {
	columns := catalog.Columns()
	var b strings.Builder
	b.WriteString("INSERT INTO apparels (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(items)*len(columns))
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteString(")")
		args = append(args, catalog.Values(item)...)
	}

	b.WriteString(" ON CONFLICT (id) DO UPDATE SET ")
	updates := make([]string, 0, len(columns)-1)
	for _, column := range columns[1:] {
		updates = append(updates, column+" = EXCLUDED."+column)
	}
	b.WriteString(strings.Join(updates, ", "))
	b.WriteString(", updated_at = NOW()")
	return b.String(), args
}
