package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/pool"
)

type Leaser interface {
	Acquire(ctx context.Context) (*pool.Lease, error)
}

type Options struct {
	// Allowlist rejects anything but a single SELECT/WITH statement.
	Allowlist bool
	// ReadOnly runs each statement in a read-only transaction that is rolled back.
	ReadOnly bool
	RowLimit int
}

type Service struct {
	pool    Leaser
	options Options
	logger  *slog.Logger
}

func NewService(leaser Leaser, options Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{pool: leaser, options: options, logger: logger}
}

func (s *Service) Execute(ctx context.Context, statement Statement) (Result, error) {
	start := time.Now()
	result, err := s.execute(ctx, statement)
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidStatement):
		outcome = "rejected"
	case errors.Is(err, ErrConnectionUnavailable):
		outcome = "unavailable"
	default:
		outcome = "failed"
	}
	observability.ObserveExecution(outcome, len(result.Rows), time.Since(start))

	logger := observability.WithContext(ctx, s.logger)
	if err != nil {
		logger.WarnContext(ctx, "statement execution failed", slog.String("outcome", outcome), slog.Any("error", err))
		return Result{}, err
	}
	logger.DebugContext(ctx, "statement executed",
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Service) execute(ctx context.Context, statement Statement) (Result, error) {
	if strings.TrimSpace(statement.Text) == "" {
		return Result{}, fmt.Errorf("%w: statement is empty", ErrInvalidStatement)
	}
	sqlText := stripTrailingSemicolons(statement.Text)
	if s.options.Allowlist {
		checked, err := CheckStatement(statement.Text)
		if err != nil {
			return Result{}, err
		}
		sqlText = checked
	}
	sqlText = withRowLimit(sqlText, effectiveRowLimit(statement.RowLimit, s.options.RowLimit))

	start := time.Now()
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
	}
	defer lease.Release()

	columns, rows, err := s.run(ctx, lease, sqlText)
	if err != nil {
		if errors.Is(err, driver.ErrBadConn) {
			lease.MarkBroken()
		}
		return Result{}, newExecutionError(err)
	}
	return Result{Columns: columns, Rows: rows, Duration: time.Since(start)}, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Service) run(ctx context.Context, lease *pool.Lease, sqlText string) ([]string, [][]string, error) {
	var target queryer = lease
	if s.options.ReadOnly {
		tx, err := lease.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, nil, fmt.Errorf("begin read-only transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		target = tx
	}

	rows, err := target.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	out := make([][]string, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

func effectiveRowLimit(requested, configured int) int {
	switch {
	case requested <= 0:
		return configured
	case configured <= 0 || requested < configured:
		return requested
	default:
		return configured
	}
}

func newExecutionError(err error) *ExecutionError {
	execErr := &ExecutionError{Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		execErr.SQLState = pgErr.Code
	}
	return execErr
}

func normalizeValues(values []any) []string {
	normalized := make([]string, len(values))
	for i, value := range values {
		normalized[i] = FormatValue(value)
	}
	return normalized
}

// FormatValue renders a scanned column value as text. NULL renders as "".
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
