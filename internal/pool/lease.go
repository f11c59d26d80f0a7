package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"time"
)

// Lease is exclusive use of one pooled connection until Release.
type Lease struct {
	pool       *Pool
	slot       *slot
	acquiredAt time.Time

	released atomic.Bool
	broken   atomic.Bool
}

// Release returns the connection to the pool. Calling it more than once is a no-op.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.pool.giveBack(l.slot, l.broken.Load())
}

// MarkBroken discards the connection on release instead of reusing it.
func (l *Lease) MarkBroken() {
	l.broken.Store(true)
}

func (l *Lease) Released() bool {
	return l.released.Load()
}

func (l *Lease) Held() time.Duration {
	return time.Since(l.acquiredAt)
}

func (l *Lease) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	conn, err := l.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	l.observe(err)
	return rows, err
}

// QueryRowContext on a released lease returns a row whose Scan reports
// ErrLeaseReleased.
func (l *Lease) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	conn, err := l.conn()
	if err != nil {
		return &Row{err: err}
	}
	return &Row{row: conn.QueryRowContext(ctx, query, args...), lease: l}
}

func (l *Lease) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := l.conn()
	if err != nil {
		return nil, err
	}
	result, err := conn.ExecContext(ctx, query, args...)
	l.observe(err)
	return result, err
}

func (l *Lease) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	conn, err := l.conn()
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, opts)
	l.observe(err)
	return tx, err
}

func (l *Lease) PingContext(ctx context.Context) error {
	conn, err := l.conn()
	if err != nil {
		return err
	}
	err = conn.PingContext(ctx)
	l.observe(err)
	return err
}

func (l *Lease) conn() (*sql.Conn, error) {
	if l.released.Load() {
		return nil, ErrLeaseReleased
	}
	return l.slot.conn, nil
}

func (l *Lease) observe(err error) {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		l.MarkBroken()
	}
}

// Row is the result of Lease.QueryRowContext.
type Row struct {
	row   *sql.Row
	lease *Lease
	err   error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	err := r.row.Scan(dest...)
	r.lease.observe(err)
	return err
}
