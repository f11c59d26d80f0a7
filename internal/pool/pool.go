// Package pool leases database connections to one caller at a time from a
// fixed number of slots.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retailsearch/retailsearch/internal/observability"
)

var (
	ErrPoolExhausted         = errors.New("connection pool exhausted")
	ErrConnectionUnavailable = errors.New("database connection unavailable")
	ErrPoolClosed            = errors.New("connection pool closed")
	ErrLeaseReleased         = errors.New("lease already released")
)

const validateTimeout = 2 * time.Second

// Connector is satisfied by *sql.DB.
type Connector interface {
	Conn(ctx context.Context) (*sql.Conn, error)
	PingContext(ctx context.Context) error
	Close() error
}

type Config struct {
	Size              int
	AcquireTimeout    time.Duration
	ValidateOnAcquire bool
	// MaxConnAge discards a cached connection on release once it is older.
	MaxConnAge time.Duration
}

type Stats struct {
	Size      int
	Leased    int
	Idle      int
	Exhausted int64
}

type slot struct {
	conn     *sql.Conn
	openedAt time.Time
}

type Pool struct {
	db    Connector
	cfg   Config
	slots chan *slot

	mu      sync.Mutex
	closed  bool
	leased  int
	closeCh chan struct{}

	exhausted atomic.Int64
}

func New(db Connector, cfg Config) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("pool size must be positive")
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	p := &Pool{
		db:      db,
		cfg:     cfg,
		slots:   make(chan *slot, cfg.Size),
		closeCh: make(chan struct{}),
	}
	for i := 0; i < cfg.Size; i++ {
		p.slots <- &slot{}
	}
	return p, nil
}

// Acquire waits up to the configured acquire timeout for a free slot.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	var s *slot
	select {
	case s = <-p.slots:
	case <-p.closeCh:
		return nil, ErrPoolClosed
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.exhausted.Add(1)
		observability.IncrementPoolExhausted()
		return nil, ErrPoolExhausted
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		closeSlot(s)
		return nil, ErrPoolClosed
	}
	p.leased++
	leased := p.leased
	p.mu.Unlock()

	if err := p.prepare(ctx, s); err != nil {
		p.giveBack(s, false)
		return nil, err
	}
	observability.ObservePoolAcquire(time.Since(start), leased)
	return &Lease{pool: p, slot: s, acquiredAt: time.Now()}, nil
}

// WithLease runs fn with a leased connection and always releases it.
func (p *Pool) WithLease(ctx context.Context, fn func(*Lease) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease)
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	leased := p.leased
	p.mu.Unlock()
	idle := p.cfg.Size - leased
	if idle < 0 {
		idle = 0
	}
	return Stats{
		Size:      p.cfg.Size,
		Leased:    leased,
		Idle:      idle,
		Exhausted: p.exhausted.Load(),
	}
}

// Close closes idle connections and the database. Connections still leased
// are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.mu.Unlock()

drain:
	for {
		select {
		case s := <-p.slots:
			closeSlot(s)
		default:
			break drain
		}
	}
	return p.db.Close()
}

func (p *Pool) prepare(ctx context.Context, s *slot) error {
	if s.conn != nil && p.cfg.ValidateOnAcquire {
		pingCtx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := s.conn.PingContext(pingCtx)
		cancel()
		if err != nil {
			closeSlot(s)
		}
	}
	if s.conn != nil {
		return nil
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
	}
	s.conn = conn
	s.openedAt = time.Now()
	return nil
}

// giveBack returns s to the channel while holding mu, so Close either drains
// it or giveBack sees the pool closed and closes the connection itself.
func (p *Pool) giveBack(s *slot, discard bool) {
	expired := p.cfg.MaxConnAge > 0 && !s.openedAt.IsZero() && time.Since(s.openedAt) > p.cfg.MaxConnAge
	if discard || expired {
		closeSlot(s)
	}

	p.mu.Lock()
	p.leased--
	leased := p.leased
	closed := p.closed
	if !closed {
		// The channel holds Size slots, so this never blocks.
		p.slots <- s
	}
	p.mu.Unlock()

	if closed {
		closeSlot(s)
	}
	observability.SetPoolLeased(leased)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func closeSlot(s *slot) {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.openedAt = time.Time{}
}
