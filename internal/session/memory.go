package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/retailsearch/retailsearch/internal/observability"
)

type MemoryOptions struct {
	// TTL is a sliding idle timeout. Zero keeps sessions for the process lifetime.
	TTL time.Duration
	// OnExpire receives each session the janitor evicts.
	OnExpire func(Session)
	Now      func() time.Time
	Logger   *slog.Logger
}

type entry struct {
	session   Session
	expiresAt time.Time
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry

	ttl      time.Duration
	onExpire func(Session)
	now      func() time.Time
	logger   *slog.Logger
}

func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      opts.TTL,
		onExpire: opts.OnExpire,
		now:      now,
		logger:   logger,
	}
}

func (m *MemoryStore) Create(_ context.Context, appName, userID string) (Session, error) {
	now := m.now()
	s, err := New(appName, userID, now)
	if err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = &entry{session: s, expiresAt: m.deadline(now)}
	active := len(m.sessions)
	m.mu.Unlock()
	observability.SetActiveSessions(active)
	return s.clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	e.expiresAt = m.deadline(m.now())
	return e.session.clone(), nil
}

func (m *MemoryStore) Merge(_ context.Context, id string, updates map[string]string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	now := m.now()
	merge(&e.session, updates, now)
	e.expiresAt = m.deadline(now)
	return e.session.clone(), nil
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts expired sessions and returns how many it removed.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	expired := make([]Session, 0)
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			expired = append(expired, e.session)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(active)
	for _, s := range expired {
		m.logger.Info("session expired", slog.String("session_id", s.ID), slog.Time("updated_at", s.UpdatedAt))
		if m.onExpire != nil {
			m.onExpire(s.clone())
		}
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx is done.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// live must be called with mu held.
func (m *MemoryStore) live(id string) (*entry, bool) {
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && !m.now().Before(e.expiresAt) {
		return nil, false
	}
	return e, true
}

func (m *MemoryStore) deadline(now time.Time) time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(m.ttl)
}
