// Package session keeps per-conversation state for the agent. State keys are
// only ever added or replaced.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StateApparels   = "apparels"
	StateLastSearch = "last_search"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	AppName   string            `json:"app_name"`
	State     map[string]string `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (s Session) Apparels() string {
	return s.State[StateApparels]
}

// HasContext reports whether an earlier search stored results.
func (s Session) HasContext() bool {
	return s.State[StateLastSearch] != ""
}

func (s Session) clone() Session {
	out := s
	out.State = make(map[string]string, len(s.State))
	for key, value := range s.State {
		out.State[key] = value
	}
	return out
}

type Store interface {
	Create(ctx context.Context, appName, userID string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	// Merge adds or replaces the given keys and returns the updated session.
	Merge(ctx context.Context, id string, updates map[string]string) (Session, error)
}

// New returns a session with the initial state seeded the way every
// conversation starts: an empty apparels entry.
func New(appName, userID string, now time.Time) (Session, error) {
	if strings.TrimSpace(appName) == "" {
		return Session{}, fmt.Errorf("app name is required")
	}
	if strings.TrimSpace(userID) == "" {
		return Session{}, fmt.Errorf("user id is required")
	}
	return Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		AppName:   appName,
		State:     map[string]string{StateApparels: ""},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func merge(s *Session, updates map[string]string, now time.Time) {
	if s.State == nil {
		s.State = make(map[string]string, len(updates))
	}
	for key, value := range updates {
		s.State[key] = value
	}
	s.UpdatedAt = now
}
