// Package agent drives the conversational search loop: it decides when to
// run the search tool, merges results into session state and replies.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/retailsearch/retailsearch/internal/archive"
	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/session"
)

type Reply struct {
	Text       string
	UsedTool   bool
	ToolStatus string
	Session    session.Session
	Record     archive.TurnRecord
}

type Options struct {
	// Journal, when set, receives a record of every turn.
	Journal *archive.Journal
	Logger  *slog.Logger
	Now     func() time.Time
}

type Orchestrator struct {
	store   session.Store
	tool    Tool
	planner Planner
	journal *archive.Journal
	logger  *slog.Logger
	now     func() time.Time
	locks   *keyedMutex
}

func New(store session.Store, tool Tool, planner Planner, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if tool == nil {
		return nil, fmt.Errorf("search tool is required")
	}
	if planner == nil {
		planner = HeuristicPlanner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		store:   store,
		tool:    tool,
		planner: planner,
		journal: opts.Journal,
		logger:  logger,
		now:     now,
		locks:   newKeyedMutex(),
	}, nil
}

func (o *Orchestrator) StartSession(ctx context.Context, appName, userID string) (session.Session, error) {
	s, err := o.store.Create(ctx, appName, userID)
	if err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	o.logger.InfoContext(ctx, "session started", slog.String("session_id", s.ID), slog.Any("state", s.State))
	return s, nil
}

func (o *Orchestrator) Session(ctx context.Context, sessionID string) (session.Session, error) {
	return o.store.Get(ctx, sessionID)
}

// Turn processes one user message. Turns of one session run one at a time in
// arrival order. Only session store failures are returned as errors.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, text string) (Reply, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	ctx = observability.ContextWithSessionID(ctx, sessionID)
	logger := observability.WithContext(ctx, o.logger)

	s, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}

	reply := Reply{Session: s}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		reply.Text = emptyTextReply
	default:
		decision, err := o.planner.Plan(ctx, s, text)
		if err != nil {
			logger.WarnContext(ctx, "planner failed, searching", slog.Any("error", err))
			decision = Decision{UseTool: true, SearchText: text}
		}
		if decision.UseTool {
			reply, err = o.search(ctx, s, decision.SearchText)
			if err != nil {
				return Reply{}, err
			}
		} else {
			reply.Text = contextReply(s.State[session.StateLastSearch], s.Apparels(), text)
		}
	}
	observability.ObserveTurn(reply.UsedTool)

	reply.Record = archive.TurnRecord{
		SessionID:  sessionID,
		UserText:   text,
		Reply:      reply.Text,
		UsedTool:   reply.UsedTool,
		ToolStatus: reply.ToolStatus,
		At:         o.now(),
	}
	if o.journal != nil {
		reply.Record = o.journal.Append(reply.Record)
	}
	logger.DebugContext(ctx, "turn completed",
		slog.Bool("used_tool", reply.UsedTool),
		slog.String("tool_status", reply.ToolStatus),
	)
	return reply, nil
}

func (o *Orchestrator) search(ctx context.Context, s session.Session, searchText string) (Reply, error) {
	if strings.TrimSpace(searchText) == "" {
		return Reply{Session: s, Text: emptyTextReply}, nil
	}
	result := o.tool.Run(ctx, searchText)
	observability.ObserveToolCall(result.Status)

	reply := Reply{Session: s, UsedTool: true, ToolStatus: result.Status}
	if !result.Succeeded() {
		reply.Text = FallbackReply
		return reply, nil
	}

	merged, err := o.store.Merge(ctx, s.ID, map[string]string{
		session.StateApparels:   result.Report,
		session.StateLastSearch: searchText,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("merge session: %w", err)
	}
	reply.Session = merged
	reply.Text = searchReply(searchText, result)
	return reply, nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
