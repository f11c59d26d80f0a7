package agent_test

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailsearch/retailsearch/internal/agent"
	"github.com/retailsearch/retailsearch/internal/api"
	"github.com/retailsearch/retailsearch/internal/config"
	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/pool"
	"github.com/retailsearch/retailsearch/internal/query"
	"github.com/retailsearch/retailsearch/internal/remote"
	"github.com/retailsearch/retailsearch/internal/session"
)

const sneakersSQL = "SELECT name, color, price_cents FROM apparels WHERE subcategory = 'sneakers' AND color = 'red'"

// mapTranslator answers known searches and returns no statement otherwise.
type mapTranslator map[string]string

func (m mapTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	return nl2sql.Result{SQL: m[req.NaturalLanguage], Provider: "map"}, nil
}

type peers struct {
	generate *httptest.Server
	execute  *httptest.Server
	mock     sqlmock.Sqlmock
}

func startPeers(t *testing.T, translations mapTranslator) peers {
	t.Helper()
	cfg, err := config.Load("retailsearch-peer", func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	generator, err := nl2sql.NewService(translations, nl2sql.Options{Provider: "map"}, nil)
	require.NoError(t, err)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	executor := query.NewService(newPool(t, db), query.Options{Allowlist: true}, nil)

	generate := httptest.NewServer(api.NewHandler(cfg, api.Dependencies{Generator: generator}))
	execute := httptest.NewServer(api.NewHandler(cfg, api.Dependencies{Executor: executor}))
	t.Cleanup(generate.Close)
	t.Cleanup(execute.Close)
	return peers{generate: generate, execute: execute, mock: mock}
}

func newPool(t *testing.T, db *sql.DB) *pool.Pool {
	t.Helper()
	p, err := pool.New(db, pool.Config{Size: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	return p
}

func newOrchestrator(t *testing.T, p peers) (*agent.Orchestrator, session.Session) {
	t.Helper()
	client := remote.New(remote.Config{Timeout: 2 * time.Second, MaxAttempts: 1}, nil)
	tool, err := agent.NewSearchTool(agent.RemotePipeline{
		Client:      client,
		GenerateURL: p.generate.URL + "/",
		ExecuteURL:  p.execute.URL + "/",
	}, 5*time.Second, nil)
	require.NoError(t, err)

	orch, err := agent.New(session.NewMemoryStore(session.MemoryOptions{}), tool, agent.HeuristicPlanner{}, agent.Options{})
	require.NoError(t, err)
	s, err := orch.StartSession(context.Background(), "retailsearch-app", "user_12345")
	require.NoError(t, err)
	return orch, s
}

func TestSearchTurnRepliesWithEveryRowAndStoresThem(t *testing.T) {
	p := startPeers(t, mapTranslator{"red sneakers": sneakersSQL})
	orch, s := newOrchestrator(t, p)

	p.mock.ExpectQuery(`subcategory = 'sneakers'`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "color", "price_cents"}).
			AddRow("Runner Sneaker", "red", int64(5999)).
			AddRow("Court Sneaker", "red", int64(7499)).
			AddRow("Trail Sneaker", "red", int64(8999)))

	reply, err := orch.Turn(context.Background(), s.ID, "red sneakers")
	require.NoError(t, err)

	assert.True(t, reply.UsedTool)
	assert.Equal(t, agent.StatusSuccess, reply.ToolStatus)
	assert.Contains(t, reply.Text, "Runner Sneaker, red, 5999")
	assert.Contains(t, reply.Text, "Court Sneaker, red, 7499")
	assert.Contains(t, reply.Text, "Trail Sneaker, red, 8999")

	stored, err := orch.Session(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Runner Sneaker, red, 5999; Court Sneaker, red, 7499; Trail Sneaker, red, 8999", stored.Apparels())
	assert.Equal(t, "red sneakers", stored.State[session.StateLastSearch])
	require.NoError(t, p.mock.ExpectationsWereMet())
}

func TestFollowUpIsAnsweredFromSessionState(t *testing.T) {
	p := startPeers(t, mapTranslator{"red sneakers": sneakersSQL})
	orch, s := newOrchestrator(t, p)

	p.mock.ExpectQuery(`subcategory = 'sneakers'`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "color", "price_cents"}).
			AddRow("Runner Sneaker", "red", int64(5999)).
			AddRow("Court Sneaker", "red", int64(7499)))

	_, err := orch.Turn(context.Background(), s.ID, "red sneakers")
	require.NoError(t, err)

	reply, err := orch.Turn(context.Background(), s.ID, "how much are the sneakers?")
	require.NoError(t, err)

	assert.False(t, reply.UsedTool)
	assert.Contains(t, reply.Text, "Runner Sneaker, red, 5999")
	assert.Contains(t, reply.Text, "Court Sneaker, red, 7499")
	require.NoError(t, p.mock.ExpectationsWereMet())
}

func TestUnreachableGenerationPeerYieldsFallbackReply(t *testing.T) {
	p := startPeers(t, mapTranslator{"red sneakers": sneakersSQL})
	orch, s := newOrchestrator(t, p)
	p.generate.Close()

	reply, err := orch.Turn(context.Background(), s.ID, "red sneakers")
	require.NoError(t, err)

	assert.Equal(t, agent.FallbackReply, reply.Text)
	assert.True(t, reply.UsedTool)
	assert.Equal(t, agent.StatusError, reply.ToolStatus)

	stored, err := orch.Session(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{session.StateApparels: ""}, stored.State)
}

func TestUntranslatableSearchYieldsFallbackReply(t *testing.T) {
	p := startPeers(t, mapTranslator{})
	orch, s := newOrchestrator(t, p)

	reply, err := orch.Turn(context.Background(), s.ID, "something the translator cannot handle")
	require.NoError(t, err)
	assert.Equal(t, agent.FallbackReply, reply.Text)
}

func TestInvalidGeneratedSQLYieldsFallbackReply(t *testing.T) {
	p := startPeers(t, mapTranslator{"drop it": "DROP TABLE apparels"})
	orch, s := newOrchestrator(t, p)

	reply, err := orch.Turn(context.Background(), s.ID, "drop it")
	require.NoError(t, err)
	assert.Equal(t, agent.FallbackReply, reply.Text)
	require.NoError(t, p.mock.ExpectationsWereMet())
}

func TestZeroRowSearchStoresEmptyApparels(t *testing.T) {
	p := startPeers(t, mapTranslator{"purple wool sandals": "SELECT name FROM apparels WHERE color = 'purple' AND material = 'wool' AND subcategory = 'sandals'"})
	orch, s := newOrchestrator(t, p)

	p.mock.ExpectQuery(`color = 'purple'`).WillReturnRows(sqlmock.NewRows([]string{"name"}))

	reply, err := orch.Turn(context.Background(), s.ID, "purple wool sandals")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusSuccess, reply.ToolStatus)
	assert.Contains(t, reply.Text, "couldn't find any apparels")
	assert.NotEqual(t, agent.FallbackReply, reply.Text)

	stored, err := orch.Session(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "", stored.Apparels())
	assert.Equal(t, "purple wool sandals", stored.State[session.StateLastSearch])
}
