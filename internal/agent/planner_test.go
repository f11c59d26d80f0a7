package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/session"
)

func sessionWith(lastSearch, apparels string) session.Session {
	return session.Session{
		ID: "s1",
		State: map[string]string{
			session.StateApparels:   apparels,
			session.StateLastSearch: lastSearch,
		},
	}
}

func TestHeuristicPlanner(t *testing.T) {
	withContext := sessionWith("red sneakers", "Runner Sneaker, red, 5999; Court Sneaker, red, 7499")
	fresh := session.Session{ID: "s2", State: map[string]string{session.StateApparels: ""}}

	cases := []struct {
		name    string
		session session.Session
		text    string
		useTool bool
	}{
		{name: "first turn always searches", session: fresh, text: "what about the sneakers", useTool: true},
		{name: "new search", session: withContext, text: "blue wool scarves", useTool: true},
		{name: "pronoun", session: withContext, text: "are they waterproof?", useTool: false},
		{name: "definite article on earlier search", session: withContext, text: "how much are the sneakers?", useTool: false},
		{name: "definite article on result word", session: withContext, text: "is the court one in stock", useTool: false},
		{name: "definite article on something new", session: withContext, text: "show me the boots", useTool: true},
		{name: "pronoun with a new product", session: withContext, text: "show me jackets that are waterproof", useTool: true},
		{name: "definite article with a new product", session: withContext, text: "find the red dresses", useTool: true},
		{name: "demonstrative with a new product", session: withContext, text: "i need boots for this winter", useTool: true},
		{name: "pronoun with a new color", session: withContext, text: "do they come in blue?", useTool: true},
		{name: "pronoun with known attributes", session: withContext, text: "are the red ones in stock?", useTool: false},
		{name: "comparison over earlier results", session: withContext, text: "which of those is cheapest?", useTool: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := HeuristicPlanner{}.Plan(context.Background(), tc.session, tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.useTool, decision.UseTool)
			if tc.useTool {
				assert.Equal(t, tc.text, decision.SearchText)
			}
		})
	}
}

func TestStem(t *testing.T) {
	for word, want := range map[string]string{
		"dresses": "dress", "sneakers": "sneaker", "hoodies": "hoody", "watches": "watch",
		"glass": "glass", "boots": "boot", "red": "red",
	} {
		assert.Equal(t, want, stem(word), word)
	}
}

func TestParsePlannerReply(t *testing.T) {
	decision, err := parsePlannerReply("```json\n{\"action\":\"search\",\"search_text\":\"black boots\"}\n```", "boots in black")
	require.NoError(t, err)
	assert.Equal(t, Decision{UseTool: true, SearchText: "black boots"}, decision)

	decision, err = parsePlannerReply(`{"action":"search"}`, " boots ")
	require.NoError(t, err)
	assert.Equal(t, "boots", decision.SearchText)

	decision, err = parsePlannerReply(`{"action":"answer"}`, "are they red?")
	require.NoError(t, err)
	assert.False(t, decision.UseTool)

	_, err = parsePlannerReply(`{"action":"dance"}`, "x")
	require.Error(t, err)
	_, err = parsePlannerReply(`not json`, "x")
	require.Error(t, err)
}

func TestOpenAIPlannerUsesModelDecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"search\",\"search_text\":\"red boots\"}"}}]}`))
	}))
	defer server.Close()

	planner := newOpenAIPlanner(t, server.URL)
	decision, err := planner.Plan(context.Background(), sessionWith("red sneakers", "Runner Sneaker"), "and the same in boots?")
	require.NoError(t, err)
	assert.Equal(t, Decision{UseTool: true, SearchText: "red boots"}, decision)
}

func TestOpenAIPlannerFallsBackToHeuristic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	planner := newOpenAIPlanner(t, server.URL)
	decision, err := planner.Plan(context.Background(), sessionWith("red sneakers", "Runner Sneaker"), "are they comfortable?")
	require.NoError(t, err)
	assert.False(t, decision.UseTool)

	decision, err = planner.Plan(context.Background(), sessionWith("red sneakers", "Runner Sneaker"), "green parkas")
	require.NoError(t, err)
	assert.True(t, decision.UseTool)
}

func TestOpenAIPlannerSkipsModelWithoutContext(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "unexpected", http.StatusInternalServerError)
	}))
	defer server.Close()

	planner := newOpenAIPlanner(t, server.URL)
	decision, err := planner.Plan(context.Background(), session.Session{ID: "s"}, "red sneakers")
	require.NoError(t, err)
	assert.True(t, decision.UseTool)
	assert.Zero(t, calls)
}

func newOpenAIPlanner(t *testing.T, baseURL string) *OpenAIPlanner {
	t.Helper()
	chat, err := nl2sql.NewChatClient(nl2sql.OpenAIConfig{BaseURL: baseURL, APIKey: "test-key", Model: "planner"})
	require.NoError(t, err)
	planner, err := NewOpenAIPlanner(chat, nil)
	require.NoError(t, err)
	return planner
}
