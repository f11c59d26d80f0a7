package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/retailsearch/retailsearch/internal/catalog"
	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/session"
)

type Decision struct {
	UseTool    bool
	SearchText string
}

type Planner interface {
	Plan(ctx context.Context, s session.Session, text string) (Decision, error)
}

var followUpPronouns = map[string]struct{}{
	"it": {}, "its": {}, "they": {}, "them": {}, "their": {},
	"those": {}, "these": {}, "that": {}, "this": {}, "ones": {},
}

var productTerms = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, term := range catalog.Terms() {
		for _, word := range tokenize(term) {
			if len(word) > 1 {
				addForms(out, word)
			}
		}
	}
	return out
}()

// HeuristicPlanner searches unless the text refers back to the previous
// search and names no product, color or material outside of it. A
// reference is a pronoun, or "the X" where X appears in the last search or
// its results.
type HeuristicPlanner struct{}

func (HeuristicPlanner) Plan(_ context.Context, s session.Session, text string) (Decision, error) {
	text = strings.TrimSpace(text)
	if !s.HasContext() || !isFollowUp(s, text) {
		return Decision{UseTool: true, SearchText: text}, nil
	}
	return Decision{}, nil
}

func isFollowUp(s session.Session, text string) bool {
	words := tokenize(text)
	known := map[string]struct{}{}
	for _, word := range tokenize(s.State[session.StateLastSearch] + " " + s.Apparels()) {
		addForms(known, word)
	}

	refersBack := false
	for i, word := range words {
		if _, ok := followUpPronouns[word]; ok {
			refersBack = true
		}
		if word == "the" && i+1 < len(words) {
			if _, ok := known[stem(words[i+1])]; ok {
				refersBack = true
			}
		}
	}
	if !refersBack {
		return false
	}

	// "jackets that are waterproof" names something new despite the pronoun.
	for _, word := range words {
		w := stem(word)
		if _, ok := productTerms[w]; !ok {
			continue
		}
		if _, ok := known[w]; !ok {
			return false
		}
	}
	return true
}

// addForms records the singular and plural stems of word so "hoodie" and
// "hoodies" meet.
func addForms(set map[string]struct{}, word string) {
	set[stem(word)] = struct{}{}
	set[stem(word+"s")] = struct{}{}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stem(word string) string {
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return strings.TrimSuffix(word, "ies") + "y"
	case len(word) > 4 && (strings.HasSuffix(word, "sses") || strings.HasSuffix(word, "shes") ||
		strings.HasSuffix(word, "ches") || strings.HasSuffix(word, "xes")):
		return strings.TrimSuffix(word, "es")
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return strings.TrimSuffix(word, "s")
	}
	return word
}

// OpenAIPlanner asks a chat model whether the turn needs a new search and
// falls back to the heuristic on any model failure.
type OpenAIPlanner struct {
	chat     *nl2sql.ChatClient
	fallback Planner
	logger   *slog.Logger
}

func NewOpenAIPlanner(chat *nl2sql.ChatClient, logger *slog.Logger) (*OpenAIPlanner, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OpenAIPlanner{chat: chat, fallback: HeuristicPlanner{}, logger: logger}, nil
}

const plannerSystemPrompt = "You are a helpful retail search assistant for apparels of 2 categories: clothing and footwear. " +
	"Decide whether the shopper's message needs a new catalog search or can be answered from the results of earlier searches. " +
	"Do not assume every message is a search. " +
	`Reply with JSON only: {"action":"search"|"answer","search_text":"<text to search, when action is search>"}.`

func (p *OpenAIPlanner) Plan(ctx context.Context, s session.Session, text string) (Decision, error) {
	if !s.HasContext() {
		return p.fallback.Plan(ctx, s, text)
	}
	userPrompt := fmt.Sprintf("Previous search: %s\nPrevious results: %s\n\nShopper message: %s",
		s.State[session.StateLastSearch], s.Apparels(), strings.TrimSpace(text))
	content, err := p.chat.Complete(ctx, plannerSystemPrompt, userPrompt)
	if err != nil {
		p.logger.WarnContext(ctx, "planner model failed, using heuristic", slog.Any("error", err))
		return p.fallback.Plan(ctx, s, text)
	}
	decision, err := parsePlannerReply(content, text)
	if err != nil {
		p.logger.WarnContext(ctx, "planner reply unusable, using heuristic", slog.Any("error", err))
		return p.fallback.Plan(ctx, s, text)
	}
	return decision, nil
}

func parsePlannerReply(content, text string) (Decision, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var reply struct {
		Action     string `json:"action"`
		SearchText string `json:"search_text"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &reply); err != nil {
		return Decision{}, fmt.Errorf("decode planner reply: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(reply.Action)) {
	case "search":
		searchText := strings.TrimSpace(reply.SearchText)
		if searchText == "" {
			searchText = strings.TrimSpace(text)
		}
		return Decision{UseTool: true, SearchText: searchText}, nil
	case "answer":
		return Decision{}, nil
	default:
		return Decision{}, fmt.Errorf("unknown planner action %q", reply.Action)
	}
}
