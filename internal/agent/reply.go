package agent

import (
	"fmt"
	"strings"
)

// FallbackReply is shown whenever the search tool fails.
const FallbackReply = "Sorry, no matches found for that search. Please try again, narrowing or broadening your search."

const (
	emptyTextReply  = "Tell me what you are looking for, for example \"red sneakers\" or \"wool scarves\"."
	noContextReply  = "I don't have any earlier results yet. Tell me what you are looking for and I'll search the catalog."
	noPriorRowsText = "Your last search for %q had no matches, so I have nothing to go on. Try a new search, narrowing or broadening it."
)

func searchReply(searchText string, result ToolResult) string {
	rows := result.Rows()
	if len(rows) == 0 {
		return fmt.Sprintf("I couldn't find any apparels matching %q. Try narrowing or broadening your search.", searchText)
	}
	header := fmt.Sprintf("Here is what I found for %q (%d %s):", searchText, len(rows), plural(len(rows), "match", "matches"))
	return bulletList(header, rows)
}

// contextReply answers from the stored results: rows sharing a keyword with
// the question, or every row when none do.
func contextReply(lastSearch, apparels, question string) string {
	if strings.TrimSpace(lastSearch) == "" {
		return noContextReply
	}
	rows := ToolResult{Status: StatusSuccess, Report: apparels}.Rows()
	if len(rows) == 0 {
		return fmt.Sprintf(noPriorRowsText, lastSearch)
	}

	matched := matchRows(rows, question)
	if len(matched) > 0 {
		return bulletList(fmt.Sprintf("From your search for %q, these match your question:", lastSearch), matched)
	}
	return bulletList(fmt.Sprintf("Here is everything from your search for %q:", lastSearch), rows)
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "are": {}, "any": {}, "for": {}, "with": {}, "what": {},
	"which": {}, "how": {}, "much": {}, "many": {}, "have": {}, "has": {}, "you": {},
	"can": {}, "does": {}, "did": {}, "there": {}, "about": {}, "show": {}, "tell": {},
	"them": {}, "they": {}, "those": {}, "these": {}, "that": {}, "this": {}, "its": {},
	"one": {}, "ones": {}, "available": {}, "from": {}, "please": {},
}

func matchRows(rows []string, question string) []string {
	keywords := make([]string, 0)
	for _, word := range tokenize(question) {
		if len(word) < 3 {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		keywords = append(keywords, stem(word))
	}
	if len(keywords) == 0 {
		return nil
	}

	out := make([]string, 0)
	for _, row := range rows {
		rowWords := map[string]struct{}{}
		for _, word := range tokenize(row) {
			rowWords[stem(word)] = struct{}{}
		}
		for _, keyword := range keywords {
			if _, ok := rowWords[keyword]; ok {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func bulletList(header string, rows []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, row := range rows {
		b.WriteString("\n- ")
		b.WriteString(row)
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
