package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/retailsearch/retailsearch/internal/query"
)

func TestSearchReply(t *testing.T) {
	one := searchReply("wool scarf", ToolResult{Status: StatusSuccess, Report: "Wool Scarf, grey"})
	assert.Equal(t, "Here is what I found for \"wool scarf\" (1 match):\n- Wool Scarf, grey", one)

	many := searchReply("boots", ToolResult{Status: StatusSuccess, Report: "Hiker, brown; Chelsea, black"})
	assert.Equal(t, "Here is what I found for \"boots\" (2 matches):\n- Hiker, brown\n- Chelsea, black", many)

	none := searchReply("teal sandals", ToolResult{Status: StatusSuccess, Report: ""})
	assert.Contains(t, none, "couldn't find any apparels matching \"teal sandals\"")
}

func TestContextReply(t *testing.T) {
	apparels := "Runner Sneaker, red, 5999; Court Sneaker, red, 7499; Trail Boot, brown, 8999"

	assert.Equal(t, noContextReply, contextReply("", "", "are they red?"))
	assert.Contains(t, contextReply("teal sandals", "", "are they cheap?"), "had no matches")

	matched := contextReply("red shoes", apparels, "which sneakers do you have?")
	assert.Contains(t, matched, "Runner Sneaker")
	assert.Contains(t, matched, "Court Sneaker")
	assert.NotContains(t, matched, "Trail Boot")

	all := contextReply("red shoes", apparels, "tell me about them")
	assert.Contains(t, all, "Here is everything from your search for \"red shoes\"")
	assert.Contains(t, all, "Trail Boot")
}

func TestToolResultRows(t *testing.T) {
	assert.Nil(t, ToolResult{Status: StatusError, Report: NoMatchReport}.Rows())
	assert.Nil(t, ToolResult{Status: StatusSuccess}.Rows())
	assert.Equal(t, []string{"a, 1", "b, 2"}, ToolResult{Status: StatusSuccess, Report: "a, 1; b, 2"}.Rows())
}

func TestSearchReplyBulletsOneRowPerResult(t *testing.T) {
	rendered := query.Result{Rows: [][]string{
		{"Trail Boot", "waterproof; lined"},
		{"Court Sneaker", "canvas"},
	}}.Text()

	reply := searchReply("boots", ToolResult{Status: StatusSuccess, Report: rendered})
	assert.Equal(t, "Here is what I found for \"boots\" (2 matches):\n- Trail Boot, waterproof, lined\n- Court Sneaker, canvas", reply)
}
