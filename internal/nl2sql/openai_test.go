package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}

func TestOpenAITranslatorSendsSchemaAndStripsFence(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```sql\\nSELECT name FROM apparels\\n```" + `"}}]}`))
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "secret", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	result, err := translator.Translate(context.Background(), Request{
		ConfigName:      DefaultConfigName,
		NaturalLanguage: "red sneakers",
		Tables:          []TableContext{{TableName: "apparels", Columns: []string{"name", "color"}}},
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT name FROM apparels" || result.Provider != ProviderOpenAI || result.Model != "test-model" {
		t.Fatalf("Translate() = %#v", result)
	}
	if captured.Model != "test-model" || len(captured.Messages) != 2 {
		t.Fatalf("captured request = %#v", captured)
	}
	user := captured.Messages[1].Content
	if !strings.Contains(user, "red sneakers") || !strings.Contains(user, `"table_name":"apparels"`) {
		t.Fatalf("user prompt = %q", user)
	}
}

func TestChatClientReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewChatClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), "s", "u"); err == nil || !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestNewChatClientValidatesConfig(t *testing.T) {
	if _, err := NewChatClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected base URL error")
	}
	if _, err := NewChatClient(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected api key error")
	}
}
