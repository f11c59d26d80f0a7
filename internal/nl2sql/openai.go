package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ProviderOpenAI = "openai-compatible"

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewChatClient(cfg OpenAIConfig) (*ChatClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChatClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends one system and one user message and returns the first
// choice's content.
func (c *ChatClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// OpenAITranslator prompts a chat model with the catalog schema and sample rows.
type OpenAITranslator struct {
	chat *ChatClient
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	chat, err := NewChatClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAITranslator{chat: chat}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	systemPrompt, userPrompt, err := buildTranslatePrompts(req)
	if err != nil {
		return Result{}, err
	}
	content, err := t.chat.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      stripMarkdownSQL(content),
		Provider: ProviderOpenAI,
		Model:    t.chat.Model(),
	}, nil
}

func buildTranslatePrompts(req Request) (string, string, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return "", "", fmt.Errorf("marshal table context: %w", err)
	}
	systemPrompt := "You convert retail catalog searches into a single PostgreSQL SELECT statement. " +
		"The catalog holds apparels of two categories: clothing and footwear. " +
		"Return ONLY SQL. No markdown, no explanation."
	userPrompt := fmt.Sprintf(
		"Configuration: %s\nSchema and sample context (JSON):\n%s\n\nShopper search:\n%s\n\nRules:\n- Use only listed tables.\n- Select the columns a shopper would want to see, starting with name.\n- Match colors, materials and kinds case-insensitively.\n- Add LIMIT 20 unless the search asks otherwise.\n- Output a single SQL query only.",
		req.ConfigName,
		string(tablesJSON),
		strings.TrimSpace(req.NaturalLanguage),
	)
	return systemPrompt, userPrompt, nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
