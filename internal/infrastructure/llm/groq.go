package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const (
	groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

	// Items beyond this point add cost without changing the insight.
	maxItemsInPrompt = 25
)

const insightSystemPrompt = "You are an analyst reviewing daily tech launches and discussions. " +
	"Given a list of items, write 2-3 sentences naming the strongest cross-cutting trend " +
	"and the single most promising idea. Be concrete, no preamble."

// GroqClient implements ports.InsightClient backed by Groq's
// OpenAI-compatible chat API.
type GroqClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.InsightClient = (*GroqClient)(nil)

// NewGroqClient builds a client; endpoint is overridable for tests,
// pass "" for the real API.
func NewGroqClient(apiKey, model, endpoint string) *GroqClient {
	if endpoint == "" {
		endpoint = groqEndpoint
	}
	return &GroqClient{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// GenerateInsight summarizes the top scored items into a short trend
// note for the digest.
func (c *GroqClient) GenerateInsight(ctx context.Context, items []domain.Item) (string, error) {
	if c == nil {
		return "", fmt.Errorf("groq client is nil")
	}
	if c.apiKey == "" || c.model == "" {
		return "", fmt.Errorf("groq client misconfigured")
	}
	if len(items) == 0 {
		return "", fmt.Errorf("no items to summarize")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": insightSystemPrompt},
			{"role": "user", "content": buildPrompt(items)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal groq payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request insight: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("groq error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func buildPrompt(items []domain.Item) string {
	if len(items) > maxItemsInPrompt {
		items = items[:maxItemsInPrompt]
	}

	var b strings.Builder
	b.WriteString("Today's items:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s", item.SourceName, item.Title)
		if item.Description != "" {
			fmt.Fprintf(&b, ": %s", item.Description)
		}
		if len(item.Tags) > 0 {
			fmt.Fprintf(&b, " (themes: %s)", strings.Join(item.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
