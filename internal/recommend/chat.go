package recommend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mohammed-shakir/opendata-map/internal/core/observability"
	"github.com/mohammed-shakir/opendata-map/internal/core/upstream"
)

// ChatConfig points at an OpenAI-compatible /chat/completions API (Groq,
// OpenAI and most self-hosted gateways).
type ChatConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

type ChatClient struct {
	logger *slog.Logger
	http   *http.Client
	cfg    ChatConfig
}

func NewChatClient(logger *slog.Logger, httpClient *http.Client, cfg ChatConfig) *ChatClient {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChatClient{logger: logger, http: httpClient, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one request. It does not retry.
func (c *ChatClient) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := sonic.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.IncUpstreamError(c.cfg.Name, "transport")
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency(c.cfg.Name, time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		observability.IncUpstreamError(c.cfg.Name, "status")
		return "", upstream.FromResponse(c.cfg.Name, resp)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var out chatResponse
	if err := sonic.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	c.logger.Debug("completion received", "model", c.cfg.Model, "duration", time.Since(start).String(),
		"response_len", len(out.Choices[0].Message.Content))
	return out.Choices[0].Message.Content, nil
}
