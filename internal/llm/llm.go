// Package llm provides a pluggable interface for the language-model service
// the memory pipelines talk to.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned by Unavailable for every call.
var ErrNotConfigured = errors.New("no language model configured")

// ErrEmptyResponse is returned when the service answers with no text.
var ErrEmptyResponse = errors.New("empty response from language model")

// Completer sends one system+user exchange and returns the text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "anthropic" | "openai" | "ollama" | "" (disabled)
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// --- Anthropic Provider ---

// AnthropicCompleter uses the Anthropic Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter creates a completer for the Messages API.
// Default model: claude-sonnet-4-20250514.
func NewAnthropicCompleter(apiKey, baseURL, model string) *AnthropicCompleter {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicCompleter{client: anthropic.NewClient(opts...), model: model}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return nonEmpty(sb.String())
}

func (c *AnthropicCompleter) Name() string { return "anthropic/" + c.model }

// --- OpenAI-compatible Provider ---

// OpenAICompleter uses any OpenAI-compatible chat completion API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer for an OpenAI-compatible API.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}

func (c *OpenAICompleter) Name() string { return "openai/" + c.model }

// --- Ollama Provider ---

// OllamaCompleter uses a local Ollama instance's chat endpoint.
type OllamaCompleter struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

// NewOllamaCompleter creates a completer using Ollama's API.
// Default model: llama3.1.
func NewOllamaCompleter(baseURL, model string) *OllamaCompleter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaCompleter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (c *OllamaCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, _ := json.Marshal(ollamaRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: map[string]any{"num_predict": maxTokens},
	})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return nonEmpty(result.Message.Content)
}

func (c *OllamaCompleter) Name() string { return "ollama/" + c.model }

// --- Disabled ---

// Unavailable is the completer used when no provider is configured. Every
// call fails, so the pipelines take their local paths.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, string, string, int) (string, error) {
	return "", ErrNotConfigured
}

func (Unavailable) Name() string { return "none" }

// --- Timeout wrapper ---

type timeoutCompleter struct {
	Completer
	timeout time.Duration
}

func (c timeoutCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.Completer.Complete(ctx, system, user, maxTokens)
}

// WithTimeout bounds every call of c to d. A non-positive d returns c.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return timeoutCompleter{Completer: c, timeout: d}
}

// --- Factory ---

// New creates a completer from cfg. An empty provider returns Unavailable.
func New(cfg Config) (Completer, error) {
	var c Completer
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an api key")
		}
		c = NewAnthropicCompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an api key or base url")
		}
		c = NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "ollama":
		c = NewOllamaCompleter(cfg.BaseURL, cfg.Model)
	case "", "none":
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return WithTimeout(c, cfg.Timeout), nil
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}
