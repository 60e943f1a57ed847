// Package openai provides a genai.Provider backed by an OpenAI-compatible
// chat completion API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lorekeep/lorekeep-go/pkg/genai"
)

// DefaultTimeout bounds each generation call.
const DefaultTimeout = 10 * time.Second

const systemPrompt = `You are roleplaying a character in a living world.
Stay in character. After the player's message, respond with ONLY a JSON
object of this exact shape:
{"response": "...", "interaction_type": "...", "topics_discussed": ["..."],
"trust_change": 0, "affection_change": 0, "fear_change": 0,
"respect_change": 0, "familiarity_change": 0,
"player_tone": "...", "emotional_impact": "..."}`

// Config is the configuration for the OpenAI generation client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// Model is the chat model name (default gpt-4o-mini).
	Model string

	// BaseURL overrides the API base URL (optional).
	BaseURL string

	// Timeout bounds each call. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// Client implements genai.Provider on the OpenAI chat completion API.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ genai.Provider = (*Client)(nil)

// NewClient creates an OpenAI generation client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
	}, nil
}

// GeneratePayload runs one chat completion and parses the structured payload
// out of the response text. The payload is returned un-normalized; callers
// apply Payload.Normalize before use.
func (c *Client) GeneratePayload(ctx context.Context, req *genai.Request) (*genai.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	if req.Persona != "" {
		sb.WriteString(req.Persona)
		sb.WriteString("\n\n")
	}
	if req.MemoryContext != "" {
		sb.WriteString("What you remember:\n")
		sb.WriteString(req.MemoryContext)
		sb.WriteString("\n\n")
	}
	for _, hint := range req.QuestHints {
		sb.WriteString(hint)
		sb.WriteString("\n")
	}
	sb.WriteString("Player says: ")
	sb.WriteString(req.PlayerInput)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: generate: no choices returned")
	}

	return parsePayload(resp.Choices[0].Message.Content)
}

// parsePayload extracts the JSON payload from completion text. Models often
// wrap JSON in prose or code fences, so parsing starts at the first brace
// and ends at the matching close.
func parsePayload(text string) (*genai.Payload, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		// No JSON at all: treat the whole text as the response with an
		// empty classification, left to Normalize to default.
		return &genai.Payload{Response: strings.TrimSpace(text)}, nil
	}

	var payload genai.Payload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("openai: parse payload: %w", err)
	}
	return &payload, nil
}

// Close releases client resources. The OpenAI SDK client needs no explicit
// shutdown; retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
