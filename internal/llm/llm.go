// Package llm writes dialogues with an OpenAI-compatible chat model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/daikw/banter/internal/voice/provider"
)

// Backend is a text provider reachable through the OpenAI chat API.
type Backend struct {
	Name         string
	BaseURL      string
	DefaultModel string
	// JSONMode enables response_format=json_object.
	JSONMode bool
}

// Backends lists the supported text providers.
var Backends = map[string]Backend{
	"openai":    {Name: "openai", BaseURL: "https://api.openai.com/v1", DefaultModel: "gpt-4.1-nano", JSONMode: true},
	"anthropic": {Name: "anthropic", BaseURL: "https://api.anthropic.com/v1", DefaultModel: "claude-sonnet-4-20250514"},
	"google":    {Name: "google", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", DefaultModel: "gemini-2.5-flash-preview-05-20", JSONMode: true},
	"xai":       {Name: "xai", BaseURL: "https://api.x.ai/v1", DefaultModel: "grok-3", JSONMode: true},
	"deepseek":  {Name: "deepseek", BaseURL: "https://api.deepseek.com/v1", DefaultModel: "deepseek-chat", JSONMode: true},
}

// BackendNames returns the backend names, sorted.
func BackendNames() []string {
	names := make([]string, 0, len(Backends))
	for name := range Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrInvalidDialogue is returned when the model answered with JSON that has
// no dialogue array. Its text is shown to users as is.
var ErrInvalidDialogue = errors.New( //nolint:staticcheck
	"The AI response was not in the expected format. Please check the persona template.")

// Config selects the backend and model.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the backend endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Dialogue is the JSON document the model is asked to produce.
type Dialogue struct {
	Dialogue []provider.Utterance `json:"dialogue"`
}

// Client writes dialogues.
type Client struct {
	backend Backend
	model   string
	client  *openai.Client
}

// NewClient creates a client for cfg.Provider.
func NewClient(cfg Config) (*Client, error) {
	backend, ok := Backends[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown text provider: %s", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key not configured", cfg.Provider)
	}
	model := cfg.Model
	if model == "" {
		model = backend.DefaultModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = backend.BaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &Client{backend: backend, model: model, client: openai.NewClientWithConfig(clientCfg)}, nil
}

// Provider returns the backend name.
func (c *Client) Provider() string {
	return c.backend.Name
}

// Model returns the chat model in use.
func (c *Client) Model() string {
	return c.model
}

// Request is one dialogue to write.
type Request struct {
	// Persona is the persona's system prompt.
	Persona string
	// TTS names the speech provider or model the dialogue is written for.
	TTS   string
	Input string
}

// GenerateDialogue asks the model for a dialogue and parses it.
func (c *Client) GenerateDialogue(ctx context.Context, req Request) (*Dialogue, error) {
	chat := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(req.Persona, req.TTS)},
			{Role: openai.ChatMessageRoleUser, Content: req.Input},
		},
	}
	if c.backend.JSONMode {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	log.Debug().Str("provider", c.backend.Name).Str("model", c.model).Str("tts", req.TTS).Msg("Requesting dialogue")

	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return nil, wrapAPIError(c.backend.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s API error: no choices in response", c.backend.Name)
	}

	dialogue, err := ParseDialogue(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("provider", c.backend.Name).
		Int("lines", len(dialogue.Dialogue)).
		Dur("duration", time.Since(start)).
		Msg("Dialogue generated")
	return dialogue, nil
}

// wrapAPIError keeps the HTTP status in the message so callers can tell
// auth failures and rate limits apart from other errors.
func wrapAPIError(backend string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &provider.TransportError{
			Provider:   backend,
			Method:     http.MethodPost,
			URL:        "/chat/completions",
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &provider.TransportError{
			Provider:   backend,
			Method:     http.MethodPost,
			URL:        "/chat/completions",
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return fmt.Errorf("%s request failed: %w", backend, err)
}

// ParseDialogue decodes a model answer. Code fences around the JSON are
// tolerated; lines without speaker or text are dropped.
func ParseDialogue(content string) (*Dialogue, error) {
	content = strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(content, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		content = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}

	var raw struct {
		Dialogue *[]provider.Utterance `json:"dialogue"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse dialogue JSON: %w", err)
	}
	if raw.Dialogue == nil {
		return nil, ErrInvalidDialogue
	}

	d := &Dialogue{Dialogue: make([]provider.Utterance, 0, len(*raw.Dialogue))}
	for _, u := range *raw.Dialogue {
		u.Speaker, u.Text = strings.TrimSpace(u.Speaker), strings.TrimSpace(u.Text)
		if u.Speaker == "" || u.Text == "" {
			continue
		}
		d.Dialogue = append(d.Dialogue, u)
	}
	if len(d.Dialogue) == 0 {
		return nil, ErrInvalidDialogue
	}
	return d, nil
}
