package generate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daikw/banter/internal/llm"
	"github.com/daikw/banter/internal/voice/provider"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
		{
			name:     "auth status",
			err:      fmt.Errorf("generate: %w", &provider.TransportError{Provider: "openai", StatusCode: 401}),
			expected: "Error processing response. Please check your API key and try again.",
		},
		{
			name:     "forbidden status",
			err:      &provider.TransportError{Provider: "gemini", StatusCode: 403},
			expected: "Error processing response. Please check your API key and try again.",
		},
		{
			name:     "vendor unavailable",
			err:      fmt.Errorf("line 0 (Alice): %w", &provider.TransportError{Provider: "elevenlabs", StatusCode: 503}),
			expected: "Error processing response. Details: line 0 (Alice): elevenlabs API error: status 503",
		},
		{
			name:     "rate limited",
			err:      &provider.TransportError{Provider: "fal", StatusCode: 429, Body: `{"detail":"slow down"}`},
			expected: `Error processing response. Details: fal API error: status 429, body: {"detail":"slow down"}`,
		},
		{
			name:     "network failure",
			err:      &provider.TransportError{Provider: "elevenlabs", Method: "POST", Err: errors.New("dial tcp: connection refused")},
			expected: "Error processing response. Details: elevenlabs API error: dial tcp: connection refused",
		},
		{
			name:     "api error text",
			err:      errors.New("gemini API error: quota"),
			expected: "Error processing response. Please check your API key and try again.",
		},
		{
			name:     "bad json",
			err:      fmt.Errorf("failed to parse dialogue JSON: %w", errors.New("unexpected end")),
			expected: "Error processing response. The AI returned invalid JSON format. This may be a provider compatibility issue.",
		},
		{
			name:     "other",
			err:      errors.New("connection reset"),
			expected: "Error processing response. Details: connection reset",
		},
		{
			name:     "invalid dialogue",
			err:      llm.ErrInvalidDialogue,
			expected: "Error processing response. Details: " + llm.ErrInvalidDialogue.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UserMessage(tt.err))
		})
	}
}
