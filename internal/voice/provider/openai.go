package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/daikw/banter/internal/audio"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const (
	OpenAIName         = "openai"
	OpenAIBaseURL      = "https://api.openai.com/v1"
	OpenAIDefaultModel = "tts-1"
	OpenAIDefaultVoice = "alloy"
)

// OpenAIModels lists the speech models.
var OpenAIModels = []string{"tts-1", "tts-1-hd", "gpt-4o-mini-tts"}

// OpenAIConfig configures the OpenAI speech adapter.
type OpenAIConfig struct {
	APIKey string
	Model  string
	Voice  string
	Speed  float64
}

// OpenAIAdapter synthesizes single lines through the OpenAI audio API.
type OpenAIAdapter struct {
	base
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAIAdapter creates the adapter.
func NewOpenAIAdapter(cfg OpenAIConfig, opts ...Option) *OpenAIAdapter {
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = OpenAIDefaultVoice
	}
	b := newBase(OpenAIName, cfg.Model, OpenAIBaseURL, opts)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = b.baseURL
	clientCfg.HTTPClient = b.client

	return &OpenAIAdapter{base: b, cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

func (p *OpenAIAdapter) Name() string {
	return OpenAIName
}

func (p *OpenAIAdapter) Model() string {
	return p.cfg.Model
}

func (p *OpenAIAdapter) IsConfigured() bool {
	return p.cfg.APIKey != ""
}

func (p *OpenAIAdapter) ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error) {
	return resolveVoice(lookup, OpenAIName, speaker, VoiceConfig{Voice: p.cfg.Voice})
}

func (p *OpenAIAdapter) WithModel(model string) (Adapter, error) {
	cfg := p.cfg
	cfg.Model = model
	return NewOpenAIAdapter(cfg, p.options()...), nil
}

// clampSpeed keeps speed inside the range the API accepts.
func clampSpeed(speed float64) float64 {
	switch {
	case speed <= 0:
		return 1.0
	case speed < 0.25:
		return 0.25
	case speed > 4.0:
		return 4.0
	}
	return speed
}

func (p *OpenAIAdapter) SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	name := voice.ID()
	if name == "" {
		name = p.cfg.Voice
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(name),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          clampSpeed(p.cfg.Speed),
	}
	endpoint := p.baseURL + "/audio/speech"

	start := time.Now()
	p.report(Event{Type: EventRequest, Time: start, Method: "POST", URL: endpoint, Payload: req})
	log.Debug().Str("voice", name).Str("model", p.cfg.Model).Msg("Making OpenAI TTS request")

	resp, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		terr := openAITransportError(endpoint, err)
		p.report(Event{Type: EventError, Method: "POST", URL: endpoint, Status: terr.StatusCode, Duration: time.Since(start), Err: terr})
		return nil, terr
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	p.report(Event{Type: EventResponse, Method: "POST", URL: endpoint, Status: 200, Duration: time.Since(start), Bytes: len(data)})
	return audio.NewClip(data, resp.Header().Get("Content-Type")), nil
}

// openAITransportError keeps the HTTP status of SDK errors so retry
// classification sees it.
func openAITransportError(endpoint string, err error) *TransportError {
	terr := &TransportError{Provider: OpenAIName, Method: "POST", URL: endpoint, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		terr.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		terr.StatusCode = reqErr.HTTPStatusCode
	}
	return terr
}

// ListVoices returns the fixed set of OpenAI voices.
func (p *OpenAIAdapter) ListVoices(context.Context) ([]Voice, error) {
	return []Voice{
		{ID: "alloy", Name: "Alloy", Language: "en", Gender: "neutral", Description: "Balanced, clear voice"},
		{ID: "echo", Name: "Echo", Language: "en", Gender: "male", Description: "Deep, resonant voice"},
		{ID: "fable", Name: "Fable", Language: "en", Gender: "neutral", Description: "Expressive, storytelling voice"},
		{ID: "onyx", Name: "Onyx", Language: "en", Gender: "male", Description: "Strong, authoritative voice"},
		{ID: "nova", Name: "Nova", Language: "en", Gender: "female", Description: "Bright, energetic voice"},
		{ID: "shimmer", Name: "Shimmer", Language: "en", Gender: "female", Description: "Warm, friendly voice"},
	}, nil
}
