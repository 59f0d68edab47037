package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/daikw/banter/internal/audio"
	"github.com/rs/zerolog/log"
)

const (
	ElevenLabsName               = "elevenlabs"
	ElevenLabsBaseURL            = "https://api.elevenlabs.io/v1"
	ElevenLabsTTSEndpoint        = "/text-to-speech"
	ElevenLabsDialogueEndpoint   = "/text-to-dialogue"
	ElevenLabsVoicesEndpoint     = "/voices"
	ElevenLabsDefaultModel       = "eleven_multilingual_v2"
	ElevenLabsTagPreservingModel = "eleven_v3"

	ElevenLabsModeIndividual = "individual"
	ElevenLabsModeDialogue   = "dialogue"
)

// ElevenLabsModels lists the models the adapter knows how to drive.
var ElevenLabsModels = []string{
	"eleven_v3",
	"eleven_multilingual_v2",
	"eleven_turbo_v2_5",
	"eleven_turbo_v2",
	"eleven_flash_v2_5",
	"eleven_flash_v2",
	"eleven_monolingual_v1",
}

var bracketTag = regexp.MustCompile(`\[([^\]]+)\]`)

// ElevenLabsConfig configures the ElevenLabs adapter.
type ElevenLabsConfig struct {
	APIKey          string
	Model           string
	Mode            string
	Stability       float64
	SimilarityBoost float64
}

// ElevenLabsAdapter talks to the ElevenLabs v1 API, either one request per
// utterance or one text-to-dialogue request per dialogue.
type ElevenLabsAdapter struct {
	base
	cfg ElevenLabsConfig
}

// NewElevenLabsAdapter creates the adapter, filling unset config fields.
func NewElevenLabsAdapter(cfg ElevenLabsConfig, opts ...Option) *ElevenLabsAdapter {
	if cfg.Model == "" {
		cfg.Model = ElevenLabsDefaultModel
	}
	if cfg.Mode == "" {
		cfg.Mode = ElevenLabsModeIndividual
	}
	if cfg.Stability <= 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost <= 0 {
		cfg.SimilarityBoost = 0.75
	}
	return &ElevenLabsAdapter{
		base: newBase(ElevenLabsName, cfg.Model, ElevenLabsBaseURL, opts),
		cfg:  cfg,
	}
}

// Name returns the provider name
func (p *ElevenLabsAdapter) Name() string {
	return ElevenLabsName
}

// Model returns the active model id.
func (p *ElevenLabsAdapter) Model() string {
	return p.cfg.Model
}

// IsConfigured reports whether an API key is set.
func (p *ElevenLabsAdapter) IsConfigured() bool {
	return p.cfg.APIKey != ""
}

// ResolveVoice has no fallback voice: unmapped speakers are skipped.
func (p *ElevenLabsAdapter) ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error) {
	return resolveVoice(lookup, ElevenLabsName, speaker, VoiceConfig{})
}

// WithModel returns a copy of the adapter bound to model.
func (p *ElevenLabsAdapter) WithModel(model string) (Adapter, error) {
	if !slices.Contains(ElevenLabsModels, model) {
		return nil, fmt.Errorf("unknown ElevenLabs model: %s", model)
	}
	cfg := p.cfg
	cfg.Model = model
	return NewElevenLabsAdapter(cfg, p.options()...), nil
}

// NativeDialogue reports whether dialogue mode is selected.
func (p *ElevenLabsAdapter) NativeDialogue() bool {
	return p.cfg.Mode == ElevenLabsModeDialogue
}

// FilterText strips bracketed stage directions such as [pause] unless the
// model understands them.
func FilterText(model, text string) string {
	if model == ElevenLabsTagPreservingModel {
		return text
	}
	return bracketTag.ReplaceAllString(text, "")
}

// VoiceSettings are the ElevenLabs synthesis knobs.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsTTSRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type elevenLabsDialogueInput struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type elevenLabsDialogueRequest struct {
	Inputs   []elevenLabsDialogueInput `json:"inputs"`
	ModelID  string                    `json:"model_id"`
	Settings VoiceSettings             `json:"settings"`
}

func (p *ElevenLabsAdapter) settings() VoiceSettings {
	return VoiceSettings{Stability: p.cfg.Stability, SimilarityBoost: p.cfg.SimilarityBoost}
}

func (p *ElevenLabsAdapter) headers() map[string]string {
	return map[string]string{"xi-api-key": p.cfg.APIKey, "Accept": audio.MIMEMPEG}
}

// SynthesizeUtterance calls text-to-speech for one line.
func (p *ElevenLabsAdapter) SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	voiceID := voice.ID()
	if voiceID == "" {
		return nil, &VoiceResolutionError{Provider: ElevenLabsName}
	}
	text = FilterText(p.cfg.Model, text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	resp, err := p.do(ctx, request{
		method: "POST",
		url:    p.baseURL + ElevenLabsTTSEndpoint + "/" + url.PathEscape(voiceID),
		header: p.headers(),
		body:   elevenLabsTTSRequest{Text: text, ModelID: p.cfg.Model, VoiceSettings: p.settings()},
	})
	if err != nil {
		return nil, describeElevenLabsError(err)
	}
	return audio.NewClip(resp.body, resp.contentType), nil
}

// SynthesizeDialogue sends the whole dialogue to text-to-dialogue. Speakers
// without a voice are left out; if nobody has one the result is nil.
func (p *ElevenLabsAdapter) SynthesizeDialogue(ctx context.Context, lookup VoiceLookup, utterances []Utterance) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}

	inputs := make([]elevenLabsDialogueInput, 0, len(utterances))
	for _, u := range utterances {
		voice, err := p.ResolveVoice(lookup, u.Speaker)
		if err != nil {
			log.Warn().Str("speaker", u.Speaker).Msg("No voice configured for speaker")
			continue
		}
		inputs = append(inputs, elevenLabsDialogueInput{Text: FilterText(p.cfg.Model, u.Text), VoiceID: voice.ID()})
	}
	if len(inputs) == 0 {
		log.Warn().Msg("No valid inputs for dialogue API")
		return nil, nil
	}

	resp, err := p.do(ctx, request{
		method: "POST",
		url:    p.baseURL + ElevenLabsDialogueEndpoint,
		header: p.headers(),
		body:   elevenLabsDialogueRequest{Inputs: inputs, ModelID: p.cfg.Model, Settings: p.settings()},
	})
	if err != nil {
		return nil, describeElevenLabsError(err)
	}
	return audio.NewClip(resp.body, resp.contentType), nil
}

type elevenLabsVoice struct {
	VoiceID         string            `json:"voice_id"`
	Name            string            `json:"name"`
	Category        string            `json:"category"`
	Labels          map[string]string `json:"labels"`
	Description     string            `json:"description"`
	AvailableForTTS *bool             `json:"available_for_tts"`
	FineTuning      struct {
		Language string `json:"language"`
	} `json:"fine_tuning"`
}

// ListVoices returns the voices available to the account.
func (p *ElevenLabsAdapter) ListVoices(ctx context.Context) ([]Voice, error) {
	if !p.IsConfigured() {
		return GetPrebuiltVoices(), nil
	}
	resp, err := p.do(ctx, request{
		method: "GET",
		url:    p.baseURL + ElevenLabsVoicesEndpoint,
		header: map[string]string{"xi-api-key": p.cfg.APIKey},
	})
	if err != nil {
		return nil, describeElevenLabsError(err)
	}

	var parsed struct {
		Voices []elevenLabsVoice `json:"voices"`
	}
	if err := resp.decodeJSON(&parsed); err != nil {
		return nil, err
	}

	voices := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		if v.AvailableForTTS != nil && !*v.AvailableForTTS {
			continue
		}
		lang := "multilingual"
		if v.FineTuning.Language != "" {
			lang = v.FineTuning.Language
		}
		voices = append(voices, Voice{
			ID:          v.VoiceID,
			Name:        v.Name,
			Language:    lang,
			Gender:      v.Labels["gender"],
			Description: v.Description,
		})
	}
	return voices, nil
}

// ElevenLabsError represents an error body from the ElevenLabs API
type ElevenLabsError struct {
	Detail interface{} `json:"detail"`
}

func (e ElevenLabsError) String() string {
	switch detail := e.Detail.(type) {
	case string:
		return detail
	case map[string]interface{}:
		if msg, ok := detail["message"].(string); ok {
			return msg
		}
		if status, ok := detail["status"].(string); ok {
			return status
		}
	case []interface{}:
		if len(detail) > 0 {
			if first, ok := detail[0].(map[string]interface{}); ok {
				if msg, ok := first["msg"].(string); ok {
					return msg
				}
			}
		}
	}
	return fmt.Sprintf("%v", e.Detail)
}

// describeElevenLabsError swaps the raw body of a TransportError for the
// vendor's message when it can be parsed. The raw body is kept in Err.
func describeElevenLabsError(err error) error {
	terr, ok := err.(*TransportError)
	if !ok || terr.Body == "" {
		return err
	}
	var parsed ElevenLabsError
	if json.Unmarshal([]byte(terr.Body), &parsed) != nil || parsed.Detail == nil {
		return err
	}
	if terr.Err == nil {
		terr.Err = errors.New(parsed.String())
	}
	return terr
}

// GetPrebuiltVoices returns the well-known pre-built ElevenLabs voices.
// ListVoices falls back to them when no API key is set.
func GetPrebuiltVoices() []Voice {
	return []Voice{
		{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Language: "en", Gender: "female", Description: "American female voice"},
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Sarah", Language: "en", Gender: "female", Description: "Young American female voice"},
		{ID: "XrExE9yKIg1WjnnlVkGX", Name: "Matilda", Language: "en", Gender: "female", Description: "Professional American female voice"},
		{ID: "LcfcDJNUP1GQjkzn1xUU", Name: "Emily", Language: "en", Gender: "female", Description: "Calm American female voice"},
		{ID: "piTKgcLEGmPE4e6mEKli", Name: "Dorothy", Language: "en", Gender: "female", Description: "British female voice"},
		{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Language: "en", Gender: "male", Description: "Calm American male voice"},
		{ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Language: "en", Gender: "male", Description: "Deep American male voice"},
		{ID: "yoZ06aMxZJJ28mfd3POQ", Name: "Sam", Language: "en", Gender: "male", Description: "Young American male voice"},
		{ID: "JBFqnCBsd6RMkjVDRZzb", Name: "George", Language: "en", Gender: "male", Description: "British male voice"},
		{ID: "flq6f7yk4E4fJM5XTYuZ", Name: "Michael", Language: "en", Gender: "male", Description: "British male voice"},
	}
}
