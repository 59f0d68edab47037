package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/daikw/banter/internal/audio"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	GCPName            = "gcp"
	GCPDefaultLanguage = "en-US"
	GCPDefaultVoice    = "en-US-Neural2-F"
)

// GCPClient is the part of the Cloud TTS client the adapter uses.
type GCPClient interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// GCPConfig configures the Google Cloud TTS adapter.
type GCPConfig struct {
	CredentialsFile string
	LanguageCode    string
	Voice           string
}

// GCPAdapter requests LINEAR16, which Cloud TTS returns with a WAV header.
type GCPAdapter struct {
	base
	cfg    GCPConfig
	client GCPClient
}

// NewGCPAdapter dials Cloud TTS. Without a credentials file Application
// Default Credentials are used.
func NewGCPAdapter(ctx context.Context, cfg GCPConfig, opts ...Option) (*GCPAdapter, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP TTS client: %w", err)
	}
	return NewGCPAdapterWithClient(client, cfg, opts...), nil
}

// NewGCPAdapterWithClient uses an existing client.
func NewGCPAdapterWithClient(client GCPClient, cfg GCPConfig, opts ...Option) *GCPAdapter {
	if cfg.Voice == "" {
		cfg.Voice = GCPDefaultVoice
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = GCPDefaultLanguage
	}
	return &GCPAdapter{base: newBase(GCPName, "", "", opts), cfg: cfg, client: client}
}

func (p *GCPAdapter) Name() string {
	return GCPName
}

func (p *GCPAdapter) IsConfigured() bool {
	return p.client != nil
}

func (p *GCPAdapter) ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error) {
	return resolveVoice(lookup, GCPName, speaker, VoiceConfig{Voice: p.cfg.Voice})
}

// languageOf extracts the language from a voice name (en-US-Neural2-D is
// en-US).
func languageOf(voice, fallback string) string {
	parts := strings.Split(voice, "-")
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return fallback
}

func (p *GCPAdapter) SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error) {
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

	input := &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: text}}
	if isSSML(text) {
		input = &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: text}}
	}
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageOf(name, p.cfg.LanguageCode),
			Name:         name,
		},
		AudioConfig: &texttospeechpb.AudioConfig{AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16},
	}

	start := time.Now()
	p.report(Event{Type: EventRequest, Time: start, Method: "SynthesizeSpeech", Payload: req})

	resp, err := p.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		p.report(Event{Type: EventError, Method: "SynthesizeSpeech", Duration: time.Since(start), Err: err})
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	p.report(Event{Type: EventResponse, Method: "SynthesizeSpeech", Duration: time.Since(start), Bytes: len(resp.AudioContent)})
	log.Debug().Str("voice", name).Int("audio_bytes", len(resp.AudioContent)).Msg("GCP TTS synthesis successful")

	return &audio.Clip{Data: resp.AudioContent, MIMEType: audio.MIMEWAV}, nil
}

// ListVoices flattens voices per language code.
func (p *GCPAdapter) ListVoices(ctx context.Context) ([]Voice, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	resp, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list GCP voices: %w", err)
	}

	var voices []Voice
	for _, v := range resp.Voices {
		gender := "unknown"
		switch v.SsmlGender {
		case texttospeechpb.SsmlVoiceGender_MALE:
			gender = "male"
		case texttospeechpb.SsmlVoiceGender_FEMALE:
			gender = "female"
		case texttospeechpb.SsmlVoiceGender_NEUTRAL:
			gender = "neutral"
		}
		for _, lang := range v.LanguageCodes {
			voices = append(voices, Voice{
				ID:          v.Name,
				Name:        v.Name,
				Language:    lang,
				Gender:      gender,
				Description: detectEngineType(v.Name) + " voice",
			})
		}
	}
	return voices, nil
}

func detectEngineType(voiceName string) string {
	name := strings.ToLower(voiceName)
	switch {
	case strings.Contains(name, "wavenet"):
		return "WaveNet"
	case strings.Contains(name, "neural2"):
		return "Neural2"
	case strings.Contains(name, "studio"):
		return "Studio"
	case strings.Contains(name, "chirp"):
		return "Chirp"
	default:
		return "Standard"
	}
}

// Close releases the gRPC connection.
func (p *GCPAdapter) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
