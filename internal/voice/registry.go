package voice

import (
	"context"
	"net/http"

	"github.com/daikw/banter/internal/voice/provider"
	"github.com/rs/zerolog/log"
)

// NewRegistry builds the adapter registry from the config. ElevenLabs,
// Gemini, fal.ai and OpenAI are always registered and report whether they
// are configured; Polly and GCP need SDK clients and are only registered
// when their section exists.
func NewRegistry(ctx context.Context, cfg *ConfigFile, observer provider.Observer) *provider.Registry {
	client := &http.Client{Timeout: cfg.HTTPTimeout.Std()}
	common := []provider.Option{provider.WithHTTPClient(client), provider.WithObserver(observer)}
	with := func(baseURL string) []provider.Option {
		return append([]provider.Option{provider.WithBaseURL(baseURL)}, common...)
	}

	p := cfg.Providers
	reg := provider.NewRegistry(
		provider.NewElevenLabsAdapter(provider.ElevenLabsConfig{
			APIKey:          p.ElevenLabs.APIKey,
			Model:           p.ElevenLabs.Model,
			Mode:            p.ElevenLabs.Mode,
			Stability:       p.ElevenLabs.Stability,
			SimilarityBoost: p.ElevenLabs.SimilarityBoost,
		}, with(p.ElevenLabs.BaseURL)...),
		provider.NewGeminiAdapter(provider.GeminiConfig{
			APIKey: p.Gemini.APIKey,
			Model:  p.Gemini.Model,
			Voice:  p.Gemini.Voice,
		}, with(p.Gemini.BaseURL)...),
		provider.NewOpenAIAdapter(provider.OpenAIConfig{
			APIKey: p.OpenAI.APIKey,
			Model:  p.OpenAI.Model,
			Voice:  p.OpenAI.Voice,
			Speed:  p.OpenAI.Speed,
		}, with(p.OpenAI.BaseURL)...),
	)

	fal, err := provider.NewFalAdapter(provider.FalConfig{
		APIKey:          p.Fal.APIKey,
		Model:           p.Fal.Model,
		Voice:           p.Fal.Voice,
		PollInterval:    p.Fal.PollInterval.Std(),
		MaxPollAttempts: p.Fal.MaxPollAttempts,
	}, with(p.Fal.BaseURL)...)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping fal.ai provider")
	} else {
		reg.Register(fal)
	}

	if p.Polly != nil {
		polly, err := provider.NewPollyAdapter(ctx, provider.PollyConfig{
			Region: p.Polly.Region,
			Voice:  p.Polly.Voice,
			Engine: p.Polly.Engine,
		}, common...)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping Polly provider")
		} else {
			reg.Register(polly)
		}
	}

	if p.GCP != nil {
		gcp, err := provider.NewGCPAdapter(ctx, provider.GCPConfig{
			CredentialsFile: p.GCP.CredentialsFile,
			LanguageCode:    p.GCP.LanguageCode,
			Voice:           p.GCP.Voice,
		}, common...)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping GCP provider")
		} else {
			reg.Register(gcp)
		}
	}

	return reg
}
