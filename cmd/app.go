package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/banter/internal/audio"
	"github.com/daikw/banter/internal/debuglog"
	"github.com/daikw/banter/internal/generate"
	"github.com/daikw/banter/internal/llm"
	"github.com/daikw/banter/internal/metrics"
	"github.com/daikw/banter/internal/persona"
	"github.com/daikw/banter/internal/voice"
	"github.com/daikw/banter/internal/voice/provider"
)

// services holds everything a command may need, wired from the config.
type services struct {
	cfg          *voice.ConfigFile
	registry     *provider.Registry
	blobs        *audio.BlobStore
	cache        *audio.Cache
	orchestrator *generate.Orchestrator
	profiles     *voice.ProfileTable
	personas     *persona.Manager
	debug        *debuglog.Log
	metrics      *metrics.Metrics
}

func loadConfig(c *cli.Command) (*voice.ConfigFile, error) {
	loader := voice.NewConfigLoader()
	if path := c.String("config"); path != "" {
		cfg, err := loader.LoadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return cfg, nil
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return loader.LoadConfig(workDir)
}

func newServices(ctx context.Context, c *cli.Command) (*services, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	s := &services{
		cfg:     cfg,
		blobs:   audio.NewBlobStore(),
		debug:   debuglog.New(debuglog.DefaultSize),
		metrics: metrics.New(),
	}
	s.registry = voice.NewRegistry(ctx, cfg, provider.Observers{s.debug, s.metrics})

	s.cache, err = audio.NewCache(cfg.CacheSize, func(handle string) { s.blobs.Revoke(handle) })
	if err != nil {
		return nil, err
	}
	s.metrics.WatchBlobs(s.blobs)
	s.metrics.WatchCache(s.cache)

	s.orchestrator, err = generate.New(s.registry, s.blobs, s.cache,
		generate.WithBatchSize(cfg.Fanout.BatchSize),
		generate.WithBatchPause(cfg.Fanout.BatchPause.Std()),
	)
	if err != nil {
		return nil, err
	}

	if s.profiles, err = voice.LoadProfiles(cfg.VoiceProfilesPath); err != nil {
		return nil, err
	}
	if s.personas, err = persona.NewManager(cfg.PersonasDir); err != nil {
		return nil, err
	}
	return s, nil
}

// voicesFor loads the persona and builds its voice resolver.
func (s *services) voicesFor(name string) (*voice.Resolver, *persona.Template, error) {
	tmpl, err := s.personas.Load(name)
	if err != nil {
		return nil, nil, err
	}
	return voice.NewResolver(s.profiles, tmpl.VoiceMaps()), tmpl, nil
}

// textClient creates the dialogue writer. An explicit backend overrides
// the config.
func (s *services) textClient(backend, model string) (*llm.Client, error) {
	if backend == "" {
		backend = s.cfg.Text.Provider
	}
	cfg := llm.Config{
		Provider:   backend,
		Model:      model,
		APIKey:     s.cfg.Text.APIKeys[backend],
		HTTPClient: &http.Client{Timeout: s.cfg.HTTPTimeout.Std()},
	}
	if backend == s.cfg.Text.Provider {
		if cfg.Model == "" {
			cfg.Model = s.cfg.Text.Model
		}
		cfg.BaseURL = s.cfg.Text.BaseURL
	}
	return llm.NewClient(cfg)
}

func (s *services) close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	for _, name := range s.registry.Names() {
		a, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		if closer, ok := a.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Debug().Err(err).Str("provider", name).Msg("Failed to close provider")
			}
		}
	}
}
