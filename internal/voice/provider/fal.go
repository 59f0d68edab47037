package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daikw/banter/internal/audio"
	"github.com/rs/zerolog/log"
)

const (
	FalName                   = "fal"
	FalBaseURL                = "https://fal.run"
	FalDefaultPollInterval    = 5 * time.Second
	FalDefaultMaxPollAttempts = 60
)

// Job statuses reported by the fal.ai queue.
const (
	falStatusCompleted = "COMPLETED"
	falStatusFailed    = "FAILED"
)

// FalConfig configures the fal.ai adapter.
type FalConfig struct {
	APIKey          string
	Model           string
	Voice           string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// FalAdapter drives every model of FalModels. Submissions either answer
// with the audio URL directly or with a request id that is polled.
type FalAdapter struct {
	base
	cfg   FalConfig
	model FalModel
}

// NewFalAdapter creates the adapter. An unknown model is an error.
func NewFalAdapter(cfg FalConfig, opts ...Option) (*FalAdapter, error) {
	if cfg.Model == "" {
		cfg.Model = FalDefaultModel
	}
	model, ok := LookupFalModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("unknown fal.ai model: %s", cfg.Model)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = FalDefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = FalDefaultMaxPollAttempts
	}
	return &FalAdapter{
		base:  newBase(FalName, cfg.Model, FalBaseURL, opts),
		cfg:   cfg,
		model: model,
	}, nil
}

func (p *FalAdapter) Name() string {
	return FalName
}

func (p *FalAdapter) Model() string {
	return p.cfg.Model
}

func (p *FalAdapter) IsConfigured() bool {
	return p.cfg.APIKey != ""
}

func (p *FalAdapter) WithModel(model string) (Adapter, error) {
	cfg := p.cfg
	cfg.Model = model
	return NewFalAdapter(cfg, p.options()...)
}

// ResolveVoice prefers a mapping for the exact model, then one for the
// family. Every fal model can speak without a voice, so this never fails.
func (p *FalAdapter) ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error) {
	if lookup != nil {
		for _, key := range []string{p.model.ID, FalName} {
			if v, ok := lookup.LookupVoice(key, speaker); ok && !v.IsZero() {
				return v, nil
			}
		}
	}
	return VoiceConfig{Voice: p.cfg.Voice}, nil
}

func (p *FalAdapter) NativeDialogue() bool {
	return p.model.Dialogue
}

// FallbackOnDialogueError asks for per-line synthesis when the dialog
// endpoint fails.
func (p *FalAdapter) FallbackOnDialogueError() bool {
	return p.model.Dialogue
}

func (p *FalAdapter) SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := p.model.validate(voice); err != nil {
		return nil, err
	}
	return p.run(ctx, p.model.endpointFor(voice), p.model.buildRequest(text, voice))
}

// SynthesizeDialogue sends the joined dialogue to the PlayAI dialog model.
func (p *FalAdapter) SynthesizeDialogue(ctx context.Context, _ VoiceLookup, utterances []Utterance) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if !p.model.Dialogue {
		return nil, fmt.Errorf("fal.ai model %s has no dialogue endpoint", p.model.ID)
	}
	if len(utterances) == 0 {
		return nil, nil
	}
	voice := p.cfg.Voice
	if voice == "" {
		voice = "default"
	}
	return p.run(ctx, p.model.Endpoint, map[string]any{"text": dialogueText(utterances), "voice": voice})
}

type falAudioRef struct {
	URL string `json:"url"`
}

// falResultBody is the payload of both a sync submit and a finished job.
type falResultBody struct {
	RequestID string       `json:"request_id"`
	AudioURL  *falAudioRef `json:"audio_url"`
	Audio     *falAudioRef `json:"audio"`
}

func (r falResultBody) audioURL() string {
	if r.AudioURL != nil && r.AudioURL.URL != "" {
		return r.AudioURL.URL
	}
	if r.Audio != nil {
		return r.Audio.URL
	}
	return ""
}

type falResultKind int

const (
	syncResult falResultKind = iota
	queuedResult
)

// falSubmitResult is a submit response classified once.
type falSubmitResult struct {
	kind      falResultKind
	audioURL  string
	requestID string
}

func parseFalSubmit(body falResultBody) (falSubmitResult, error) {
	if u := body.audioURL(); u != "" {
		return falSubmitResult{kind: syncResult, audioURL: u}, nil
	}
	if body.RequestID != "" {
		return falSubmitResult{kind: queuedResult, requestID: body.RequestID}, nil
	}
	return falSubmitResult{}, fmt.Errorf("no request ID returned from fal.ai")
}

type falStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (p *FalAdapter) authHeader() map[string]string {
	return map[string]string{"Authorization": "Key " + p.cfg.APIKey}
}

func (p *FalAdapter) run(ctx context.Context, endpoint string, body map[string]any) (*audio.Clip, error) {
	resp, err := p.do(ctx, request{
		method: "POST",
		url:    p.baseURL + "/" + endpoint,
		header: p.authHeader(),
		body:   body,
	})
	if err != nil {
		return nil, err
	}

	var parsed falResultBody
	if err := resp.decodeJSON(&parsed); err != nil {
		return nil, err
	}
	submit, err := parseFalSubmit(parsed)
	if err != nil {
		return nil, err
	}

	audioURL := submit.audioURL
	if submit.kind == queuedResult {
		audioURL, err = p.await(ctx, endpoint, submit.requestID)
		if err != nil {
			return nil, err
		}
	}
	return p.download(ctx, audioURL)
}

// await polls the job until it completes, fails or runs out of attempts,
// then fetches the result. Each status check waits one interval first.
func (p *FalAdapter) await(ctx context.Context, endpoint, requestID string) (string, error) {
	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", p.baseURL, endpoint, requestID)
	resultURL := fmt.Sprintf("%s/%s/requests/%s", p.baseURL, endpoint, requestID)

	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= p.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}

		resp, err := p.do(ctx, request{method: "GET", url: statusURL, header: p.authHeader()})
		if err != nil {
			return "", fmt.Errorf("failed to check status: %w", err)
		}
		var status falStatus
		if err := resp.decodeJSON(&status); err != nil {
			return "", err
		}
		log.Debug().Str("request_id", requestID).Int("attempt", attempt).Str("status", status.Status).Msg("Polled fal.ai job")

		switch status.Status {
		case falStatusCompleted:
			result, err := p.do(ctx, request{method: "GET", url: resultURL, header: p.authHeader()})
			if err != nil {
				return "", fmt.Errorf("failed to fetch result: %w", err)
			}
			var body falResultBody
			if err := result.decodeJSON(&body); err != nil {
				return "", err
			}
			u := body.audioURL()
			if u == "" {
				return "", fmt.Errorf("no audio URL in final result")
			}
			return u, nil
		case falStatusFailed:
			return "", &JobError{Kind: JobFailed, Provider: FalName, RequestID: requestID, Attempts: attempt, Status: status.Status, Detail: status.Error}
		}
		timer.Reset(p.cfg.PollInterval)
	}

	return "", &JobError{Kind: JobTimeout, Provider: FalName, RequestID: requestID, Attempts: p.cfg.MaxPollAttempts}
}

func (p *FalAdapter) download(ctx context.Context, u string) (*audio.Clip, error) {
	resp, err := p.do(ctx, request{method: "GET", url: u})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	return sniffClip(resp.body, resp.contentType), nil
}

// sniffClip trusts the payload over a generic content type.
func sniffClip(data []byte, contentType string) *audio.Clip {
	switch {
	case audio.IsWAV(data):
		return &audio.Clip{Data: data, MIMEType: audio.MIMEWAV}
	case audio.IsMP3(data):
		return &audio.Clip{Data: data, MIMEType: audio.MIMEMPEG}
	}
	return audio.NewClip(data, contentType)
}
