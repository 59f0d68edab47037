package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/daikw/banter/internal/audio"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	PollyName          = "polly"
	PollyDefaultRegion = "us-east-1"
	PollyDefaultVoice  = "Joanna"
	PollySampleRate    = 16000
)

// PollyClient is the part of the Polly API the adapter uses.
type PollyClient interface {
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig configures the Amazon Polly adapter.
type PollyConfig struct {
	Region string
	Voice  string
	Engine string
}

// PollyAdapter asks Polly for raw 16 kHz PCM and wraps it as WAV so it can
// be concatenated without an MP3 decode.
type PollyAdapter struct {
	base
	cfg    PollyConfig
	client PollyClient
}

// NewPollyAdapter loads the default AWS credential chain for the region.
func NewPollyAdapter(ctx context.Context, cfg PollyConfig, opts ...Option) (*PollyAdapter, error) {
	if cfg.Region == "" {
		cfg.Region = PollyDefaultRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewPollyAdapterWithClient(polly.NewFromConfig(awsCfg), cfg, opts...), nil
}

// NewPollyAdapterWithClient uses an existing client.
func NewPollyAdapterWithClient(client PollyClient, cfg PollyConfig, opts ...Option) *PollyAdapter {
	if cfg.Voice == "" {
		cfg.Voice = PollyDefaultVoice
	}
	return &PollyAdapter{
		base:   newBase(PollyName, string(pollyEngine(cfg.Engine)), "", opts),
		cfg:    cfg,
		client: client,
	}
}

func (p *PollyAdapter) Name() string {
	return PollyName
}

func (p *PollyAdapter) IsConfigured() bool {
	return p.client != nil
}

func (p *PollyAdapter) ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error) {
	return resolveVoice(lookup, PollyName, speaker, VoiceConfig{Voice: p.cfg.Voice})
}

func pollyEngine(engine string) types.Engine {
	switch strings.ToLower(engine) {
	case "standard":
		return types.EngineStandard
	case "long-form":
		return types.EngineLongForm
	case "generative":
		return types.EngineGenerative
	case "", "neural":
		return types.EngineNeural
	}
	log.Warn().Str("engine", engine).Msg("Unknown engine, using neural")
	return types.EngineNeural
}

func (p *PollyAdapter) SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	voiceID := voice.ID()
	if voiceID == "" {
		voiceID = p.cfg.Voice
	}

	input := &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voiceID),
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String(fmt.Sprint(PollySampleRate)),
		Engine:       pollyEngine(p.cfg.Engine),
		TextType:     types.TextTypeText,
	}
	if isSSML(text) {
		input.TextType = types.TextTypeSsml
	}

	start := time.Now()
	p.report(Event{Type: EventRequest, Time: start, Method: "SynthesizeSpeech", Payload: input})

	out, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		p.report(Event{Type: EventError, Method: "SynthesizeSpeech", Duration: time.Since(start), Err: err})
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read Polly audio stream: %w", err)
	}
	p.report(Event{Type: EventResponse, Method: "SynthesizeSpeech", Duration: time.Since(start), Bytes: len(pcm)})
	log.Debug().Str("voice_id", voiceID).Int("pcm_bytes", len(pcm)).Msg("Polly synthesis request successful")

	wav := audio.PCM16ToWAV(pcm, audio.PCMFormat{SampleRate: PollySampleRate, Channels: 1, BitsPerSample: 16})
	return &audio.Clip{Data: wav, MIMEType: audio.MIMEWAV}, nil
}

// ListVoices returns the voices Polly offers in the configured region.
func (p *PollyAdapter) ListVoices(ctx context.Context) ([]Voice, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	result, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list Polly voices: %w", err)
	}

	title := cases.Title(language.English)
	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voices = append(voices, Voice{
			ID:          string(v.Id),
			Name:        aws.ToString(v.Name),
			Language:    string(v.LanguageCode),
			Gender:      strings.ToLower(string(v.Gender)),
			Description: fmt.Sprintf("%s voice, %s engine supported", title.String(string(v.Gender)), formatSupportedEngines(v.SupportedEngines)),
		})
	}
	return voices, nil
}

func formatSupportedEngines(engines []types.Engine) string {
	if len(engines) == 0 {
		return "unknown"
	}
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

// isSSML reports whether text is SSML markup.
func isSSML(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<speak") ||
		strings.Contains(trimmed, "<prosody") ||
		strings.Contains(trimmed, "<break") ||
		strings.Contains(trimmed, "<emphasis")
}
