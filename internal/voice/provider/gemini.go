package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daikw/banter/internal/audio"
	"github.com/rs/zerolog/log"
)

const (
	GeminiName         = "gemini"
	GeminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	GeminiFlashModel   = "gemini-2.5-flash-preview-tts"
	GeminiProModel     = "gemini-2.5-pro-preview-tts"
	GeminiDefaultVoice = "Kore"
)

// GeminiModels lists the TTS-capable Gemini models.
var GeminiModels = []string{GeminiFlashModel, GeminiProModel}

// GeminiConfig configures the Gemini TTS adapter.
type GeminiConfig struct {
	APIKey string
	Model  string
	Voice  string
}

// GeminiAdapter synthesizes a whole dialogue in one generateContent call
// using Gemini's multi-speaker speech config.
type GeminiAdapter struct {
	base
	cfg GeminiConfig
}

// NewGeminiAdapter creates the adapter.
func NewGeminiAdapter(cfg GeminiConfig, opts ...Option) *GeminiAdapter {
	cfg.Model = geminiModel(cfg.Model)
	if cfg.Voice == "" {
		cfg.Voice = GeminiDefaultVoice
	}
	return &GeminiAdapter{
		base: newBase(GeminiName, cfg.Model, GeminiBaseURL, opts),
		cfg:  cfg,
	}
}

// geminiModel maps loose model names onto the two TTS models: anything
// mentioning "pro" is the pro model, everything else is flash.
func geminiModel(model string) string {
	if strings.Contains(strings.ToLower(model), "pro") {
		return GeminiProModel
	}
	return GeminiFlashModel
}

func (p *GeminiAdapter) Name() string {
	return GeminiName
}

func (p *GeminiAdapter) Model() string {
	return p.cfg.Model
}

func (p *GeminiAdapter) IsConfigured() bool {
	return p.cfg.APIKey != ""
}

// ResolveVoice falls back to the configured voice, then Kore.
func (p *GeminiAdapter) ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error) {
	return resolveVoice(lookup, GeminiName, speaker, VoiceConfig{VoiceName: p.cfg.Voice})
}

func (p *GeminiAdapter) WithModel(model string) (Adapter, error) {
	cfg := p.cfg
	cfg.Model = model
	return NewGeminiAdapter(cfg, p.options()...), nil
}

// NativeDialogue is always true: Gemini takes the dialogue as one prompt.
func (p *GeminiAdapter) NativeDialogue() bool {
	return true
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiSpeakerVoiceConfig struct {
	Speaker     string            `json:"speaker"`
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiMultiSpeakerConfig struct {
	SpeakerVoiceConfigs []geminiSpeakerVoiceConfig `json:"speakerVoiceConfigs"`
}

type geminiSpeechConfig struct {
	VoiceConfig             *geminiVoiceConfig        `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *geminiMultiSpeakerConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiRequest struct {
	Model            string                 `json:"model"`
	Contents         []geminiContent        `json:"contents"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

// geminiResponse is decoded once here; only the inline audio is kept.
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

var geminiSafety = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

// SynthesizeUtterance renders a single line with one prebuilt voice.
func (p *GeminiAdapter) SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error) {
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
	return p.generate(ctx, text, geminiSpeechConfig{
		VoiceConfig: &geminiVoiceConfig{PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: name}},
	})
}

// SynthesizeDialogue builds the annotated prompt and the speech config for
// the distinct speakers, in order of first appearance.
func (p *GeminiAdapter) SynthesizeDialogue(ctx context.Context, lookup VoiceLookup, utterances []Utterance) (*audio.Clip, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if len(utterances) == 0 {
		return nil, nil
	}

	prompt, speakers, voices := p.BuildPrompt(lookup, utterances)

	var speech geminiSpeechConfig
	if len(speakers) > 1 {
		cfgs := make([]geminiSpeakerVoiceConfig, 0, len(speakers))
		for _, s := range speakers {
			cfgs = append(cfgs, geminiSpeakerVoiceConfig{
				Speaker:     s,
				VoiceConfig: geminiVoiceConfig{PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voices[s]}},
			})
		}
		speech.MultiSpeakerVoiceConfig = &geminiMultiSpeakerConfig{SpeakerVoiceConfigs: cfgs}
	} else {
		speech.VoiceConfig = &geminiVoiceConfig{PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voices[speakers[0]]}}
	}

	return p.generate(ctx, prompt, speech)
}

// BuildPrompt returns the prompt text, the distinct speakers and the voice
// chosen for each of them.
func (p *GeminiAdapter) BuildPrompt(lookup VoiceLookup, utterances []Utterance) (string, []string, map[string]string) {
	var speakers []string
	voices := make(map[string]string)
	explicit := false
	for _, u := range utterances {
		if _, seen := voices[u.Speaker]; seen {
			continue
		}
		speakers = append(speakers, u.Speaker)
		voice, _ := p.ResolveVoice(lookup, u.Speaker)
		voices[u.Speaker] = voice.ID()
		if lookup != nil {
			if _, ok := lookup.LookupVoice(GeminiName, u.Speaker); ok {
				explicit = true
			}
		}
	}

	var b strings.Builder
	b.WriteString("You are generating speech for a multi-character dialogue. ")
	if explicit {
		b.WriteString("Voice assignments:\n")
		for _, s := range speakers {
			fmt.Fprintf(&b, "- %s: Use %s voice characteristics\n", s, voices[s])
		}
		b.WriteString("\n")
	}
	b.WriteString("Generate natural speech for the following dialogue with distinct voices for each speaker:\n\n")
	for _, u := range utterances {
		fmt.Fprintf(&b, "%s: %s\n", u.Speaker, u.Text)
	}
	return b.String(), speakers, voices
}

func (p *GeminiAdapter) generate(ctx context.Context, prompt string, speech geminiSpeechConfig) (*audio.Clip, error) {
	resp, err := p.do(ctx, request{
		method: "POST",
		url:    fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.cfg.Model),
		header: map[string]string{"x-goog-api-key": p.cfg.APIKey},
		body: geminiRequest{
			Model:          p.cfg.Model,
			Contents:       []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
			SafetySettings: geminiSafety,
			GenerationConfig: geminiGenerationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig:       speech,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var parsed geminiResponse
	if err := resp.decodeJSON(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Candidates) == 0 {
		return nil, errors.New("no candidates in Gemini TTS response")
	}
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		pcm, err := audio.DecodeBase64(part.InlineData.Data)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("pcm_bytes", len(pcm)).Str("model", p.cfg.Model).Msg("Received Gemini audio")
		return &audio.Clip{Data: audio.PCM16ToWAV(pcm, audio.DefaultPCMFormat), MIMEType: audio.MIMEWAV}, nil
	}
	return nil, errors.New("no audio data found in Gemini TTS response")
}
