package provider

import (
	"context"

	"github.com/daikw/banter/internal/audio"
)

// Utterance is one speaker turn of a dialogue.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// VoiceConfig is the provider-specific voice selection for one speaker.
// Which field matters depends on the provider: ElevenLabs reads VoiceID,
// Gemini reads VoiceName, everything else reads Voice.
type VoiceConfig struct {
	VoiceID        string `json:"voiceId,omitempty"`
	VoiceName      string `json:"voiceName,omitempty"`
	Voice          string `json:"voice,omitempty"`
	ReferenceAudio string `json:"referenceAudio,omitempty"`
	ReferenceText  string `json:"referenceText,omitempty"`
	Emotion        string `json:"emotion,omitempty"`
}

// ID returns the first voice identifier that is set.
func (v VoiceConfig) ID() string {
	switch {
	case v.VoiceID != "":
		return v.VoiceID
	case v.VoiceName != "":
		return v.VoiceName
	}
	return v.Voice
}

// IsZero reports whether nothing was resolved.
func (v VoiceConfig) IsZero() bool {
	return v == VoiceConfig{}
}

// VoiceLookup finds the configured voice for a speaker on a provider.
type VoiceLookup interface {
	LookupVoice(provider, speaker string) (VoiceConfig, bool)
}

// Adapter is the uniform contract every TTS vendor is wrapped in.
type Adapter interface {
	// Name returns the registry name of the adapter
	Name() string

	// IsConfigured reports whether the required credential is present
	IsConfigured() bool

	// ResolveVoice returns the voice for speaker, or an error wrapping
	// ErrNoVoice when the speaker cannot be synthesized
	ResolveVoice(lookup VoiceLookup, speaker string) (VoiceConfig, error)

	// SynthesizeUtterance fetches audio for a single line
	SynthesizeUtterance(ctx context.Context, text string, voice VoiceConfig) (*audio.Clip, error)
}

// DialogueAdapter is implemented by adapters whose vendor can synthesize a
// whole ordered dialogue in one call.
type DialogueAdapter interface {
	Adapter

	// NativeDialogue reports whether the dialogue path is active for the
	// current configuration
	NativeDialogue() bool

	SynthesizeDialogue(ctx context.Context, lookup VoiceLookup, utterances []Utterance) (*audio.Clip, error)
}

// DialogueFallback lets a dialogue adapter ask for per-utterance synthesis
// when its dialogue call fails.
type DialogueFallback interface {
	FallbackOnDialogueError() bool
}

// ModelSelector is implemented by adapters that can be re-targeted at another
// model of the same vendor.
type ModelSelector interface {
	WithModel(model string) (Adapter, error)
}

// VoiceLister is implemented by adapters that can enumerate vendor voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Voice represents a voice option
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// resolveVoice applies the shared lookup chain and falls back to def.
func resolveVoice(lookup VoiceLookup, name, speaker string, def VoiceConfig) (VoiceConfig, error) {
	if lookup != nil {
		if v, ok := lookup.LookupVoice(name, speaker); ok && v.ID() != "" {
			return v, nil
		}
	}
	if def.ID() != "" {
		return def, nil
	}
	return VoiceConfig{}, &VoiceResolutionError{Provider: name, Speaker: speaker}
}
