package provider

import (
	"fmt"
	"strings"
)

// FalModel describes one model hosted on fal.ai. Requests are built from
// these fields alone.
type FalModel struct {
	ID       string
	Endpoint string
	// Variants maps a variant name to an alternative endpoint.
	Variants map[string]string

	Dialogue bool
	// PresetVoices models take a named voice in the "voice" field.
	PresetVoices bool
	// Emotions models take the voice's emotion in the "emotion" field.
	// Orpheus and Dia read emotion tags inline instead.
	Emotions   bool
	VoiceClone bool
	// RequiresReferenceAudio models cannot speak without a reference clip.
	RequiresReferenceAudio bool
	// RequiresReferenceText models always get a reference transcript; the
	// line itself stands in when the voice has none.
	RequiresReferenceText bool

	// TextKey also carries the line text when set.
	TextKey string
	// ReferenceAudioKey and ReferenceTextKey name the clone fields.
	ReferenceAudioKey string
	ReferenceTextKey  string
	// Params are sent unchanged with every request.
	Params map[string]any
}

// FalModels is the model table the fal adapter is driven by. The first entry
// is the default.
var FalModels = []FalModel{
	{ID: "playai-tts-v3", Endpoint: "fal-ai/playai/tts/v3", PresetVoices: true, Emotions: true, VoiceClone: true},
	{ID: "playai-tts-dialog", Endpoint: "fal-ai/playai/tts/dialog", Dialogue: true, PresetVoices: true, Emotions: true},
	{ID: "orpheus-tts", Endpoint: "fal-ai/orpheus-tts", PresetVoices: true},
	{ID: "dia-tts", Endpoint: "fal-ai/dia-tts"},
	{
		ID:                    "dia-tts-clone",
		Endpoint:              "fal-ai/dia-tts/voice-clone",
		VoiceClone:            true,
		RequiresReferenceText: true,
		ReferenceAudioKey:     "reference_audio_url",
		ReferenceTextKey:      "reference_text",
	},
	{
		ID:                     "f5-tts",
		Endpoint:               "fal-ai/f5-tts",
		VoiceClone:             true,
		RequiresReferenceAudio: true,
		TextKey:                "gen_text",
		ReferenceAudioKey:      "ref_audio_url",
		ReferenceTextKey:       "ref_text",
		Params:                 map[string]any{"model_type": "F5-TTS", "remove_silence": true},
	},
	{
		ID:           "kokoro-tts",
		Endpoint:     "fal-ai/kokoro/american-english",
		Variants:     map[string]string{"british": "fal-ai/kokoro/british-english"},
		PresetVoices: true,
	},
	{ID: "chatterbox-tts", Endpoint: "fal-ai/chatterbox/text-to-speech"},
	{ID: "chatterboxhd-tts", Endpoint: "resemble-ai/chatterboxhd/text-to-speech"},
}

// FalDefaultModel is used when no model is configured.
const FalDefaultModel = "playai-tts-v3"

// LookupFalModel finds a model by id.
func LookupFalModel(id string) (FalModel, bool) {
	for _, m := range FalModels {
		if m.ID == id {
			return m, true
		}
	}
	return FalModel{}, false
}

// FalModelIDs returns the ids in table order.
func FalModelIDs() []string {
	ids := make([]string, len(FalModels))
	for i, m := range FalModels {
		ids[i] = m.ID
	}
	return ids
}

// endpointFor picks the endpoint for a voice. Kokoro's British voices
// start with "b" (bf_emma, bm_george) and live on their own endpoint.
func (m FalModel) endpointFor(voice VoiceConfig) string {
	if alt, ok := m.Variants["british"]; ok && strings.HasPrefix(voice.ID(), "b") {
		return alt
	}
	return m.Endpoint
}

// validate reports a voice the model cannot speak with. The error wraps
// ErrNoVoice so the line is skipped rather than failing the conversation.
func (m FalModel) validate(voice VoiceConfig) error {
	if m.RequiresReferenceAudio && voice.ReferenceAudio == "" {
		return fmt.Errorf("%w: fal.ai model %s needs reference audio", ErrNoVoice, m.ID)
	}
	return nil
}

// buildRequest returns the submit body for one line of text.
func (m FalModel) buildRequest(text string, voice VoiceConfig) map[string]any {
	req := map[string]any{"text": text}
	if m.TextKey != "" {
		req[m.TextKey] = text
	}
	for k, v := range m.Params {
		req[k] = v
	}
	if m.PresetVoices && voice.Voice != "" {
		req["voice"] = voice.Voice
	}
	if m.Emotions && voice.Emotion != "" {
		req["emotion"] = voice.Emotion
	}
	if m.VoiceClone && m.ReferenceAudioKey != "" && voice.ReferenceAudio != "" {
		req[m.ReferenceAudioKey] = voice.ReferenceAudio
		ref := voice.ReferenceText
		if ref == "" && m.RequiresReferenceText {
			ref = text
		}
		if m.ReferenceTextKey != "" {
			req[m.ReferenceTextKey] = ref
		}
	}
	return req
}

// dialogueText renders utterances in the "Speaker: text" form the PlayAI
// dialog endpoint expects.
func dialogueText(utterances []Utterance) string {
	lines := make([]string, len(utterances))
	for i, u := range utterances {
		lines[i] = fmt.Sprintf("%s: %s", u.Speaker, u.Text)
	}
	return strings.Join(lines, "\n")
}
