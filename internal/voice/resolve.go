package voice

import (
	"github.com/daikw/banter/internal/voice/provider"
	"github.com/rs/zerolog/log"
)

// PersonaVoices carries the voice settings of a persona template, so the
// resolver does not depend on the persona package.
type PersonaVoices struct {
	Template string
	// Profiles maps a speaker to a profile id.
	Profiles map[string]string
	// Voices maps a speaker to a raw vendor voice id.
	Voices map[string]string
	// GeminiVoices overrides Voices for Gemini.
	GeminiVoices map[string]string
}

// Resolver finds voices for speakers. Order:
//  1. the persona's voice_profiles entry for the speaker
//  2. the profile table's template mapping for "template:speaker"
//  3. the first profile in the table that maps the provider
//  4. the persona's gemini_voices (Gemini only), then voices
//
// When nothing matches the adapter applies its own default.
type Resolver struct {
	profiles *ProfileTable
	persona  PersonaVoices
}

// NewResolver creates a resolver. Both arguments may be empty.
func NewResolver(profiles *ProfileTable, persona PersonaVoices) *Resolver {
	if persona.Template == "" {
		persona.Template = "default"
	}
	return &Resolver{profiles: profiles, persona: persona}
}

// LookupVoice implements provider.VoiceLookup.
func (r *Resolver) LookupVoice(providerName, speaker string) (provider.VoiceConfig, bool) {
	if id, ok := r.persona.Profiles[speaker]; ok {
		if p, ok := r.profiles.Get(id); ok {
			if v, ok := p.Mapping(providerName); ok {
				return v, true
			}
		} else {
			log.Warn().Str("profile", id).Str("speaker", speaker).Msg("Persona references unknown voice profile")
		}
	}

	if p, ok := r.profiles.ForTemplate(r.persona.Template, speaker); ok {
		if v, ok := p.Mapping(providerName); ok {
			return v, true
		}
	}

	if p, ok := r.profiles.FirstWith(providerName); ok {
		v, _ := p.Mapping(providerName)
		return v, true
	}

	if providerName == provider.GeminiName {
		if id, ok := r.persona.GeminiVoices[speaker]; ok && id != "" {
			return rawVoice(providerName, id), true
		}
	}
	if id, ok := r.persona.Voices[speaker]; ok && id != "" {
		return rawVoice(providerName, id), true
	}
	return provider.VoiceConfig{}, false
}

// rawVoice puts a bare voice id in the field the provider reads.
func rawVoice(providerName, id string) provider.VoiceConfig {
	switch providerName {
	case provider.ElevenLabsName:
		return provider.VoiceConfig{VoiceID: id}
	case provider.GeminiName:
		return provider.VoiceConfig{VoiceName: id}
	}
	return provider.VoiceConfig{Voice: id}
}
