package persona

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daikw/banter/internal/voice"
)

// Template is a persona: the system prompt the dialogue LLM runs under and
// the voices its speakers use.
type Template struct {
	Name         string `yaml:"name"`
	Summary      string `yaml:"summary,omitempty"`
	Description  string `yaml:"description,omitempty"`
	SystemPrompt Lines  `yaml:"system_prompt"`
	// Speakers lists the speaker names in the order they usually appear.
	Speakers []string `yaml:"speakers,omitempty"`

	Voices        map[string]string `yaml:"voices,omitempty"`
	GeminiVoices  map[string]string `yaml:"gemini_voices,omitempty"`
	VoiceProfiles map[string]string `yaml:"voice_profiles,omitempty"`

	// ID is the file name without extension.
	ID   string `yaml:"-"`
	Path string `yaml:"-"`
}

// Lines is a prompt written either as one string or as a list of lines.
type Lines []string

func (l *Lines) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = Lines{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	return fmt.Errorf("line %d: system_prompt must be a string or a list of strings", node.Line)
}

// String joins the lines with newlines.
func (l Lines) String() string {
	return strings.Join(l, "\n")
}

// Prompt returns the system prompt as a single string.
func (t *Template) Prompt() string {
	return strings.TrimSpace(t.SystemPrompt.String())
}

// VoiceMaps returns the voice settings used for resolution.
func (t *Template) VoiceMaps() voice.PersonaVoices {
	if t == nil {
		return voice.PersonaVoices{}
	}
	return voice.PersonaVoices{
		Template:     t.ID,
		Profiles:     t.VoiceProfiles,
		Voices:       t.Voices,
		GeminiVoices: t.GeminiVoices,
	}
}
