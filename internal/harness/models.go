package harness

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daikw/banter/internal/voice/provider"
)

// Provider families share a concurrency ceiling.
const (
	FamilyElevenLabs = "elevenlabs"
	FamilyGemini     = "gemini"
	FamilyFal        = "fal"
	FamilyDefault    = "default"
)

// DefaultLimits are the per-family ceilings on in-flight model runs.
var DefaultLimits = map[string]int64{
	FamilyElevenLabs: 3,
	FamilyGemini:     5,
	FamilyFal:        3,
	FamilyDefault:    2,
}

// Model is one TTS model the harness can exercise.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	// Model is passed to the registry to re-target the provider.
	Model string `json:"model"`
	// TTS names the model for the dialogue writer's guidance.
	TTS string `json:"tts"`
	// Selected marks the default selection.
	Selected bool `json:"selected"`
}

// Family returns the concurrency family of the model.
func (m Model) Family() string {
	switch m.Provider {
	case provider.ElevenLabsName:
		return FamilyElevenLabs
	case provider.GeminiName:
		return FamilyGemini
	case provider.FalName:
		return FamilyFal
	}
	return FamilyDefault
}

// Models lists every model, with the first of each family selected.
func Models() []Model {
	title := cases.Title(language.English)
	var models []Model

	for i, m := range provider.ElevenLabsModels {
		models = append(models, Model{
			ID:       "elevenlabs_" + m,
			Name:     "ElevenLabs - " + title.String(strings.ReplaceAll(m, "_", " ")),
			Provider: provider.ElevenLabsName,
			Model:    m,
			TTS:      provider.ElevenLabsName,
			Selected: i == 0,
		})
	}

	models = append(models,
		Model{ID: "gemini_flash", Name: "Gemini 2.5 Flash TTS", Provider: provider.GeminiName, Model: provider.GeminiFlashModel, TTS: provider.GeminiName, Selected: true},
		Model{ID: "gemini_pro", Name: "Gemini 2.5 Pro TTS", Provider: provider.GeminiName, Model: provider.GeminiProModel, TTS: provider.GeminiName},
	)

	for i, m := range provider.FalModels {
		models = append(models, Model{
			ID:       m.ID,
			Name:     falDisplayName(m.ID),
			Provider: provider.FalName,
			Model:    m.ID,
			TTS:      m.ID,
			Selected: i == 0,
		})
	}

	models = append(models, Model{
		ID:       "openai_" + provider.OpenAIDefaultModel,
		Name:     "OpenAI TTS-1",
		Provider: provider.OpenAIName,
		Model:    provider.OpenAIDefaultModel,
		TTS:      provider.OpenAIName,
		Selected: true,
	})
	return models
}

func falDisplayName(id string) string {
	name := strings.TrimSuffix(id, "-tts")
	name = strings.ReplaceAll(name, "-", " ")
	return cases.Title(language.English).String(name) + " (fal.ai)"
}

// DefaultSelection returns the ids of the models selected by default.
func DefaultSelection() []string {
	var ids []string
	for _, m := range Models() {
		if m.Selected {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// LookupModels returns the models with the given ids, in list order. Unknown
// ids are returned separately.
func LookupModels(ids []string) ([]Model, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var found []Model
	for _, m := range Models() {
		if want[m.ID] {
			found = append(found, m)
			delete(want, m.ID)
		}
	}
	var unknown []string
	for _, id := range ids {
		if want[id] {
			unknown = append(unknown, id)
		}
	}
	return found, unknown
}
