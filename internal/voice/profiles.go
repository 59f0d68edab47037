package voice

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/daikw/banter/internal/voice/provider"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed profiles.json
var defaultProfiles []byte

// Profile is a provider-independent voice with one mapping per provider or
// fal.ai model id.
type Profile struct {
	ID               string                          `json:"id"`
	Name             string                          `json:"name"`
	Description      string                          `json:"description"`
	Characteristics  map[string]string               `json:"characteristics"`
	ProviderMappings map[string]provider.VoiceConfig `json:"providerMappings"`
}

// Mapping returns the voice of the profile on a provider.
func (p *Profile) Mapping(providerName string) (provider.VoiceConfig, bool) {
	v, ok := p.ProviderMappings[providerName]
	return v, ok && !v.IsZero()
}

// Summary renders the characteristics as "Gender: Male, Age: Young-Adult".
func (p *Profile) Summary() string {
	title := cases.Title(language.English)
	keys := make([]string, 0, len(p.Characteristics))
	for k := range p.Characteristics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", title.String(k), title.String(p.Characteristics[k])))
	}
	return strings.Join(parts, ", ")
}

// ProfileTable is the loaded profile document. It is read-only after load.
type ProfileTable struct {
	Profiles []Profile `json:"profiles"`
	// TemplateMappings maps "template:speaker" to a profile id.
	TemplateMappings map[string]string `json:"templateMappings"`

	byID map[string]*Profile
}

// LoadProfiles reads the profile table at path, or the built-in table when
// path is empty.
func LoadProfiles(path string) (*ProfileTable, error) {
	data := defaultProfiles
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read voice profiles: %w", err)
		}
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes a profile document.
func ParseProfiles(data []byte) (*ProfileTable, error) {
	var t ProfileTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse voice profiles: %w", err)
	}
	t.byID = make(map[string]*Profile, len(t.Profiles))
	for i := range t.Profiles {
		p := &t.Profiles[i]
		if p.ID == "" {
			return nil, fmt.Errorf("voice profile %d has no id", i)
		}
		t.byID[p.ID] = p
	}
	if t.TemplateMappings == nil {
		t.TemplateMappings = map[string]string{}
	}
	return &t, nil
}

// Get returns a profile by id.
func (t *ProfileTable) Get(id string) (*Profile, bool) {
	if t == nil {
		return nil, false
	}
	p, ok := t.byID[id]
	return p, ok
}

// ForTemplate returns the profile mapped to a speaker of a template.
func (t *ProfileTable) ForTemplate(template, speaker string) (*Profile, bool) {
	if t == nil {
		return nil, false
	}
	id, ok := t.TemplateMappings[template+":"+speaker]
	if !ok {
		return nil, false
	}
	return t.Get(id)
}

// FirstWith returns the first profile, in table order, that maps the
// provider.
func (t *ProfileTable) FirstWith(providerName string) (*Profile, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Profiles {
		if _, ok := t.Profiles[i].Mapping(providerName); ok {
			return &t.Profiles[i], true
		}
	}
	return nil, false
}
