package persona

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultPersona is the built-in template used when none is chosen.
	DefaultPersona = "default"

	DirPermission  = 0755
	FilePermission = 0644
)

//go:embed templates/*.yaml
var builtin embed.FS

// Manager finds persona templates in a directory. Files may be YAML
// (.yaml, .yml) or Markdown with YAML frontmatter (.md). The built-in
// templates are always available and are shadowed by files of the same
// name.
type Manager struct {
	personasDir string
}

// NewManager creates a manager for dir, or ~/.banter/personas when dir is
// empty.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".banter", "personas")
	}
	return &Manager{personasDir: dir}, nil
}

// Dir returns the personas directory.
func (m *Manager) Dir() string {
	return m.personasDir
}

var extensions = []string{".yaml", ".yml", ".md"}

// ListPersonas returns the ids of every available template, sorted.
func (m *Manager) ListPersonas() ([]string, error) {
	seen := make(map[string]bool)

	entries, err := builtin.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in templates: %w", err)
	}
	for _, e := range entries {
		seen[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
	}

	entries, err = os.ReadDir(m.personasDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read personas directory: %w", err)
	}
	if os.IsNotExist(err) {
		log.Debug().Str("dir", m.personasDir).Msg("Personas directory does not exist")
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || !isTemplateExt(ext) {
			continue
		}
		seen[strings.TrimSuffix(e.Name(), ext)] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isTemplateExt(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// findPersona returns the path of the template file for name, or "".
func (m *Manager) findPersona(name string) string {
	for _, ext := range extensions {
		path := filepath.Join(m.personasDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// PersonaExists reports whether a template named name can be loaded.
func (m *Manager) PersonaExists(name string) bool {
	if m.findPersona(name) != "" {
		return true
	}
	_, err := builtin.ReadFile("templates/" + name + ".yaml")
	return err == nil
}

// Load reads and parses the template named name.
func (m *Manager) Load(name string) (*Template, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var (
		t   *Template
		err error
	)
	if path := m.findPersona(name); path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read persona file: %w", readErr)
		}
		if filepath.Ext(path) == ".md" {
			t, err = ParseMarkdown(data)
		} else {
			t, err = ParseYAML(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		t.Path = path
	} else {
		data, readErr := builtin.ReadFile("templates/" + name + ".yaml")
		if readErr != nil {
			return nil, fmt.Errorf("persona '%s' does not exist", name)
		}
		if t, err = ParseYAML(data); err != nil {
			return nil, err
		}
	}

	t.ID = name
	log.Debug().Str("persona", name).Str("path", t.Path).Msg("Loaded persona template")
	return t, nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid persona name: %q", name)
	}
	return nil
}

// CreatePersona writes a starter YAML template.
func (m *Manager) CreatePersona(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if m.findPersona(name) != "" {
		return "", fmt.Errorf("persona '%s' already exists", name)
	}
	if err := os.MkdirAll(m.personasDir, DirPermission); err != nil {
		return "", fmt.Errorf("failed to create personas directory: %w", err)
	}

	template := fmt.Sprintf(`name: %s
summary: A conversation between two speakers
system_prompt:
  - You write short conversations between Host and Guest.
  - Keep each line to one or two sentences.
speakers:
  - Host
  - Guest
voice_profiles:
  Host: mature_female_professional
  Guest: young_male_casual
# voices and gemini_voices map speakers straight to vendor voice ids:
# voices:
#   Host: 21m00Tcm4TlvDq8ikWAM
# gemini_voices:
#   Host: Kore
`, name)

	path := filepath.Join(m.personasDir, name+".yaml")
	if err := os.WriteFile(path, []byte(template), FilePermission); err != nil {
		return "", fmt.Errorf("failed to create persona file: %w", err)
	}

	log.Info().Str("persona", name).Str("path", path).Msg("Created new persona")
	return path, nil
}
