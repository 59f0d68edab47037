package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewManager(t *testing.T) {
	manager, err := NewManager("")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if !strings.HasSuffix(manager.Dir(), filepath.Join(".banter", "personas")) {
		t.Errorf("Invalid personas directory: %s", manager.Dir())
	}
}

func writePersona(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestListPersonas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "personas")
	manager, _ := NewManager(dir)

	t.Run("MissingDirectory", func(t *testing.T) {
		personas, err := manager.ListPersonas()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(personas) != 1 || personas[0] != DefaultPersona {
			t.Errorf("Expected only the built-in persona, got %v", personas)
		}
	})

	t.Run("WithPersonas", func(t *testing.T) {
		writePersona(t, dir, "pirates.yaml", "name: Pirates\nsystem_prompt: Arr.\n")
		writePersona(t, dir, "radio.md", "---\nname: Radio\n---\n## System Prompt\nOn air.\n")
		writePersona(t, dir, "notes.txt", "ignore")

		personas, err := manager.ListPersonas()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		expected := []string{"default", "pirates", "radio"}
		if strings.Join(personas, ",") != strings.Join(expected, ",") {
			t.Errorf("Expected %v, got %v", expected, personas)
		}
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	manager, _ := NewManager(dir)

	t.Run("BuiltIn", func(t *testing.T) {
		tmpl, err := manager.Load(DefaultPersona)
		if err != nil {
			t.Fatalf("Failed to load built-in persona: %v", err)
		}
		if tmpl.ID != DefaultPersona || tmpl.Path != "" {
			t.Errorf("Unexpected built-in template: id=%s path=%s", tmpl.ID, tmpl.Path)
		}
		if len(tmpl.Speakers) != 2 {
			t.Errorf("Expected two speakers, got %v", tmpl.Speakers)
		}
		if tmpl.VoiceMaps().Profiles["Alex"] != "young_male_casual" {
			t.Errorf("Unexpected voice profiles: %v", tmpl.VoiceProfiles)
		}
	})

	t.Run("FileShadowsBuiltIn", func(t *testing.T) {
		writePersona(t, dir, "default.yml", "name: Mine\nsystem_prompt: Custom.\n")
		tmpl, err := manager.Load(DefaultPersona)
		if err != nil {
			t.Fatalf("Failed to load persona: %v", err)
		}
		if tmpl.Name != "Mine" || tmpl.Path != filepath.Join(dir, "default.yml") {
			t.Errorf("Expected file template, got %s from %s", tmpl.Name, tmpl.Path)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		writePersona(t, dir, "broken.md", "no frontmatter")
		if _, err := manager.Load("broken"); err == nil {
			t.Error("Expected error for template without frontmatter")
		}
		if _, err := manager.Load("missing"); err == nil {
			t.Error("Expected error for missing persona")
		}
		if _, err := manager.Load("../etc/passwd"); err == nil {
			t.Error("Expected error for path traversal")
		}
	})
}

func TestCreatePersona(t *testing.T) {
	manager, _ := NewManager(filepath.Join(t.TempDir(), "personas"))

	path, err := manager.CreatePersona("newpersona")
	if err != nil {
		t.Fatalf("Failed to create persona: %v", err)
	}
	if !manager.PersonaExists("newpersona") {
		t.Error("Persona file was not created")
	}

	tmpl, err := manager.Load("newpersona")
	if err != nil {
		t.Fatalf("Created persona does not parse: %v", err)
	}
	if tmpl.Name != "newpersona" || tmpl.Path != path {
		t.Errorf("Unexpected template: %+v", tmpl)
	}

	if _, err := manager.CreatePersona("newpersona"); err == nil {
		t.Error("Expected error when creating existing persona")
	}
}
