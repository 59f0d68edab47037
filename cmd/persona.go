package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/daikw/banter/internal/persona"
	"github.com/daikw/banter/internal/voice"
)

func personaManager(c *cli.Command) (*persona.Manager, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return persona.NewManager(cfg.PersonasDir)
}

func handleListPersonas(ctx context.Context, c *cli.Command) error {
	manager, err := personaManager(c)
	if err != nil {
		return err
	}

	personas, err := manager.ListPersonas()
	if err != nil {
		return err
	}

	fmt.Println("Available personas:")
	for _, name := range personas {
		line := "  - " + name
		if t, err := manager.Load(name); err == nil && t.Summary != "" {
			line += color.New(color.Faint).Sprintf(" (%s)", t.Summary)
		}
		fmt.Println(line)
	}
	fmt.Printf("\nCustom personas live in %s\n", manager.Dir())
	return nil
}

func handleShowPersona(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("persona name is required")
	}

	manager, err := personaManager(c)
	if err != nil {
		return err
	}
	t, err := manager.Load(name)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("%s\n", t.Name)
	if t.Path != "" {
		fmt.Printf("Path: %s\n", t.Path)
	} else {
		fmt.Println("Path: (built in)")
	}
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	if len(t.Speakers) > 0 {
		fmt.Printf("\nSpeakers: %s\n", strings.Join(t.Speakers, ", "))
	}
	printVoiceMap("Voice profiles", t.VoiceProfiles)
	printVoiceMap("Voices", t.Voices)
	printVoiceMap("Gemini voices", t.GeminiVoices)

	bold.Println("\nSystem prompt:")
	fmt.Println(t.Prompt())
	return nil
}

func printVoiceMap(label string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", label)
	speakers := make([]string, 0, len(m))
	for s := range m {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)
	for _, s := range speakers {
		fmt.Printf("  %s: %s\n", s, m[s])
	}
}

func handleCreatePersona(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("persona name is required")
	}

	manager, err := personaManager(c)
	if err != nil {
		return err
	}
	path, err := manager.CreatePersona(name)
	if err != nil {
		return err
	}

	fmt.Printf("Created new persona: %s\n", name)
	fmt.Printf("Edit it at: %s\n", path)
	return nil
}

func handleProfiles(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	table, err := voice.LoadProfiles(cfg.VoiceProfilesPath)
	if err != nil {
		return err
	}

	for _, p := range table.Profiles {
		color.New(color.Bold).Printf("%s", p.ID)
		fmt.Printf(" - %s\n", p.Name)
		if summary := p.Summary(); summary != "" {
			fmt.Printf("    %s\n", summary)
		}
		if p.Description != "" {
			fmt.Printf("    %s\n", p.Description)
		}
		providers := make([]string, 0, len(p.ProviderMappings))
		for name := range p.ProviderMappings {
			if _, ok := p.Mapping(name); ok {
				providers = append(providers, name)
			}
		}
		sort.Strings(providers)
		fmt.Fprintf(os.Stdout, "    Providers: %s\n", strings.Join(providers, ", "))
	}
	return nil
}
