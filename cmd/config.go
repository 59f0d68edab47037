package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/daikw/banter/internal/voice"
	"github.com/daikw/banter/internal/voice/provider"
)

func handleConfigShow(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(cfg.MaskSecrets(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}
	fmt.Println("Effective configuration (secrets masked):")
	fmt.Println(string(output))
	return nil
}

func handleConfigExample(ctx context.Context, c *cli.Command) error {
	fmt.Println(voice.GenerateExampleConfig())
	return nil
}

func handleConfigInit(ctx context.Context, c *cli.Command) error {
	configPath := filepath.Join(voice.ConfigDirName, voice.ConfigFileName)
	if c.Bool("global") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, configPath)
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// secrets may end up in the file
	if err := os.WriteFile(configPath, []byte(voice.GenerateExampleConfig()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("✅ Created configuration: %s\n", configPath)
	fmt.Println("Use ${ENV_VAR} syntax for sensitive values like API keys.")
	return nil
}

func handleConfigValidate(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	problems := cfg.Validate()
	if len(problems) == 0 {
		fmt.Println(color.GreenString("✅ Configuration is valid."))
		return nil
	}

	fmt.Println(color.RedString("❌ Configuration has errors:"))
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
	return fmt.Errorf("configuration validation failed")
}

func handleProviders(ctx context.Context, c *cli.Command) error {
	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tCONFIGURED\tDIALOGUE")
	for _, st := range s.registry.Statuses() {
		name := st.Name
		if name == s.cfg.DefaultProvider {
			name += " (default)"
		}
		configured := color.RedString("no")
		if st.Configured {
			configured = color.GreenString("yes")
		}
		dialogue := ""
		if st.Dialogue {
			dialogue = "native"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, st.Model, configured, dialogue)
	}
	return tw.Flush()
}

func handleVoices(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return handleProfiles(ctx, c)
	}

	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	adapter, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	lister, ok := adapter.(provider.VoiceLister)
	if !ok {
		return fmt.Errorf("provider %s cannot list voices; see 'banter profiles'", name)
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}
	if len(voices) == 0 {
		fmt.Println("No voices available")
		return nil
	}

	fmt.Printf("Available voices for provider '%s':\n", name)
	for _, v := range voices {
		fmt.Printf("  - %s (%s) - %s\n", v.ID, v.Language, v.Description)
	}
	return nil
}
