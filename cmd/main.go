package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	version  = "dev"
	revision = "none"
)

func main() {
	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:  "banter",
		Usage: "Turn persona dialogues into multi-voice audio",
		Description: `banter writes short dialogues with a chat model and voices them with
ElevenLabs, Gemini, fal.ai, OpenAI, Amazon Polly or Google Cloud TTS.
Every line gets its own clip and the whole conversation one track.`,
		Version: fmt.Sprintf("%s (rev: %s)", version, revision),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Enable verbose logging",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a config file (default: .banter/config.json over ~/.banter/config.json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "speak",
				Usage:     "Synthesize a dialogue JSON file (or stdin) into audio",
				ArgsUsage: "[dialogue.json]",
				Action:    handleSpeak,
				Flags:     audioFlags(),
			},
			{
				Name:      "chat",
				Usage:     "Write a dialogue with the chat model, then voice it",
				ArgsUsage: "<prompt>",
				Action:    handleChat,
				Flags: append(audioFlags(),
					&cli.StringFlag{
						Name:  "text-provider",
						Usage: "Chat backend: openai, anthropic, google, xai, deepseek",
					},
					&cli.StringFlag{
						Name:  "text-model",
						Usage: "Chat model (default: the backend's default)",
					},
				),
			},
			{
				Name:      "voice-test",
				Aliases:   []string{"vt"},
				Usage:     "Run one prompt against several TTS models side by side",
				ArgsUsage: "<prompt>",
				Action:    handleVoiceTest,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "model",
						Aliases: []string{"m"},
						Usage:   "Model id to test (repeatable, default: first model of each family)",
					},
					&cli.StringFlag{
						Name:    "persona",
						Aliases: []string{"p"},
						Usage:   "Persona template",
						Value:   "default",
					},
					&cli.StringFlag{
						Name:  "text-provider",
						Usage: "Chat backend used to write the dialogues",
					},
					&cli.StringFlag{
						Name:  "export",
						Usage: "Write the session as JSON to this file",
					},
					&cli.StringFlag{
						Name:  "save-dir",
						Usage: "Save each model's audio into this directory",
					},
					&cli.BoolFlag{
						Name:  "list",
						Usage: "List the available model ids and exit",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Action: handleServe,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
						Value: "127.0.0.1:8420",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the TTS tools over MCP on stdio",
				Action: handleMCP,
			},
			{
				Name:   "providers",
				Usage:  "List TTS providers and whether they are configured",
				Action: handleProviders,
			},
			{
				Name:      "voices",
				Usage:     "List the voices of a provider, or the voice profiles",
				ArgsUsage: "[provider]",
				Action:    handleVoices,
			},
			{
				Name:   "profiles",
				Usage:  "List the voice profiles",
				Action: handleProfiles,
			},
			{
				Name:    "personas",
				Aliases: []string{"persona"},
				Usage:   "Manage persona templates",
				Action:  handleListPersonas,
				Commands: []*cli.Command{
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List available personas",
						Action:  handleListPersonas,
					},
					{
						Name:      "show",
						Usage:     "Show a persona template",
						ArgsUsage: "<persona>",
						Action:    handleShowPersona,
					},
					{
						Name:      "create",
						Usage:     "Create a persona template from the starter",
						ArgsUsage: "<name>",
						Action:    handleCreatePersona,
					},
				},
			},
			{
				Name:  "config",
				Usage: "Inspect the configuration",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the effective configuration with secrets masked",
						Action: handleConfigShow,
					},
					{
						Name:   "example",
						Usage:  "Print an example configuration",
						Action: handleConfigExample,
					},
					{
						Name:   "init",
						Usage:  "Write the example configuration",
						Action: handleConfigInit,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:    "global",
								Aliases: []string{"g"},
								Usage:   "Write ~/.banter/config.json instead of the project file",
							},
						},
					},
					{
						Name:   "validate",
						Usage:  "Check the configuration for problems",
						Action: handleConfigValidate,
					},
				},
			},
		},
		Before: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

// audioFlags are shared by the commands that produce audio.
func audioFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "provider",
			Usage: "TTS provider: elevenlabs, gemini, fal, openai, polly, gcp (default: from config)",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Provider model (e.g. eleven_v3, gemini-2.5-pro-preview-tts, dia-tts)",
		},
		&cli.StringFlag{
			Name:    "persona",
			Aliases: []string{"p"},
			Usage:   "Persona template whose voices are used",
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Save the conversation track to this file instead of playing it",
		},
		&cli.BoolFlag{
			Name:  "lines",
			Usage: "Also save each line next to --output",
		},
		&cli.BoolFlag{
			Name:  "no-play",
			Usage: "Do not play the result",
		},
	}
}
