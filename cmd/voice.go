package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/banter/internal/audio"
	"github.com/daikw/banter/internal/generate"
	"github.com/daikw/banter/internal/llm"
	"github.com/daikw/banter/internal/voice/provider"
)

func handleSpeak(ctx context.Context, c *cli.Command) error {
	dialogue, err := readDialogue(c.Args().First(), os.Stdin)
	if err != nil {
		return err
	}

	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	return synthesizeAndDeliver(ctx, c, s, dialogue.Dialogue)
}

func handleChat(ctx context.Context, c *cli.Command) error {
	prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if prompt == "" {
		return fmt.Errorf("prompt is required")
	}

	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	_, tmpl, err := s.voicesFor(c.String("persona"))
	if err != nil {
		return err
	}
	client, err := s.textClient(c.String("text-provider"), c.String("text-model"))
	if err != nil {
		return err
	}

	providerName := s.cfg.EffectiveProvider(c.String("provider"))
	tts := providerName
	if m := c.String("model"); m != "" {
		tts = m
	}

	fmt.Fprintf(os.Stderr, "✍️  Writing dialogue with %s (%s)...\n", client.Provider(), client.Model())
	dialogue, err := client.GenerateDialogue(ctx, llm.Request{Persona: tmpl.Prompt(), TTS: tts, Input: prompt})
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString(generate.UserMessage(err)))
		return fmt.Errorf("failed to generate dialogue: %w", err)
	}
	return synthesizeAndDeliver(ctx, c, s, dialogue.Dialogue)
}

// readDialogue parses a dialogue document from path, or from stdin when
// path is empty or "-".
func readDialogue(path string, stdin io.Reader) (*llm.Dialogue, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		log.Debug().Msg("Reading dialogue from stdin")
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dialogue: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("no dialogue provided")
	}
	return llm.ParseDialogue(string(data))
}

func synthesizeAndDeliver(ctx context.Context, c *cli.Command, s *services, lines []provider.Utterance) error {
	voices, _, err := s.voicesFor(c.String("persona"))
	if err != nil {
		return err
	}
	providerName := s.cfg.EffectiveProvider(c.String("provider"))

	res, err := s.orchestrator.Generate(ctx, generate.Request{
		Utterances: lines,
		Provider:   providerName,
		Model:      c.String("model"),
		Voices:     voices,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString(generate.UserMessage(err)))
		return fmt.Errorf("failed to synthesize dialogue: %w", err)
	}

	if res.Conversation == nil {
		color.New(color.FgYellow).Fprintf(os.Stderr, "⚠️  %s is not configured, showing text only\n", providerName)
		printUtterances(os.Stdout, lines)
		return nil
	}
	printMessages(os.Stdout, res.Messages())
	for _, i := range res.Skipped {
		log.Warn().Int("line", i+1).Str("speaker", lines[i].Speaker).Msg("Line has no audio")
	}
	if res.ConversationHandle == "" {
		return fmt.Errorf("no audio generated by %s", providerName)
	}

	if out := c.String("output"); out != "" {
		return saveResult(s, res, out, c.Bool("lines"))
	}
	if c.Bool("no-play") {
		return nil
	}

	player := audio.NewPlaybackManager(&audio.ExecPlayer{Command: s.cfg.Playback.Player}, s.blobs)
	if err := player.Play(ctx, audio.ConversationUnit, audio.Source{Handle: res.ConversationHandle}); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "🔊 Playing conversation (Ctrl-C to stop)")
	if err := player.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var (
	leftSpeaker  = color.New(color.FgCyan, color.Bold).SprintFunc()
	rightSpeaker = color.New(color.FgMagenta, color.Bold).SprintFunc()
	muted        = color.New(color.Faint).SprintFunc()
)

func printMessages(w io.Writer, messages []generate.Message) {
	for _, m := range messages {
		name, indent := leftSpeaker(m.Speaker), ""
		if m.Side == generate.SideRight {
			name, indent = rightSpeaker(m.Speaker), "    "
		}
		suffix := ""
		if m.AudioHandle == "" {
			suffix = " " + muted("(no audio)")
		}
		fmt.Fprintf(w, "%s%s: %s%s\n", indent, name, m.Text, suffix)
	}
}

func printUtterances(w io.Writer, lines []provider.Utterance) {
	for i, u := range lines {
		name, indent := leftSpeaker(u.Speaker), ""
		if i%2 == 1 {
			name, indent = rightSpeaker(u.Speaker), "    "
		}
		fmt.Fprintf(w, "%s%s: %s\n", indent, name, u.Text)
	}
}

// saveResult writes the conversation track to out and, when lines is set,
// every line as out_NN_speaker.ext beside it.
func saveResult(s *services, res *generate.Result, out string, lines bool) error {
	clip, ok := s.blobs.Open(res.ConversationHandle)
	if !ok {
		return fmt.Errorf("conversation audio was released")
	}
	path := withExtension(out, clip.Extension())
	if err := writeClip(path, clip); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Audio saved to %s\n", path)

	if !lines {
		return nil
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for i, m := range res.Messages() {
		if m.AudioHandle == "" {
			continue
		}
		lineClip, ok := s.blobs.Open(m.AudioHandle)
		if !ok {
			continue
		}
		linePath := fmt.Sprintf("%s_%02d_%s.%s", base, i+1, safeName(m.Speaker), lineClip.Extension())
		if err := writeClip(linePath, lineClip); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "   %s\n", linePath)
	}
	return nil
}

func withExtension(path, ext string) string {
	if filepath.Ext(path) == "" {
		return path + "." + ext
	}
	return path
}

func safeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, s)
}

func writeClip(path string, clip *audio.Clip) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, clip.Data, 0644); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	return nil
}
