package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daikw/banter/internal/harness"
)

func handleVoiceTest(ctx context.Context, c *cli.Command) error {
	if c.Bool("list") {
		printModels(os.Stdout, harness.Models())
		return nil
	}

	input := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if input == "" {
		return fmt.Errorf("prompt is required")
	}

	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	voices, tmpl, err := s.voicesFor(c.String("persona"))
	if err != nil {
		return err
	}
	client, err := s.textClient(c.String("text-provider"), "")
	if err != nil {
		return err
	}

	progress := newProgressPrinter(os.Stderr)
	h, err := harness.New(client, s.orchestrator, harness.WithUpdates(progress.update))
	if err != nil {
		return err
	}

	session, err := h.Run(ctx, harness.Request{
		Input:   input,
		Persona: c.String("persona"),
		Prompt:  tmpl.Prompt(),
		Voices:  voices,
		Models:  c.StringSlice("model"),
	})
	if err != nil {
		return err
	}

	view := session.Snapshot()
	printSummary(os.Stdout, view)

	if dir := c.String("save-dir"); dir != "" {
		for _, m := range view.Models {
			if m.AudioHandle == "" {
				continue
			}
			clip, ok := s.blobs.Open(m.AudioHandle)
			if !ok {
				continue
			}
			path := filepath.Join(dir, m.ID+"."+clip.Extension())
			if err := writeClip(path, clip); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "🎵 %s\n", path)
		}
	}

	if path := c.String("export"); path != "" {
		data, err := session.Export()
		if err != nil {
			return fmt.Errorf("failed to export session: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✅ Session exported to %s\n", path)
	}

	if view.Status == harness.SessionAllFailed {
		return fmt.Errorf("all models failed")
	}
	return nil
}

var title = cases.Title(language.English)

// statusLabel renders a status like "generating_audio" as "Generating Audio".
func statusLabel(status string) string {
	return title.String(strings.ReplaceAll(status, "_", " "))
}

func statusColor(status harness.ModelStatus) *color.Color {
	switch status {
	case harness.ModelCompleted:
		return color.New(color.FgGreen)
	case harness.ModelFailed:
		return color.New(color.FgRed)
	case harness.ModelPending:
		return color.New(color.Faint)
	}
	return color.New(color.FgYellow)
}

// progressPrinter prints a line whenever a model changes stage.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, seen: make(map[string]string)}
}

func (p *progressPrinter) update(v harness.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range v.Models {
		key := fmt.Sprintf("%s/%d", m.Status, m.RetryCount)
		if p.seen[m.ID] == key {
			continue
		}
		p.seen[m.ID] = key

		line := fmt.Sprintf("%-28s %3d%%  %s", m.Name, m.Progress, statusLabel(string(m.Status)))
		if m.RetryCount > 0 && m.Status != harness.ModelCompleted {
			line += fmt.Sprintf(" (retry %d)", m.RetryCount)
		}
		statusColor(m.Status).Fprintln(p.w, line)
	}
}

func printModels(w io.Writer, models []harness.Model) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROVIDER\tDEFAULT")
	for _, m := range models {
		def := ""
		if m.Selected {
			def = "✓"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Provider, def)
	}
	_ = tw.Flush()
}

func printSummary(w io.Writer, v harness.View) {
	completed, failed := v.Counts()
	fmt.Fprintln(w)
	color.New(color.Bold).Fprintf(w, "Voice test %s: %s (%d completed, %d failed)\n", v.ID, statusLabel(string(v.Status)), completed, failed)

	for _, m := range v.Models {
		mark := color.GreenString("✓")
		if m.Status == harness.ModelFailed {
			mark = color.RedString("✗")
		}
		fmt.Fprintf(w, "%s %s\n", mark, m.Name)
		for _, u := range m.Dialogue {
			fmt.Fprintf(w, "    %s: %s\n", u.Speaker, u.Text)
		}
		if m.Error != "" {
			fmt.Fprintf(w, "    %s\n", color.RedString(m.Error))
		}
	}
}
