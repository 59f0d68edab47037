package persona

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontmatter is returned for Markdown templates that do not start
// with a YAML block.
var ErrNoFrontmatter = errors.New("invalid template format: missing YAML frontmatter")

// ParseYAML decodes a YAML persona template.
func ParseYAML(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse persona template: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseMarkdown decodes a Markdown template. The frontmatter holds the same
// keys as a YAML template; a "## System Prompt" section, when present,
// replaces system_prompt.
//
//	---
//	name: Morning Show
//	voices:
//	  Host: 21m00Tcm4TlvDq8ikWAM
//	---
//	## System Prompt
//	You write a two-host morning radio show.
func ParseMarkdown(data []byte) (*Template, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return nil, ErrNoFrontmatter
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, ErrNoFrontmatter
	}
	front, body := rest[:end], rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var t Template
	if err := yaml.Unmarshal([]byte(front), &t); err != nil {
		return nil, fmt.Errorf("failed to parse template frontmatter: %w", err)
	}
	if prompt, ok := markdownSections(body)["System Prompt"]; ok {
		t.SystemPrompt = Lines{prompt}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// markdownSections splits a document on "## " headings.
func markdownSections(body string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if heading, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			current = strings.TrimSpace(heading)
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	return sections
}

func (t *Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("persona template has no name")
	}
	if t.Prompt() == "" {
		return fmt.Errorf("persona template %q has no system prompt", t.Name)
	}
	return nil
}
