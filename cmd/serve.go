package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/daikw/banter/internal/generate"
	"github.com/daikw/banter/internal/harness"
	"github.com/daikw/banter/internal/llm"
	"github.com/daikw/banter/internal/server"
	"github.com/daikw/banter/internal/voice/provider"
)

func handleServe(ctx context.Context, c *cli.Command) error {
	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	deps := server.Deps{
		Registry:        s.registry,
		Orchestrator:    s.orchestrator,
		Personas:        s.personas,
		Profiles:        s.profiles,
		DefaultProvider: s.cfg.DefaultProvider,
		Debug:           s.debug,
		Metrics:         s.metrics,
	}
	if client, err := s.textClient("", ""); err != nil {
		log.Warn().Err(err).Msg("Text provider unavailable, voice tests disabled")
	} else {
		h, err := harness.New(client, s.orchestrator)
		if err != nil {
			return err
		}
		deps.Harness = h
	}

	return server.New(deps).ListenAndServe(ctx, c.String("addr"))
}

func handleMCP(ctx context.Context, c *cli.Command) error {
	s, err := newServices(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	srv := mcpserver.NewMCPServer("banter", version, mcpserver.WithToolCapabilities(false))
	tools := &mcpTools{s: s}
	tools.register(srv)

	log.Debug().Msg("Serving MCP on stdio")
	return mcpserver.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout)
}

// mcpTools exposes the registry and orchestrator as MCP tools.
type mcpTools struct {
	s *services
}

func (t *mcpTools) register(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("list_providers",
		mcp.WithDescription("List the TTS providers and whether each one is configured"),
	), t.listProviders)

	srv.AddTool(mcp.NewTool("list_voices",
		mcp.WithDescription("List the voices a TTS provider offers"),
		mcp.WithString("provider", mcp.Required(), mcp.Description("Provider name, e.g. elevenlabs or polly")),
	), t.listVoices)

	srv.AddTool(mcp.NewTool("synthesize_dialogue",
		mcp.WithDescription("Voice a dialogue and save the conversation audio to a file"),
		mcp.WithString("dialogue", mcp.Required(),
			mcp.Description(`Dialogue JSON: {"dialogue":[{"speaker":"Alex","text":"..."}]}`)),
		mcp.WithString("provider", mcp.Description("TTS provider (default: from config)")),
		mcp.WithString("model", mcp.Description("Provider model")),
		mcp.WithString("persona", mcp.Description("Persona template whose voices are used (default: default)")),
		mcp.WithString("output_path", mcp.Description("Where to save the audio (default: a temp file)")),
	), t.synthesizeDialogue)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *mcpTools) listProviders(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"default":   t.s.cfg.DefaultProvider,
		"providers": t.s.registry.Statuses(),
	})
}

func (t *mcpTools) listVoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("provider")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	adapter, err := t.s.registry.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lister, ok := adapter.(provider.VoiceLister)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("provider %s cannot list voices", name)), nil
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(voices)
}

type synthesisResult struct {
	ConversationID string             `json:"conversation_id"`
	Provider       string             `json:"provider"`
	Path           string             `json:"path,omitempty"`
	Messages       []generate.Message `json:"messages"`
	Skipped        []int              `json:"skipped,omitempty"`
}

func (t *mcpTools) synthesizeDialogue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("dialogue")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dialogue, err := llm.ParseDialogue(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	voices, _, err := t.s.voicesFor(req.GetString("persona", "default"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	providerName := t.s.cfg.EffectiveProvider(req.GetString("provider", ""))

	res, err := t.s.orchestrator.Generate(ctx, generate.Request{
		Utterances: dialogue.Dialogue,
		Provider:   providerName,
		Model:      req.GetString("model", ""),
		Voices:     voices,
	})
	if err != nil {
		return mcp.NewToolResultError(generate.UserMessage(err)), nil
	}
	if res.Conversation == nil {
		return mcp.NewToolResultError(fmt.Sprintf("provider %s is not configured", providerName)), nil
	}

	out := synthesisResult{
		ConversationID: res.Conversation.ID,
		Provider:       providerName,
		Messages:       res.Messages(),
		Skipped:        res.Skipped,
	}
	if clip, ok := t.s.blobs.Open(res.ConversationHandle); ok {
		path := req.GetString("output_path", "")
		if path == "" {
			path = filepath.Join(os.TempDir(), "banter-"+res.Conversation.ID)
		}
		if strings.Contains(path, "..") {
			return mcp.NewToolResultError("invalid output path: path traversal not allowed"), nil
		}
		out.Path = withExtension(path, clip.Extension())
		if err := writeClip(out.Path, clip); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(out)
}
