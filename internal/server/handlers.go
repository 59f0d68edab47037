package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/daikw/banter/internal/generate"
	"github.com/daikw/banter/internal/harness"
	"github.com/daikw/banter/internal/voice/provider"
)

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   s.deps.DefaultProvider,
		"providers": s.deps.Registry.Statuses(),
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.deps.Registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	lister, ok := adapter.(provider.VoiceLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("provider %s cannot list voices", adapter.Name()))
		return
	}
	voices, err := lister.ListVoices(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, provider.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

type generateRequest struct {
	Dialogue []provider.Utterance `json:"dialogue"`
	Provider string               `json:"provider,omitempty"`
	Model    string               `json:"model,omitempty"`
	Persona  string               `json:"persona,omitempty"`
}

type generateResponse struct {
	ConversationID          string             `json:"conversation_id,omitempty"`
	Provider                string             `json:"provider"`
	Configured              bool               `json:"configured"`
	Messages                []generate.Message `json:"messages"`
	ConversationAudioHandle string             `json:"conversation_audio_handle,omitempty"`
	Skipped                 []int              `json:"skipped,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	voices, _, err := s.resolver(req.Persona)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = s.deps.DefaultProvider
	}
	res, err := s.deps.Orchestrator.Generate(r.Context(), generate.Request{
		Utterances: req.Dialogue,
		Provider:   providerName,
		Model:      req.Model,
		Voices:     voices,
	})
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordGeneration(providerName, err)
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, generate.ErrEmptyDialogue) || errors.Is(err, provider.ErrUnknownProvider) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("provider", providerName).Msg("Failed to generate conversation audio")
		writeJSON(w, status, errorBody{Error: err.Error(), Message: generate.UserMessage(err)})
		return
	}

	resp := generateResponse{
		Provider:                providerName,
		Configured:              res.Conversation != nil,
		Messages:                res.Messages(),
		ConversationAudioHandle: res.ConversationHandle,
		Skipped:                 res.Skipped,
	}
	if res.Conversation != nil {
		resp.ConversationID = res.Conversation.ID
	}
	if resp.Messages == nil {
		resp.Messages = []generate.Message{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, ok := s.deps.Orchestrator.Conversation(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", generate.ErrUnknownConversation, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         conv.ID,
		"provider":   conv.Provider,
		"model":      conv.Model,
		"created_at": conv.CreatedAt,
		"messages":   conv.Messages(),
	})
}

func (s *Server) handleConversationAudio(w http.ResponseWriter, r *http.Request) {
	handle, err := s.deps.Orchestrator.ConversationHandle(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, generate.ErrUnknownConversation) || errors.Is(err, generate.ErrNoConversationAudio) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	s.serveClip(w, r, handle)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.serveClip(w, r, r.PathValue("handle"))
}

func (s *Server) serveClip(w http.ResponseWriter, r *http.Request, handle string) {
	clip, ok := s.deps.Orchestrator.Open(handle)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown audio handle: %s", handle))
		return
	}
	w.Header().Set("Content-Type", clip.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	if r.URL.Query().Has("download") {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="conversation.%s"`, clip.Extension()))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip.Data); err != nil {
		log.Debug().Err(err).Str("handle", handle).Msg("Client went away during audio download")
	}
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, harness.Models())
}

type voiceTestRequest struct {
	Input   string   `json:"input"`
	Persona string   `json:"persona,omitempty"`
	Models  []string `json:"models,omitempty"`
}

func (s *Server) handleStartVoiceTest(w http.ResponseWriter, r *http.Request) {
	var req voiceTestRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, errors.New("input is required"))
		return
	}
	voices, tmpl, err := s.resolver(req.Persona)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hreq := harness.Request{Input: req.Input, Persona: req.Persona, Voices: voices, Models: req.Models}
	if tmpl != nil {
		hreq.Prompt = tmpl.Prompt()
	}

	// the session outlives the request
	session, err := s.deps.Harness.Start(context.WithoutCancel(r.Context()), hreq)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

func (s *Server) handleVoiceTest(w http.ResponseWriter, r *http.Request) {
	session, ok := s.deps.Harness.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown voice test: %s", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleExportVoiceTest(w http.ResponseWriter, r *http.Request) {
	session, ok := s.deps.Harness.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown voice test: %s", r.PathValue("id")))
		return
	}
	data, err := session.Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="voice-test-%s.json"`, session.ID()))
	_, _ = w.Write(data)
}

func (s *Server) handleDebugLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Debug.Entries())
}

func (s *Server) handleClearDebugLog(w http.ResponseWriter, _ *http.Request) {
	s.deps.Debug.Clear()
	w.WriteHeader(http.StatusNoContent)
}
