// Package harness runs one input through several TTS models side by side
// and reports per-model progress, with retries for transient failures.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/daikw/banter/internal/generate"
	"github.com/daikw/banter/internal/llm"
	"github.com/daikw/banter/internal/voice/provider"
)

// DefaultSessionLimit bounds the sessions kept for lookup and export.
const DefaultSessionLimit = 50

// ErrNoAudio is returned when a provider produced neither a conversation
// track nor any per-line audio.
var ErrNoAudio = errors.New("no audio generated by TTS provider")

// TextGenerator writes dialogues.
type TextGenerator interface {
	GenerateDialogue(ctx context.Context, req llm.Request) (*llm.Dialogue, error)
}

// AudioGenerator turns dialogues into audio.
type AudioGenerator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Result, error)
}

// Option configures a Harness.
type Option func(*Harness)

// WithPolicy replaces the retry policy.
func WithPolicy(p Policy) Option {
	return func(h *Harness) { h.policy = p }
}

// WithLimits overrides family ceilings. Families not listed keep their
// default.
func WithLimits(limits map[string]int64) Option {
	return func(h *Harness) {
		for k, v := range limits {
			if v > 0 {
				h.limits[k] = v
			}
		}
	}
}

// WithSessionLimit sets how many finished sessions are kept for lookup.
func WithSessionLimit(n int) Option {
	return func(h *Harness) { h.sessionLimit = n }
}

// WithUpdates registers a callback invoked after every state change.
func WithUpdates(fn func(View)) Option {
	return func(h *Harness) { h.onUpdate = fn }
}

// Harness runs voice tests. Family ceilings are shared by all sessions.
type Harness struct {
	text     TextGenerator
	audio    AudioGenerator
	policy   Policy
	limits   map[string]int64
	onUpdate func(View)

	sessionLimit int

	mu       sync.Mutex
	sems     map[string]*semaphore.Weighted
	sessions *lru.Cache[string, *Session]
}

// New creates a harness.
func New(text TextGenerator, audio AudioGenerator, opts ...Option) (*Harness, error) {
	h := &Harness{
		text:         text,
		audio:        audio,
		policy:       DefaultPolicy,
		limits:       make(map[string]int64, len(DefaultLimits)),
		sessionLimit: DefaultSessionLimit,
		sems:         make(map[string]*semaphore.Weighted),
	}
	for k, v := range DefaultLimits {
		h.limits[k] = v
	}
	for _, opt := range opts {
		opt(h)
	}
	sessions, err := lru.New[string, *Session](h.sessionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create session history: %w", err)
	}
	h.sessions = sessions
	return h, nil
}

func (h *Harness) familySem(family string) *semaphore.Weighted {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sems[family]; ok {
		return s
	}
	limit, ok := h.limits[family]
	if !ok {
		limit = h.limits[FamilyDefault]
	}
	s := semaphore.NewWeighted(limit)
	h.sems[family] = s
	return s
}

// Request describes a voice test.
type Request struct {
	Input string
	// Persona names the template, for the export.
	Persona string
	// Prompt is the persona's system prompt.
	Prompt string
	Voices provider.VoiceLookup
	// Models lists model ids; empty means the default selection.
	Models []string
}

// Start validates req and runs it in the background. The returned session
// is updated as models progress.
func (h *Harness) Start(ctx context.Context, req Request) (*Session, error) {
	ids := req.Models
	if len(ids) == 0 {
		ids = DefaultSelection()
	}
	models, unknown := LookupModels(ids)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown models: %v", unknown)
	}

	s := &Session{
		id:        uuid.NewString(),
		input:     req.Input,
		persona:   req.Persona,
		status:    SessionReady,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
	for _, m := range models {
		s.runs = append(s.runs, &ModelRun{Model: m, Status: ModelPending})
	}
	h.sessions.Add(s.id, s)
	h.notify(s)

	go h.process(ctx, s, req)
	return s, nil
}

// Run starts a test and waits for it.
func (h *Harness) Run(ctx context.Context, req Request) (*Session, error) {
	s, err := h.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	<-s.Done()
	return s, nil
}

// Session returns a recent session by id.
func (h *Harness) Session(id string) (*Session, bool) {
	return h.sessions.Get(id)
}

func (h *Harness) process(ctx context.Context, s *Session, req Request) {
	defer close(s.done)

	s.mu.Lock()
	s.status = SessionProcessing
	runs := append([]*ModelRun(nil), s.runs...)
	s.mu.Unlock()
	h.notify(s)

	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem := h.familySem(run.Family())
			if err := sem.Acquire(ctx, 1); err != nil {
				s.fail(run, err)
				h.notify(s)
				return
			}
			defer sem.Release(1)
			h.processModel(ctx, s, run, req)
		}()
	}
	wg.Wait()

	s.finish()
	h.notify(s)
	v := s.Snapshot()
	completed, failed := v.Counts()
	log.Info().
		Str("session_id", s.id).
		Str("status", string(v.Status)).
		Int("completed", completed).
		Int("failed", failed).
		Msg("Voice test finished")
}

func (h *Harness) processModel(ctx context.Context, s *Session, run *ModelRun, req Request) {
	logger := log.With().Str("session_id", s.id).Str("model", run.ID).Logger()

	s.update(run, func(r *ModelRun) {
		r.Status = ModelGeneratingText
		r.Progress = 0
		r.Timings.TextStart = stamp()
		r.Prompt = &Prompt{System: llm.SystemPrompt(req.Prompt, run.TTS), User: req.Input}
	})
	h.notify(s)

	var dialogue *llm.Dialogue
	err := h.withRetry(ctx, s, run, 0, 25, func(ctx context.Context) error {
		var err error
		dialogue, err = h.text.GenerateDialogue(ctx, llm.Request{Persona: req.Prompt, TTS: run.TTS, Input: req.Input})
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Text generation failed")
		s.fail(run, err)
		h.notify(s)
		return
	}

	s.update(run, func(r *ModelRun) {
		r.Dialogue = dialogue.Dialogue
		r.Timings.TextEnd = stamp()
		r.Progress = 50
		r.Status = ModelTextCompleted
	})
	h.notify(s)

	s.update(run, func(r *ModelRun) {
		r.Status = ModelGeneratingAudio
		r.Timings.AudioStart = stamp()
	})
	h.notify(s)

	var res *generate.Result
	err = h.withRetry(ctx, s, run, 50, 75, func(ctx context.Context) error {
		var err error
		res, err = h.audio.Generate(ctx, generate.Request{
			Utterances: dialogue.Dialogue,
			Provider:   run.Provider,
			Model:      run.Model.Model,
			Voices:     req.Voices,
		})
		return err
	})
	if err == nil {
		if handle := audioHandle(res); handle != "" {
			s.update(run, func(r *ModelRun) {
				r.AudioHandle = handle
				if res.Conversation != nil {
					r.ConversationID = res.Conversation.ID
				}
				r.Timings.AudioEnd = stamp()
				r.Progress = 100
				r.Status = ModelCompleted
			})
			h.notify(s)
			return
		}
		err = ErrNoAudio
	}
	logger.Warn().Err(err).Msg("Audio generation failed")
	s.fail(run, err)
	h.notify(s)
}

// audioHandle picks the conversation track, or the first line that has
// audio.
func audioHandle(res *generate.Result) string {
	if res == nil {
		return ""
	}
	if res.ConversationHandle != "" {
		return res.ConversationHandle
	}
	for _, m := range res.Messages() {
		if m.AudioHandle != "" {
			return m.AudioHandle
		}
	}
	return ""
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the policy is exhausted. Progress is first on the first attempt and
// retrying on later ones.
func (h *Harness) withRetry(ctx context.Context, s *Session, run *ModelRun, first, retrying int, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := sleep(ctx, h.policy.Delay(attempt)); err != nil {
			return err
		}
		s.update(run, func(r *ModelRun) {
			r.RetryCount = attempt
			r.Progress = first
			if attempt > 0 {
				r.Progress = retrying
			}
		})
		h.notify(s)

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= h.policy.MaxRetries {
			return err
		}
		log.Debug().Err(err).Str("model", run.ID).Int("attempt", attempt+1).Msg("Retrying after transient failure")
	}
}

func (h *Harness) notify(s *Session) {
	if h.onUpdate != nil {
		h.onUpdate(s.Snapshot())
	}
}
