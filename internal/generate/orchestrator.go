package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/daikw/banter/internal/audio"
	"github.com/daikw/banter/internal/voice/provider"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchPause = 100 * time.Millisecond
	// DefaultHistorySize bounds the conversations kept for replay.
	DefaultHistorySize = 100
)

var (
	ErrEmptyDialogue       = errors.New("dialogue has no utterances")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNoConversationAudio = errors.New("conversation has no audio")
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets how many lines are synthesized concurrently.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithBatchPause sets the pause after each batch except the last.
func WithBatchPause(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.batchPause = d
		}
	}
}

// WithConcatenator replaces the default concatenator.
func WithConcatenator(c *audio.Concatenator) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.concat = c
		}
	}
}

// WithHistorySize sets how many conversations are remembered.
func WithHistorySize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historySize = n
		}
	}
}

// Orchestrator turns dialogues into playable audio. Conversation tracks
// are owned by the cache; per-line handles live as long as their
// conversation stays in the history.
type Orchestrator struct {
	registry    *provider.Registry
	blobs       *audio.BlobStore
	cache       *audio.Cache
	concat      *audio.Concatenator
	batchSize   int
	batchPause  time.Duration
	historySize int
	history     *lru.Cache[string, *Conversation]
}

// New creates an orchestrator. The cache should release handles into
// blobs.
func New(registry *provider.Registry, blobs *audio.BlobStore, cache *audio.Cache, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		registry:    registry,
		blobs:       blobs,
		cache:       cache,
		batchSize:   DefaultBatchSize,
		batchPause:  DefaultBatchPause,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.concat == nil {
		o.concat = audio.NewConcatenator(nil)
	}

	history, err := lru.NewWithEvict(o.historySize, func(id string, c *Conversation) {
		for _, h := range c.individualHandles() {
			o.blobs.Revoke(h)
		}
		log.Debug().Str("conversation_id", id).Msg("Dropped conversation from history")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation history: %w", err)
	}
	o.history = history
	return o, nil
}

// Generate synthesizes req and records the conversation.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Utterances) == 0 {
		return nil, ErrEmptyDialogue
	}
	adapter, err := o.registry.Select(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if !adapter.IsConfigured() {
		log.Warn().Str("provider", adapter.Name()).Msg("TTS provider is not configured, skipping audio")
		return &Result{}, nil
	}

	conv := newConversation(uuid.NewString(), adapter.Name(), req.Model, req.Utterances)
	logger := log.With().Str("conversation_id", conv.ID).Str("provider", adapter.Name()).Logger()
	start := time.Now()

	var clip *audio.Clip
	var clips []*audio.Clip
	native := false

	if da, ok := adapter.(provider.DialogueAdapter); ok && da.NativeDialogue() {
		clip, err = da.SynthesizeDialogue(ctx, req.Voices, req.Utterances)
		switch {
		case err == nil:
			native = true
		case wantsFallback(adapter):
			logger.Warn().Err(err).Msg("Dialogue synthesis failed, falling back to per-line synthesis")
		default:
			return nil, err
		}
	}

	if !native {
		clips, err = o.fanOut(ctx, adapter, req.Voices, req.Utterances)
		if err != nil {
			return nil, err
		}
		var present []*audio.Clip
		for _, c := range clips {
			if c != nil {
				present = append(present, c)
			}
		}
		clip = o.concat.ConcatBestEffort(ctx, present)
	}

	res := &Result{Conversation: conv}
	conv.mu.Lock()
	conv.clip = clip
	conv.clips = clips
	for i := range conv.messages {
		if native {
			continue
		}
		if clips[i] == nil {
			res.Skipped = append(res.Skipped, i)
			continue
		}
		conv.messages[i].AudioHandle = o.blobs.Create(clips[i])
	}
	if clip != nil {
		res.ConversationHandle = o.blobs.Create(clip)
		conv.messages[0].ConversationAudioHandle = res.ConversationHandle
	}
	conv.mu.Unlock()

	if res.ConversationHandle != "" {
		o.cache.Set(conv.ID, res.ConversationHandle)
	}
	o.history.Add(conv.ID, conv)

	logger.Info().
		Int("lines", len(req.Utterances)).
		Int("skipped", len(res.Skipped)).
		Bool("native_dialogue", native).
		Dur("duration", time.Since(start)).
		Msg("Generated conversation audio")
	return res, nil
}

func wantsFallback(a provider.Adapter) bool {
	fb, ok := a.(provider.DialogueFallback)
	return ok && fb.FallbackOnDialogueError()
}

// fanOut synthesizes lines in concurrent batches. Each clip lands at the
// index of its line. Lines without a voice or with undecodable audio are
// left nil; any other failure cancels the batch and is returned.
func (o *Orchestrator) fanOut(ctx context.Context, adapter provider.Adapter, voices provider.VoiceLookup, utterances []provider.Utterance) ([]*audio.Clip, error) {
	clips := make([]*audio.Clip, len(utterances))

	for start := 0; start < len(utterances); start += o.batchSize {
		if start > 0 {
			if err := pause(ctx, o.batchPause); err != nil {
				return nil, err
			}
		}
		end := min(start+o.batchSize, len(utterances))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			u := utterances[i]
			g.Go(func() error {
				clip, err := synthesizeLine(gctx, adapter, voices, u)
				if err != nil {
					if skippable(err) {
						log.Warn().Err(err).Int("index", i).Str("speaker", u.Speaker).Msg("Skipping line")
						return nil
					}
					return fmt.Errorf("line %d (%s): %w", i, u.Speaker, err)
				}
				clips[i] = clip
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return clips, nil
}

// pause waits d between batches to stay under vendor rate limits.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func synthesizeLine(ctx context.Context, adapter provider.Adapter, voices provider.VoiceLookup, u provider.Utterance) (*audio.Clip, error) {
	voice, err := adapter.ResolveVoice(voices, u.Speaker)
	if err != nil {
		return nil, err
	}
	return adapter.SynthesizeUtterance(ctx, u.Text, voice)
}

func skippable(err error) bool {
	var decodeErr *audio.DecodeError
	return errors.Is(err, provider.ErrNoVoice) ||
		errors.Is(err, provider.ErrEmptyText) ||
		errors.As(err, &decodeErr)
}

// Close forgets every conversation and clears the cache, releasing all
// handles the orchestrator created. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.history.Purge()
	o.cache.Clear()
	log.Debug().Int("live_blobs", o.blobs.Len()).Msg("Released conversation audio")
}

// Conversation returns a remembered conversation.
func (o *Orchestrator) Conversation(id string) (*Conversation, bool) {
	return o.history.Get(id)
}

// ConversationHandle returns a playable handle for the whole conversation.
// When the cached handle was evicted a new one is minted from the stored
// audio, once for concurrent callers.
func (o *Orchestrator) ConversationHandle(ctx context.Context, id string) (string, error) {
	conv, ok := o.history.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}

	handle, err := o.cache.GetOrCompute(ctx, id, func(ctx context.Context) (string, error) {
		clip := conv.Clip()
		if clip == nil {
			conv.mu.RLock()
			var present []*audio.Clip
			for _, c := range conv.clips {
				if c != nil {
					present = append(present, c)
				}
			}
			conv.mu.RUnlock()
			clip = o.concat.ConcatBestEffort(ctx, present)
		}
		if clip == nil {
			return "", ErrNoConversationAudio
		}
		log.Debug().Str("conversation_id", id).Msg("Recreated conversation audio handle")
		return o.blobs.Create(clip), nil
	})
	if err != nil {
		return "", err
	}
	conv.setConversationHandle(handle)
	return handle, nil
}

// Open returns the clip behind a handle.
func (o *Orchestrator) Open(handle string) (*audio.Clip, bool) {
	return o.blobs.Open(handle)
}
