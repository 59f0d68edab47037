package generate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikw/banter/internal/audio"
	"github.com/daikw/banter/internal/voice"
	"github.com/daikw/banter/internal/voice/provider"
)

func silentWAV(frames, sampleRate int) []byte {
	pcm := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%100)))
	}
	return audio.PCM16ToWAV(pcm, audio.PCMFormat{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16})
}

func frames(t *testing.T, clip *audio.Clip) int {
	t.Helper()
	h, err := audio.ParseWAVHeader(clip.Data)
	require.NoError(t, err)
	return h.Frames()
}

// fakeAdapter synthesizes WAVs whose length encodes the line index.
type fakeAdapter struct {
	name       string
	configured bool
	delay      func(i int) time.Duration
	fail       map[string]error

	inflight    atomic.Int32
	maxInflight atomic.Int32
	calls       atomic.Int32

	mu       sync.Mutex
	started  map[int]time.Time
	finished map[int]time.Time
}

func (f *fakeAdapter) record(times map[int]time.Time, i int) {
	if times == nil {
		return
	}
	f.mu.Lock()
	times[i] = time.Now()
	f.mu.Unlock()
}

func (f *fakeAdapter) Name() string       { return f.name }
func (f *fakeAdapter) IsConfigured() bool { return f.configured }

func (f *fakeAdapter) ResolveVoice(_ provider.VoiceLookup, speaker string) (provider.VoiceConfig, error) {
	if speaker == "Nobody" {
		return provider.VoiceConfig{}, &provider.VoiceResolutionError{Provider: f.name, Speaker: speaker}
	}
	return provider.VoiceConfig{Voice: speaker}, nil
}

func (f *fakeAdapter) SynthesizeUtterance(ctx context.Context, text string, _ provider.VoiceConfig) (*audio.Clip, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	var i int
	fmt.Sscanf(text, "line %d", &i)
	f.record(f.started, i)
	defer f.record(f.finished, i)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(i)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	return &audio.Clip{Data: silentWAV((i+1)*100, 8000), MIMEType: audio.MIMEWAV}, nil
}

type fakeDialogueAdapter struct {
	fakeAdapter
	dialogueErr error
	fallback    bool
}

func (f *fakeDialogueAdapter) NativeDialogue() bool { return true }

func (f *fakeDialogueAdapter) SynthesizeDialogue(context.Context, provider.VoiceLookup, []provider.Utterance) (*audio.Clip, error) {
	if f.dialogueErr != nil {
		return nil, f.dialogueErr
	}
	return &audio.Clip{Data: silentWAV(4000, 8000), MIMEType: audio.MIMEWAV}, nil
}

func (f *fakeDialogueAdapter) FallbackOnDialogueError() bool { return f.fallback }

func lines(n int) []provider.Utterance {
	out := make([]provider.Utterance, n)
	for i := range out {
		out[i] = provider.Utterance{Speaker: []string{"Alice", "Bob"}[i%2], Text: fmt.Sprintf("line %d", i)}
	}
	return out
}

type fixture struct {
	orch  *Orchestrator
	blobs *audio.BlobStore
	cache *audio.Cache
}

func newFixture(t *testing.T, cacheSize int, adapters ...provider.Adapter) *fixture {
	t.Helper()
	blobs := audio.NewBlobStore()
	cache, err := audio.NewCache(cacheSize, func(h string) { blobs.Revoke(h) })
	require.NoError(t, err)
	orch, err := New(provider.NewRegistry(adapters...), blobs, cache, WithBatchPause(time.Millisecond))
	require.NoError(t, err)
	return &fixture{orch: orch, blobs: blobs, cache: cache}
}

func TestGenerate_PreservesOrder(t *testing.T) {
	n := 7
	fake := &fakeAdapter{
		name:       "fake",
		configured: true,
		// later lines finish first
		delay: func(i int) time.Duration { return time.Duration(n-i) * 5 * time.Millisecond },
	}
	fx := newFixture(t, 10, fake)

	res, err := fx.orch.Generate(context.Background(), Request{Utterances: lines(n), Provider: "fake"})
	require.NoError(t, err)
	require.NotNil(t, res.Conversation)
	assert.Empty(t, res.Skipped)

	msgs := res.Messages()
	require.Len(t, msgs, n)
	total := 0
	for i, m := range msgs {
		clip, ok := fx.blobs.Open(m.AudioHandle)
		require.True(t, ok, "line %d has no audio", i)
		assert.Equal(t, (i+1)*100, frames(t, clip), "line %d out of order", i)
		total += (i + 1) * 100

		assert.Equal(t, i == 0, m.IsConversationStart)
		assert.Equal(t, res.Conversation.ID, m.ConversationID)
	}
	assert.Equal(t, SideLeft, msgs[0].Side)
	assert.Equal(t, SideRight, msgs[1].Side)

	assert.Equal(t, res.ConversationHandle, msgs[0].ConversationAudioHandle)
	assert.Empty(t, msgs[1].ConversationAudioHandle)
	track, ok := fx.blobs.Open(res.ConversationHandle)
	require.True(t, ok)
	assert.Equal(t, total, frames(t, track))

	cached, ok := fx.cache.Get(res.Conversation.ID)
	require.True(t, ok)
	assert.Equal(t, res.ConversationHandle, cached)

	assert.LessOrEqual(t, fake.maxInflight.Load(), int32(DefaultBatchSize))
}

func TestGenerate_PausesBetweenBatches(t *testing.T) {
	fake := &fakeAdapter{
		name:       "fake",
		configured: true,
		delay:      func(int) time.Duration { return 60 * time.Millisecond },
		started:    map[int]time.Time{},
		finished:   map[int]time.Time{},
	}
	blobs := audio.NewBlobStore()
	cache, err := audio.NewCache(10, func(h string) { blobs.Revoke(h) })
	require.NoError(t, err)
	orch, err := New(provider.NewRegistry(fake), blobs, cache, WithBatchSize(2), WithBatchPause(80*time.Millisecond))
	require.NoError(t, err)

	_, err = orch.Generate(context.Background(), Request{Utterances: lines(5), Provider: "fake"})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.started, 5)
	for _, batch := range [][2][]int{{{0, 1}, {2, 3}}, {{2, 3}, {4}}} {
		var lastEnd time.Time
		for _, i := range batch[0] {
			if fake.finished[i].After(lastEnd) {
				lastEnd = fake.finished[i]
			}
		}
		for _, i := range batch[1] {
			gap := fake.started[i].Sub(lastEnd)
			assert.GreaterOrEqual(t, gap, 80*time.Millisecond, "line %d started %v after previous batch", i, gap)
		}
	}
}

func TestGenerate_PauseHonorsContext(t *testing.T) {
	fake := &fakeAdapter{name: "fake", configured: true}
	blobs := audio.NewBlobStore()
	cache, err := audio.NewCache(10, func(h string) { blobs.Revoke(h) })
	require.NoError(t, err)
	orch, err := New(provider.NewRegistry(fake), blobs, cache, WithBatchSize(1), WithBatchPause(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = orch.Generate(ctx, Request{Utterances: lines(2), Provider: "fake"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestGenerate_SkipsLinesWithoutVoice(t *testing.T) {
	fake := &fakeAdapter{name: "fake", configured: true, fail: map[string]error{
		"line 2": &audio.DecodeError{Index: -1, Format: "wav", Err: errors.New("bad header")},
	}}
	fx := newFixture(t, 10, fake)

	utterances := lines(4)
	utterances[1].Speaker = "Nobody"

	res, err := fx.orch.Generate(context.Background(), Request{Utterances: utterances, Provider: "fake"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Skipped)

	msgs := res.Messages()
	assert.NotEmpty(t, msgs[0].AudioHandle)
	assert.Empty(t, msgs[1].AudioHandle)
	assert.Empty(t, msgs[2].AudioHandle)
	assert.NotEmpty(t, msgs[3].AudioHandle)

	track, ok := fx.blobs.Open(res.ConversationHandle)
	require.True(t, ok)
	assert.Equal(t, 100+400, frames(t, track))
}

func TestGenerate_TransportErrorFails(t *testing.T) {
	fake := &fakeAdapter{name: "fake", configured: true, fail: map[string]error{
		"line 1": &provider.TransportError{Provider: "fake", StatusCode: 500},
	}}
	fx := newFixture(t, 10, fake)

	_, err := fx.orch.Generate(context.Background(), Request{Utterances: lines(3), Provider: "fake"})
	var terr *provider.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 0, fx.blobs.Len())
	assert.Equal(t, 0, fx.cache.Len())
}

func TestGenerate_Unconfigured(t *testing.T) {
	fake := &fakeAdapter{name: "fake"}
	fx := newFixture(t, 10, fake)

	res, err := fx.orch.Generate(context.Background(), Request{Utterances: lines(2), Provider: "fake"})
	require.NoError(t, err)
	assert.Nil(t, res.Conversation)
	assert.Empty(t, res.ConversationHandle)
	assert.Nil(t, res.Messages())
	assert.Equal(t, int32(0), fake.calls.Load())
}

func TestGenerate_Errors(t *testing.T) {
	fx := newFixture(t, 10, &fakeAdapter{name: "fake", configured: true})

	_, err := fx.orch.Generate(context.Background(), Request{Provider: "fake"})
	assert.ErrorIs(t, err, ErrEmptyDialogue)

	_, err = fx.orch.Generate(context.Background(), Request{Utterances: lines(1), Provider: "nope"})
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestGenerate_NativeDialogue(t *testing.T) {
	t.Run("one call", func(t *testing.T) {
		fake := &fakeDialogueAdapter{fakeAdapter: fakeAdapter{name: "dlg", configured: true}}
		fx := newFixture(t, 10, fake)

		res, err := fx.orch.Generate(context.Background(), Request{Utterances: lines(3), Provider: "dlg"})
		require.NoError(t, err)
		assert.Equal(t, int32(0), fake.calls.Load())

		msgs := res.Messages()
		for _, m := range msgs {
			assert.Empty(t, m.AudioHandle)
		}
		track, ok := fx.blobs.Open(msgs[0].ConversationAudioHandle)
		require.True(t, ok)
		assert.Equal(t, 4000, frames(t, track))
	})

	t.Run("fallback to per-line", func(t *testing.T) {
		fake := &fakeDialogueAdapter{
			fakeAdapter: fakeAdapter{name: "dlg", configured: true},
			dialogueErr: errors.New("dialog endpoint down"),
			fallback:    true,
		}
		fx := newFixture(t, 10, fake)

		res, err := fx.orch.Generate(context.Background(), Request{Utterances: lines(3), Provider: "dlg"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), fake.calls.Load())
		track, ok := fx.blobs.Open(res.ConversationHandle)
		require.True(t, ok)
		assert.Equal(t, 100+200+300, frames(t, track))
	})

	t.Run("error propagates without fallback", func(t *testing.T) {
		fake := &fakeDialogueAdapter{
			fakeAdapter: fakeAdapter{name: "dlg", configured: true},
			dialogueErr: errors.New("dialog endpoint down"),
		}
		fx := newFixture(t, 10, fake)

		_, err := fx.orch.Generate(context.Background(), Request{Utterances: lines(3), Provider: "dlg"})
		assert.EqualError(t, err, "dialog endpoint down")
		assert.Equal(t, int32(0), fake.calls.Load())
	})
}

func TestClose_ReleasesEveryHandle(t *testing.T) {
	fx := newFixture(t, 10, &fakeAdapter{name: "fake", configured: true})
	ctx := context.Background()

	res, err := fx.orch.Generate(ctx, Request{Utterances: lines(3), Provider: "fake"})
	require.NoError(t, err)
	_, err = fx.orch.Generate(ctx, Request{Utterances: lines(2), Provider: "fake"})
	require.NoError(t, err)
	require.Equal(t, 3+1+2+1, fx.blobs.Len())

	fx.orch.Close()
	assert.Equal(t, 0, fx.blobs.Len())
	assert.Equal(t, 0, fx.cache.Len())
	_, ok := fx.orch.Conversation(res.Conversation.ID)
	assert.False(t, ok)

	fx.orch.Close()
	assert.Equal(t, 0, fx.blobs.Len())
}

func TestConversationHandle_AfterEviction(t *testing.T) {
	fx := newFixture(t, 1, &fakeAdapter{name: "fake", configured: true})
	ctx := context.Background()

	first, err := fx.orch.Generate(ctx, Request{Utterances: lines(2), Provider: "fake"})
	require.NoError(t, err)
	second, err := fx.orch.Generate(ctx, Request{Utterances: lines(2), Provider: "fake"})
	require.NoError(t, err)

	_, ok := fx.blobs.Open(first.ConversationHandle)
	assert.False(t, ok, "evicted handle should be revoked")

	handle, err := fx.orch.ConversationHandle(ctx, first.Conversation.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationHandle, handle)
	clip, ok := fx.blobs.Open(handle)
	require.True(t, ok)
	assert.Equal(t, 300, frames(t, clip))
	assert.Equal(t, handle, first.Conversation.Messages()[0].ConversationAudioHandle)

	_, ok = fx.blobs.Open(second.ConversationHandle)
	assert.False(t, ok)

	again, err := fx.orch.ConversationHandle(ctx, first.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, handle, again)

	_, err = fx.orch.ConversationHandle(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownConversation)
}

func TestConversationHandle_Concurrent(t *testing.T) {
	fx := newFixture(t, 1, &fakeAdapter{name: "fake", configured: true})
	ctx := context.Background()

	first, err := fx.orch.Generate(ctx, Request{Utterances: lines(2), Provider: "fake"})
	require.NoError(t, err)
	fx.cache.Remove(first.Conversation.ID)
	before := fx.blobs.Len()

	var wg sync.WaitGroup
	handles := make([]string, 8)
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := fx.orch.ConversationHandle(ctx, first.Conversation.ID)
			assert.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	for _, h := range handles {
		assert.Equal(t, handles[0], h)
	}
	assert.Equal(t, before+1, fx.blobs.Len())
}

func TestGenerate_ElevenLabsEndToEnd(t *testing.T) {
	wav := silentWAV(44100, 44100)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/text-to-speech/"))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	el := provider.NewElevenLabsAdapter(provider.ElevenLabsConfig{APIKey: "k"}, provider.WithBaseURL(srv.URL))
	fx := newFixture(t, 10, el)

	voices := voice.NewResolver(nil, voice.PersonaVoices{Voices: map[string]string{"Alice": "voice-a", "Bob": "voice-b"}})
	res, err := fx.orch.Generate(context.Background(), Request{
		Utterances: []provider.Utterance{{Speaker: "Alice", Text: "Hello"}, {Speaker: "Bob", Text: "Hi"}},
		Provider:   "elevenlabs",
		Voices:     voices,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())

	track, ok := fx.blobs.Open(res.ConversationHandle)
	require.True(t, ok)
	assert.Equal(t, audio.MIMEWAV, track.MIMEType)
	assert.Equal(t, 88200, frames(t, track))
}
