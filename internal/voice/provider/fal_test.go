package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daikw/banter/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFal serves the fal.ai queue protocol. statuses are returned by
// successive status checks; the last one repeats.
type fakeFal struct {
	t        *testing.T
	server   *httptest.Server
	sync     bool
	statuses []string
	polls    atomic.Int32
	submits  atomic.Int32
	lastBody atomic.Value
}

func newFakeFal(t *testing.T, sync bool, statuses ...string) *fakeFal {
	f := &fakeFal{t: t, sync: sync, statuses: statuses}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFal) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/audio.wav":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(audio.PCM16ToWAV(make([]byte, 480), audio.DefaultPCMFormat))
	case strings.HasSuffix(r.URL.Path, "/status"):
		assert.Equal(f.t, "Key fal-key", r.Header.Get("Authorization"))
		n := int(f.polls.Add(1))
		status := f.statuses[min(n, len(f.statuses))-1]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "` + status + `"}`))
	case strings.Contains(r.URL.Path, "/requests/"):
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"audio": {"url": "` + f.server.URL + `/audio.wav"}}`))
	default:
		assert.Equal(f.t, "POST", r.Method)
		assert.Equal(f.t, "Key fal-key", r.Header.Get("Authorization"))
		f.submits.Add(1)
		f.lastBody.Store(decodeBody(f.t, r))
		w.Header().Set("Content-Type", "application/json")
		if f.sync {
			w.Write([]byte(`{"audio_url": {"url": "` + f.server.URL + `/audio.wav"}}`))
			return
		}
		w.Write([]byte(`{"request_id": "req-1"}`))
	}
}

func (f *fakeFal) adapter(t *testing.T, model string) *FalAdapter {
	p, err := NewFalAdapter(FalConfig{APIKey: "fal-key", Model: model, PollInterval: time.Millisecond}, WithBaseURL(f.server.URL))
	require.NoError(t, err)
	return p
}

func TestFalAdapter_SyncResult(t *testing.T) {
	f := newFakeFal(t, true)
	p := f.adapter(t, "orpheus-tts")

	clip, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{})
	require.NoError(t, err)
	assert.Equal(t, audio.MIMEWAV, clip.MIMEType)
	assert.Equal(t, int32(0), f.polls.Load())
}

func TestFalAdapter_QueuedResult(t *testing.T) {
	f := newFakeFal(t, false, "IN_QUEUE", "IN_PROGRESS", "COMPLETED")
	p := f.adapter(t, "dia-tts")

	clip, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{})
	require.NoError(t, err)
	assert.True(t, audio.IsWAV(clip.Data))
	assert.Equal(t, int32(3), f.polls.Load())
}

func TestFalAdapter_JobFailed(t *testing.T) {
	f := newFakeFal(t, false, "IN_PROGRESS", "FAILED")
	p := f.adapter(t, "dia-tts")

	_, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Equal(t, int32(2), f.polls.Load())
}

func TestFalAdapter_PollingStopsAtCap(t *testing.T) {
	f := newFakeFal(t, false, "IN_PROGRESS")
	p := f.adapter(t, "dia-tts")

	_, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobTimeout)

	var jerr *JobError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, FalDefaultMaxPollAttempts, jerr.Attempts)
	assert.Equal(t, "req-1", jerr.RequestID)
	assert.Equal(t, int32(60), f.polls.Load())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(60), f.polls.Load(), "no status checks after giving up")
}

func TestFalAdapter_PollingHonorsContext(t *testing.T) {
	f := newFakeFal(t, false, "IN_PROGRESS")
	p, err := NewFalAdapter(FalConfig{APIKey: "fal-key", Model: "dia-tts", PollInterval: time.Hour}, WithBaseURL(f.server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.SynthesizeUtterance(ctx, "Hello", VoiceConfig{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(0), f.polls.Load())
}

func TestFalAdapter_SubmitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail": "overloaded"}`))
	}))
	defer server.Close()

	p, err := NewFalAdapter(FalConfig{APIKey: "fal-key"}, WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Temporary())
}

func TestFalModel_BuildRequest(t *testing.T) {
	model := func(id string) FalModel {
		m, ok := LookupFalModel(id)
		require.True(t, ok, id)
		return m
	}

	t.Run("f5-tts", func(t *testing.T) {
		req := model("f5-tts").buildRequest("Hi", VoiceConfig{ReferenceAudio: "https://x/ref.wav", ReferenceText: "ref"})
		assert.Equal(t, map[string]any{
			"text":           "Hi",
			"gen_text":       "Hi",
			"model_type":     "F5-TTS",
			"remove_silence": true,
			"ref_audio_url":  "https://x/ref.wav",
			"ref_text":       "ref",
		}, req)
	})

	t.Run("dia-tts-clone defaults reference text", func(t *testing.T) {
		req := model("dia-tts-clone").buildRequest("Hi", VoiceConfig{ReferenceAudio: "https://x/ref.wav"})
		assert.Equal(t, "https://x/ref.wav", req["reference_audio_url"])
		assert.Equal(t, "Hi", req["reference_text"])
	})

	t.Run("playai voice and emotion", func(t *testing.T) {
		req := model("playai-tts-v3").buildRequest("Hi", VoiceConfig{Voice: "Angelo", Emotion: "cheerful"})
		assert.Equal(t, map[string]any{"text": "Hi", "voice": "Angelo", "emotion": "cheerful"}, req)
	})

	t.Run("f5-tts without reference text", func(t *testing.T) {
		req := model("f5-tts").buildRequest("Hi", VoiceConfig{ReferenceAudio: "https://x/ref.wav"})
		assert.Equal(t, "", req["ref_text"])
	})

	t.Run("clone fields need reference audio", func(t *testing.T) {
		req := model("dia-tts-clone").buildRequest("Hi", VoiceConfig{ReferenceText: "ref"})
		assert.Equal(t, map[string]any{"text": "Hi"}, req)
	})

	t.Run("emotion only where the model takes it", func(t *testing.T) {
		req := model("orpheus-tts").buildRequest("Hi", VoiceConfig{Voice: "tara", Emotion: "cheerful"})
		assert.Equal(t, map[string]any{"text": "Hi", "voice": "tara"}, req)
	})

	t.Run("plain text models", func(t *testing.T) {
		for _, id := range []string{"dia-tts", "chatterbox-tts", "chatterboxhd-tts"} {
			assert.Equal(t, map[string]any{"text": "Hi"}, model(id).buildRequest("Hi", VoiceConfig{Voice: "ignored"}), id)
		}
	})

	t.Run("kokoro british variant", func(t *testing.T) {
		m := model("kokoro-tts")
		assert.Equal(t, "fal-ai/kokoro/american-english", m.endpointFor(VoiceConfig{Voice: "af_heart"}))
		assert.Equal(t, "fal-ai/kokoro/british-english", m.endpointFor(VoiceConfig{Voice: "bf_emma"}))
	})
}

func TestFalAdapter_RequiresReferenceAudio(t *testing.T) {
	f := newFakeFal(t, true)
	p := f.adapter(t, "f5-tts")

	_, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{Voice: "alex"})
	assert.ErrorIs(t, err, ErrNoVoice)
	assert.Contains(t, err.Error(), "f5-tts")
	assert.Equal(t, int32(0), f.submits.Load())

	clip, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{ReferenceAudio: "https://x/ref.wav", ReferenceText: "ref"})
	require.NoError(t, err)
	assert.NotNil(t, clip)
	assert.Equal(t, int32(1), f.submits.Load())
	body := f.lastBody.Load().(map[string]any)
	assert.Equal(t, "Hello", body["gen_text"])
	assert.Equal(t, "https://x/ref.wav", body["ref_audio_url"])
}

func TestFalAdapter_Dialogue(t *testing.T) {
	f := newFakeFal(t, true)
	p := f.adapter(t, "playai-tts-dialog")

	assert.True(t, p.NativeDialogue())
	assert.True(t, p.FallbackOnDialogueError())

	clip, err := p.SynthesizeDialogue(context.Background(), nil, []Utterance{
		{Speaker: "Alice", Text: "Hi"},
		{Speaker: "Bob", Text: "Hello"},
	})
	require.NoError(t, err)
	assert.NotNil(t, clip)

	body := f.lastBody.Load().(map[string]any)
	assert.Equal(t, "Alice: Hi\nBob: Hello", body["text"])
	assert.Equal(t, "default", body["voice"])

	other := f.adapter(t, "orpheus-tts")
	assert.False(t, other.NativeDialogue())
}

func TestFalAdapter_ResolveVoice(t *testing.T) {
	p, err := NewFalAdapter(FalConfig{APIKey: "k", Model: "orpheus-tts", Voice: "tara"})
	require.NoError(t, err)

	lookup := mapLookup{
		"orpheus-tts:Alice": {Voice: "leah"},
		"fal:Alice":         {Voice: "generic"},
		"fal:Bob":           {Voice: "zac"},
	}

	v, err := p.ResolveVoice(lookup, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "leah", v.Voice)

	v, err = p.ResolveVoice(lookup, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "zac", v.Voice)

	v, err = p.ResolveVoice(lookup, "Carol")
	require.NoError(t, err)
	assert.Equal(t, "tara", v.Voice)
}

func TestNewFalAdapter_UnknownModel(t *testing.T) {
	_, err := NewFalAdapter(FalConfig{APIKey: "k", Model: "nope"})
	assert.Error(t, err)
	assert.Len(t, FalModelIDs(), len(FalModels))
}
