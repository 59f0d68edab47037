package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daikw/banter/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiAudioResponse(pcm []byte) string {
	resp := map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/L16;rate=24000", "data": audio.EncodeBase64(pcm)}},
			}},
		}},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestGeminiModel(t *testing.T) {
	assert.Equal(t, GeminiFlashModel, geminiModel(""))
	assert.Equal(t, GeminiFlashModel, geminiModel("gemini_flash"))
	assert.Equal(t, GeminiProModel, geminiModel("gemini_pro"))
	assert.Equal(t, GeminiProModel, geminiModel(GeminiProModel))
}

func TestGeminiAdapter_BuildPrompt(t *testing.T) {
	p := NewGeminiAdapter(GeminiConfig{APIKey: "k"})
	utterances := []Utterance{
		{Speaker: "Alice", Text: "Hi Bob"},
		{Speaker: "Bob", Text: "Hi Alice"},
		{Speaker: "Alice", Text: "Bye"},
	}

	t.Run("with voice assignments", func(t *testing.T) {
		lookup := mapLookup{"gemini:Alice": {VoiceName: "Puck"}}
		prompt, speakers, voices := p.BuildPrompt(lookup, utterances)

		assert.Equal(t, []string{"Alice", "Bob"}, speakers)
		assert.Equal(t, "Puck", voices["Alice"])
		assert.Equal(t, GeminiDefaultVoice, voices["Bob"])

		expected := "You are generating speech for a multi-character dialogue. " +
			"Voice assignments:\n" +
			"- Alice: Use Puck voice characteristics\n" +
			"- Bob: Use Kore voice characteristics\n" +
			"\n" +
			"Generate natural speech for the following dialogue with distinct voices for each speaker:\n\n" +
			"Alice: Hi Bob\nBob: Hi Alice\nAlice: Bye\n"
		assert.Equal(t, expected, prompt)
	})

	t.Run("without any mapping", func(t *testing.T) {
		prompt, _, _ := p.BuildPrompt(nil, utterances)
		assert.NotContains(t, prompt, "Voice assignments")
		assert.True(t, strings.HasSuffix(prompt, "Alice: Bye\n"))
	})
}

func TestGeminiAdapter_SynthesizeDialogue(t *testing.T) {
	pcm := make([]byte, 4800)

	t.Run("multi speaker config", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models/gemini-2.5-flash-preview-tts:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
			assert.Empty(t, r.URL.Query().Get("key"))

			body := decodeBody(t, r)
			gen := body["generationConfig"].(map[string]any)
			assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])

			speech := gen["speechConfig"].(map[string]any)
			assert.NotContains(t, speech, "voiceConfig")
			cfgs := speech["multiSpeakerVoiceConfig"].(map[string]any)["speakerVoiceConfigs"].([]any)
			require.Len(t, cfgs, 2)
			first := cfgs[0].(map[string]any)
			assert.Equal(t, "Alice", first["speaker"])
			assert.Equal(t, "Puck", first["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)["voiceName"])

			safety := body["safetySettings"].([]any)
			assert.Len(t, safety, 4)
			for _, s := range safety {
				assert.Equal(t, "BLOCK_ONLY_HIGH", s.(map[string]any)["threshold"])
			}

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(geminiAudioResponse(pcm)))
		}))
		defer server.Close()

		p := NewGeminiAdapter(GeminiConfig{APIKey: "test-key"}, WithBaseURL(server.URL))
		clip, err := p.SynthesizeDialogue(context.Background(), mapLookup{"gemini:Alice": {VoiceName: "Puck"}}, []Utterance{
			{Speaker: "Alice", Text: "Hello"},
			{Speaker: "Bob", Text: "Hi"},
		})
		require.NoError(t, err)
		assert.Equal(t, audio.MIMEWAV, clip.MIMEType)

		h, err := audio.ParseWAVHeader(clip.Data)
		require.NoError(t, err)
		assert.Equal(t, 24000, h.SampleRate)
		assert.Equal(t, 1, h.Channels)
		assert.Equal(t, 2400, h.Frames())
	})

	t.Run("single speaker config", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			speech := decodeBody(t, r)["generationConfig"].(map[string]any)["speechConfig"].(map[string]any)
			assert.NotContains(t, speech, "multiSpeakerVoiceConfig")
			voice := speech["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)["voiceName"]
			assert.Equal(t, "Kore", voice)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(geminiAudioResponse(pcm)))
		}))
		defer server.Close()

		p := NewGeminiAdapter(GeminiConfig{APIKey: "test-key"}, WithBaseURL(server.URL))
		clip, err := p.SynthesizeDialogue(context.Background(), nil, []Utterance{
			{Speaker: "Alice", Text: "Hello"},
			{Speaker: "Alice", Text: "Again"},
		})
		require.NoError(t, err)
		assert.NotNil(t, clip)
	})

	t.Run("no candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"candidates": []}`))
		}))
		defer server.Close()

		p := NewGeminiAdapter(GeminiConfig{APIKey: "k"}, WithBaseURL(server.URL))
		_, err := p.SynthesizeDialogue(context.Background(), nil, []Utterance{{Speaker: "A", Text: "x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no candidates")
	})

	t.Run("malformed audio is a decode error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"candidates": [{"content": {"parts": [{"inlineData": {"data": "!!not base64!!"}}]}}]}`))
		}))
		defer server.Close()

		p := NewGeminiAdapter(GeminiConfig{APIKey: "k"}, WithBaseURL(server.URL))
		_, err := p.SynthesizeDialogue(context.Background(), nil, []Utterance{{Speaker: "A", Text: "x"}})

		var derr *audio.DecodeError
		assert.ErrorAs(t, err, &derr)
	})

	t.Run("unconfigured", func(t *testing.T) {
		p := NewGeminiAdapter(GeminiConfig{})
		_, err := p.SynthesizeDialogue(context.Background(), nil, []Utterance{{Speaker: "A", Text: "x"}})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}
