package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	fal, err := NewFalAdapter(FalConfig{APIKey: "k"})
	require.NoError(t, err)

	r := NewRegistry(
		NewElevenLabsAdapter(ElevenLabsConfig{APIKey: "k", Mode: ElevenLabsModeDialogue}),
		NewGeminiAdapter(GeminiConfig{}),
		fal,
	)

	assert.Equal(t, []string{"elevenlabs", "fal", "gemini"}, r.Names())

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.Get("nope")
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("select model", func(t *testing.T) {
		a, err := r.Select("fal", "orpheus-tts")
		require.NoError(t, err)
		assert.Equal(t, "orpheus-tts", a.(*FalAdapter).Model())

		same, err := r.Select("gemini", "")
		require.NoError(t, err)
		assert.Equal(t, GeminiFlashModel, same.(*GeminiAdapter).Model())

		_, err = r.Select("elevenlabs", "bogus")
		assert.Error(t, err)
	})

	t.Run("statuses", func(t *testing.T) {
		statuses := r.Statuses()
		require.Len(t, statuses, 3)
		assert.Equal(t, Status{Name: "elevenlabs", Model: ElevenLabsDefaultModel, Configured: true, Dialogue: true}, statuses[0])
		assert.False(t, statuses[2].Configured)
		assert.True(t, statuses[2].Dialogue)
	})

	t.Run("adapter without model selection", func(t *testing.T) {
		r := NewRegistry(NewPollyAdapterWithClient(new(MockPollyClient), PollyConfig{}))
		_, err := r.Select("polly", "neural")
		assert.Error(t, err)
	})
}
