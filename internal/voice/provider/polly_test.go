package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/daikw/banter/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPollyClient is a mock implementation of the Polly API client
type MockPollyClient struct {
	mock.Mock
}

func (m *MockPollyClient) DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*polly.DescribeVoicesOutput), args.Error(1)
}

func (m *MockPollyClient) SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*polly.SynthesizeSpeechOutput), args.Error(1)
}

func TestPollyAdapter_SynthesizeUtterance(t *testing.T) {
	t.Run("wraps PCM as WAV", func(t *testing.T) {
		client := new(MockPollyClient)
		pcm := make([]byte, 3200)
		client.On("SynthesizeSpeech", mock.Anything, mock.MatchedBy(func(in *polly.SynthesizeSpeechInput) bool {
			return aws.ToString(in.Text) == "Hello" &&
				in.VoiceId == types.VoiceIdMatthew &&
				in.OutputFormat == types.OutputFormatPcm &&
				aws.ToString(in.SampleRate) == "16000" &&
				in.Engine == types.EngineNeural &&
				in.TextType == types.TextTypeText
		})).Return(&polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(pcm))}, nil)

		p := NewPollyAdapterWithClient(client, PollyConfig{})
		clip, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{Voice: "Matthew"})
		require.NoError(t, err)
		assert.Equal(t, audio.MIMEWAV, clip.MIMEType)

		h, err := audio.ParseWAVHeader(clip.Data)
		require.NoError(t, err)
		assert.Equal(t, 16000, h.SampleRate)
		assert.Equal(t, 1600, h.Frames())
		client.AssertExpectations(t)
	})

	t.Run("detects SSML", func(t *testing.T) {
		client := new(MockPollyClient)
		client.On("SynthesizeSpeech", mock.Anything, mock.MatchedBy(func(in *polly.SynthesizeSpeechInput) bool {
			return in.TextType == types.TextTypeSsml && in.Engine == types.EngineStandard
		})).Return(&polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(nil))}, nil)

		p := NewPollyAdapterWithClient(client, PollyConfig{Engine: "standard"})
		_, err := p.SynthesizeUtterance(context.Background(), "<speak>Hi</speak>", VoiceConfig{})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("wraps client errors", func(t *testing.T) {
		client := new(MockPollyClient)
		client.On("SynthesizeSpeech", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		p := NewPollyAdapterWithClient(client, PollyConfig{})
		_, err := p.SynthesizeUtterance(context.Background(), "Hello", VoiceConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to synthesize speech")
	})
}

func TestPollyAdapter_ListVoices(t *testing.T) {
	client := new(MockPollyClient)
	client.On("DescribeVoices", mock.Anything, mock.Anything).Return(&polly.DescribeVoicesOutput{
		Voices: []types.Voice{{
			Id:               types.VoiceIdJoanna,
			Name:             aws.String("Joanna"),
			Gender:           types.GenderFemale,
			LanguageCode:     types.LanguageCodeEnUs,
			SupportedEngines: []types.Engine{types.EngineNeural, types.EngineStandard},
		}},
	}, nil)

	p := NewPollyAdapterWithClient(client, PollyConfig{})
	voices, err := p.ListVoices(context.Background())

	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "Joanna", voices[0].ID)
	assert.Equal(t, "female", voices[0].Gender)
	assert.Equal(t, "Female voice, neural, standard engine supported", voices[0].Description)
}

func TestFormatSupportedEngines(t *testing.T) {
	assert.Equal(t, "unknown", formatSupportedEngines(nil))
	assert.Equal(t, "neural", formatSupportedEngines([]types.Engine{types.EngineNeural}))
}

func TestIsSSML(t *testing.T) {
	assert.True(t, isSSML("  <speak>hi</speak>"))
	assert.True(t, isSSML("a <break time='1s'/> b"))
	assert.False(t, isSSML("plain text"))
}
