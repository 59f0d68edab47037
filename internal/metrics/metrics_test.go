package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikw/banter/internal/audio"
	"github.com/daikw/banter/internal/voice/provider"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(provider.Event{Type: provider.EventRequest, Provider: "gemini", Model: "flash"})
	m.Observe(provider.Event{Type: provider.EventResponse, Provider: "gemini", Model: "flash", Duration: 2 * time.Second, Bytes: 1024})
	m.Observe(provider.Event{Type: provider.EventRequest, Provider: "gemini", Model: "flash"})
	m.Observe(provider.Event{Type: provider.EventError, Provider: "gemini", Model: "flash", Duration: time.Second})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("gemini", "flash", "request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("gemini", "flash", "error")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.responseBytes.WithLabelValues("gemini", "flash")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestRecordGeneration(t *testing.T) {
	m := New()
	m.RecordGeneration("fal", nil)
	m.RecordGeneration("fal", errors.New("boom"))
	m.RecordGeneration("fal", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations.WithLabelValues("fal", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("fal", "error")))
}

func TestWatchStoresAndHandler(t *testing.T) {
	m := New()

	blobs := audio.NewBlobStore()
	blobs.Create(&audio.Clip{Data: []byte{1}, MIMEType: audio.MIMEMPEG})
	cache, err := audio.NewCache(1, nil)
	require.NoError(t, err)
	cache.Set("a", "blob:a")
	cache.Set("b", "blob:b")

	m.WatchBlobs(blobs)
	m.WatchCache(cache)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "banter_audio_handles 1"), text)
	assert.True(t, strings.Contains(text, "banter_audio_cache_entries 1"), text)
	assert.True(t, strings.Contains(text, "banter_audio_cache_evictions_total 1"), text)
}
