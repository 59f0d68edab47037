// Package metrics exports vendor request and audio store metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daikw/banter/internal/voice/provider"
)

const namespace = "banter"

// Metrics owns a registry and the collectors fed by provider events.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseBytes   *prometheus.CounterVec
	generations     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_events_total",
				Help:      "Total number of TTS provider events by type",
			},
			[]string{"provider", "model", "type"}, // type: request, response, error
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Duration of TTS provider calls in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model", "status"}, // status: success, error
		),
		responseBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_response_bytes_total",
				Help:      "Total bytes received from TTS providers",
			},
			[]string{"provider", "model"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of conversation generations",
			},
			[]string{"provider", "status"},
		),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.responseBytes,
		m.generations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe implements provider.Observer.
func (m *Metrics) Observe(ev provider.Event) {
	m.requestsTotal.WithLabelValues(ev.Provider, ev.Model, string(ev.Type)).Inc()
	switch ev.Type {
	case provider.EventResponse:
		m.requestDuration.WithLabelValues(ev.Provider, ev.Model, "success").Observe(ev.Duration.Seconds())
		if ev.Bytes > 0 {
			m.responseBytes.WithLabelValues(ev.Provider, ev.Model).Add(float64(ev.Bytes))
		}
	case provider.EventError:
		m.requestDuration.WithLabelValues(ev.Provider, ev.Model, "error").Observe(ev.Duration.Seconds())
	}
}

// RecordGeneration counts one finished generation.
func (m *Metrics) RecordGeneration(providerName string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.generations.WithLabelValues(providerName, status).Inc()
}

// Sizer is anything that reports how many items it holds.
type Sizer interface {
	Len() int
}

// WatchBlobs exports the number of live audio handles.
func (m *Metrics) WatchBlobs(s Sizer) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_handles",
			Help:      "Number of live audio handles",
		},
		func() float64 { return float64(s.Len()) },
	))
}

// EvictionCounter reports cache evictions.
type EvictionCounter interface {
	Len() int
	Evictions() int64
}

// WatchCache exports the size and eviction count of the conversation
// audio cache.
func (m *Metrics) WatchCache(c EvictionCounter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "audio_cache_entries",
				Help:      "Number of cached conversation audio handles",
			},
			func() float64 { return float64(c.Len()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_cache_evictions_total",
				Help:      "Total number of evicted conversation audio handles",
			},
			func() float64 { return float64(c.Evictions()) },
		),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
