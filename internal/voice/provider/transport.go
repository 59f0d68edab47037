package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultHTTPTimeout bounds every vendor request.
const DefaultHTTPTimeout = 60 * time.Second

// EventType is the kind of telemetry event.
type EventType string

const (
	EventRequest  EventType = "request"
	EventResponse EventType = "response"
	EventError    EventType = "error"
)

// Event describes one step of a vendor exchange. Payload holds the decoded
// JSON body when there is one; binary bodies are reported only by size.
type Event struct {
	Type     EventType
	Time     time.Time
	Provider string
	Model    string
	Method   string
	URL      string
	Status   int
	Duration time.Duration
	Payload  any
	Bytes    int
	Err      error
}

// Observer receives telemetry. It must not block and never affects the
// outcome of a request.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// Option configures the infrastructure shared by all HTTP adapters.
type Option func(*base)

// WithBaseURL overrides the vendor endpoint, mostly for tests.
func WithBaseURL(u string) Option {
	return func(b *base) {
		if u != "" {
			b.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) {
		if c != nil {
			b.client = c
		}
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(b *base) {
		if o != nil {
			b.observer = o
		}
	}
}

// base carries what every HTTP adapter needs.
type base struct {
	name     string
	model    string
	baseURL  string
	client   *http.Client
	observer Observer
}

func newBase(name, model, baseURL string, opts []Option) base {
	b := base{
		name:     name,
		model:    model,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) options() []Option {
	return []Option{WithBaseURL(b.baseURL), WithHTTPClient(b.client), WithObserver(b.observer)}
}

// report stamps and emits an event for adapters that call a vendor SDK
// instead of going through do.
func (b *base) report(ev Event) {
	ev.Provider, ev.Model = b.name, b.model
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.observer.Observe(ev)
}

type request struct {
	method string
	url    string
	header map[string]string
	body   any
}

type response struct {
	status      int
	contentType string
	body        []byte
}

// do performs one exchange and reports it to the observer. Non-2xx
// statuses and network failures come back as *TransportError.
func (b *base) do(ctx context.Context, r request) (*response, error) {
	var reader io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	start := time.Now()
	b.observer.Observe(Event{Type: EventRequest, Time: start, Provider: b.name, Model: b.model, Method: r.method, URL: r.url, Payload: r.body})
	log.Debug().Str("provider", b.name).Str("method", r.method).Str("url", r.url).Msg("Sending TTS request")

	resp, err := b.client.Do(req)
	if err != nil {
		terr := &TransportError{Provider: b.name, Method: r.method, URL: r.url, Err: err}
		b.observer.Observe(Event{Type: EventError, Time: time.Now(), Provider: b.name, Model: b.model, Method: r.method, URL: r.url, Duration: time.Since(start), Err: terr})
		return nil, terr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		terr := &TransportError{Provider: b.name, Method: r.method, URL: r.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
		b.observer.Observe(Event{Type: EventError, Time: time.Now(), Provider: b.name, Model: b.model, Method: r.method, URL: r.url, Status: resp.StatusCode, Duration: time.Since(start), Err: terr})
		return nil, terr
	}

	out := &response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: body}
	ev := Event{Type: EventResponse, Time: time.Now(), Provider: b.name, Model: b.model, Method: r.method, URL: r.url, Status: resp.StatusCode, Duration: time.Since(start), Bytes: len(body)}
	if strings.Contains(out.contentType, "json") {
		var payload any
		if json.Unmarshal(body, &payload) == nil {
			ev.Payload = payload
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		terr := &TransportError{Provider: b.name, Method: r.method, URL: r.url, StatusCode: resp.StatusCode, Body: string(body)}
		ev.Type, ev.Err = EventError, terr
		b.observer.Observe(ev)
		return nil, terr
	}

	b.observer.Observe(ev)
	log.Debug().
		Str("provider", b.name).
		Int("status", resp.StatusCode).
		Str("content_type", out.contentType).
		Int("bytes", len(body)).
		Dur("duration", ev.Duration).
		Msg("TTS request successful")
	return out, nil
}

// decodeJSON decodes a JSON response body into v.
func (r *response) decodeJSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
