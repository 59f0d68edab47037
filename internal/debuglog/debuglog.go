// Package debuglog keeps the most recent vendor exchanges for inspection.
package debuglog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/daikw/banter/internal/voice/provider"
)

const (
	// DefaultSize is the number of entries kept.
	DefaultSize = 100

	maxDepth = 10
	// strings at least this long that look like base64 are replaced
	minBase64Len = 256
)

// Entry is one logged exchange step.
type Entry struct {
	Timestamp time.Time          `json:"timestamp"`
	Type      provider.EventType `json:"type"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model,omitempty"`
	Method    string             `json:"method,omitempty"`
	URL       string             `json:"url,omitempty"`
	Status    int                `json:"status,omitempty"`
	// Duration is in seconds with one decimal, e.g. "1.2".
	Duration string `json:"duration,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
	Error    string `json:"error,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Log is a bounded, newest-first record of provider events. It implements
// provider.Observer.
type Log struct {
	mu      sync.Mutex
	enabled bool
	size    int
	// ring buffer; next is the slot the next entry goes to
	entries []Entry
	next    int
	count   int
}

// New creates an enabled log keeping size entries.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{enabled: true, size: size, entries: make([]Entry, size)}
}

// SetEnabled turns recording on or off.
func (l *Log) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Observe records ev.
func (l *Log) Observe(ev provider.Event) {
	l.mu.Lock()
	enabled := l.enabled
	l.mu.Unlock()
	if !enabled {
		return
	}

	entry := Entry{
		Timestamp: ev.Time,
		Type:      ev.Type,
		Provider:  ev.Provider,
		Model:     ev.Model,
		Method:    ev.Method,
		URL:       ev.URL,
		Status:    ev.Status,
		Bytes:     ev.Bytes,
		Payload:   Sanitize(ev.Payload),
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if ev.Duration > 0 {
		entry.Duration = fmt.Sprintf("%.1f", ev.Duration.Seconds())
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}

	log.Debug().
		Str("type", string(entry.Type)).
		Str("provider", entry.Provider).
		Str("model", entry.Model).
		Str("url", entry.URL).
		Int("status", entry.Status).
		Str("duration", entry.Duration).
		Str("error", entry.Error).
		Msg("TTS debug event")

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.size
	if l.count < l.size {
		l.count++
	}
}

// Entries returns the recorded entries, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, l.count)
	for i := 1; i <= l.count; i++ {
		out = append(out, l.entries[(l.next-i+l.size)%l.size])
	}
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, l.size)
	l.next, l.count = 0, 0
}

// Sanitize converts v to plain JSON values, replaces base64 audio with a
// size note and cuts nesting at a fixed depth.
func Sanitize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("[unserializable payload: %v]", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Sprintf("[unserializable payload: %v]", err)
	}
	return sanitize(generic, 0)
}

func sanitize(v any, depth int) any {
	if depth >= maxDepth {
		return "[Max depth reached]"
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sanitize(val, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitize(val, depth+1)
		}
		return out
	case string:
		if n, ok := base64Size(t); ok {
			return fmt.Sprintf("[base64 audio: %d bytes]", n)
		}
	}
	return v
}

// base64Size reports the decoded size of s if s looks like a long base64
// payload.
func base64Size(s string) (int, bool) {
	if len(s) < minBase64Len || len(s)%4 != 0 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		case c == '=' && i >= len(s)-2:
		default:
			return 0, false
		}
	}
	pad := len(s) - len(strings.TrimRight(s, "="))
	return len(s)/4*3 - pad, true
}
