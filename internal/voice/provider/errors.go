package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured is returned when an adapter is missing its credential.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrNoVoice is returned when a speaker has no voice on a provider.
	ErrNoVoice = errors.New("no voice configured")

	// ErrEmptyText is returned when asked to synthesize nothing.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrUnknownProvider is returned by the registry for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrJobFailed is matched by a JobError the vendor rejected.
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimeout is matched by a JobError that never finished in time.
	ErrJobTimeout = errors.New("job timed out")
)

// VoiceResolutionError reports a speaker without a usable voice.
type VoiceResolutionError struct {
	Provider string
	Speaker  string
}

func (e *VoiceResolutionError) Error() string {
	return fmt.Sprintf("no voice configured for speaker %q on %s", e.Speaker, e.Provider)
}

func (e *VoiceResolutionError) Unwrap() error {
	return ErrNoVoice
}

// TransportError is a failed HTTP exchange. StatusCode is zero when the
// request never got a response.
type TransportError struct {
	Provider   string
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s API error", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ", body: %s", truncate(e.Body, 512))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request could succeed.
func (e *TransportError) Temporary() bool {
	switch e.StatusCode {
	case 0:
		return e.Err != nil
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsAuth reports whether the vendor rejected the credential.
func (e *TransportError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// JobKind distinguishes the two terminal job failures.
type JobKind int

const (
	JobFailed JobKind = iota
	JobTimeout
)

// JobError is a job-polling failure.
type JobError struct {
	Kind      JobKind
	Provider  string
	RequestID string
	Attempts  int
	Status    string
	Detail    string
}

func (e *JobError) Error() string {
	if e.Kind == JobTimeout {
		return fmt.Sprintf("%s job %s timed out after %d status checks", e.Provider, e.RequestID, e.Attempts)
	}
	msg := fmt.Sprintf("%s job %s failed with status %s", e.Provider, e.RequestID, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches ErrJobFailed or ErrJobTimeout according to Kind.
func (e *JobError) Is(target error) bool {
	switch target {
	case ErrJobFailed:
		return e.Kind == JobFailed
	case ErrJobTimeout:
		return e.Kind == JobTimeout
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
