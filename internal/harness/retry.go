package harness

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/daikw/banter/internal/voice/provider"
)

// Policy is an exponential backoff schedule.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	MaxRetries int
}

// DefaultPolicy waits 1s, 2s, 4s between the four attempts.
var DefaultPolicy = Policy{
	Initial:    time.Second,
	Multiplier: 2,
	Max:        30 * time.Second,
	MaxRetries: 3,
}

// Delay returns the wait before attempt (attempt 0 never waits).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Max) {
			return p.Max
		}
	}
	return min(time.Duration(d), p.Max)
}

var transientSignatures = []string{"rate limit", "429", "timeout", "network", "503", "502"}

// IsRetryable reports whether err looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, provider.ErrJobTimeout) {
		return true
	}

	var terr *provider.TransportError
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
