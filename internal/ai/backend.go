package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds every backend call unless configured otherwise.
const DefaultTimeout = 60 * time.Second

var (
	// ErrBackendTimeout is reported when the backend did not answer in time.
	ErrBackendTimeout = errors.New("backend timed out")

	// ErrBackendMissing is reported when the backend executable does not exist.
	ErrBackendMissing = errors.New("backend executable not found")

	// ErrBackendUnavailable covers every other failure to obtain an answer.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendRateLimited is reported when a hosted API refused the call for
	// rate-limit or overload reasons.
	ErrBackendRateLimited = errors.New("backend rate limited")
)

// Answer is the outcome of one question. On failure Text holds a short
// sentinel message suitable for display and Err the classified cause.
type Answer struct {
	Text  string
	Stats *Stats
	Err   error
}

// Failed reports whether Text is a sentinel rather than a real answer.
func (a Answer) Failed() bool {
	return a.Err != nil
}

// Backend calls a Provider under a fixed timeout and turns every failure into
// a sentinel answer. It never retries.
type Backend struct {
	provider Provider
	timeout  time.Duration
}

// NewBackend wraps provider. timeout <= 0 selects DefaultTimeout.
func NewBackend(provider Provider, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Backend{provider: provider, timeout: timeout}
}

// Provider returns the wrapped provider.
func (b *Backend) Provider() Provider {
	return b.provider
}

// Timeout returns the per-call timeout.
func (b *Backend) Timeout() time.Duration {
	return b.timeout
}

// Ask sends payload and waits at most the configured timeout.
func (b *Backend) Ask(ctx context.Context, payload string) Answer {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	text, stats, err := b.provider.Complete(callCtx, payload)
	if err == nil {
		return Answer{Text: text, Stats: stats}
	}

	classified := b.classify(callCtx, err)
	return Answer{
		Text: b.sentinel(classified),
		Err:  fmt.Errorf("%w: %w", classified, err),
	}
}

func (b *Backend) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrBackendMissing):
		return ErrBackendMissing
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		isTimeoutError(err):
		return ErrBackendTimeout
	case isRateLimitError(err), isOverloadedError(err):
		return ErrBackendRateLimited
	default:
		return ErrBackendUnavailable
	}
}

func (b *Backend) sentinel(classified error) string {
	switch classified {
	case ErrBackendTimeout:
		return "AI request timed out."
	case ErrBackendMissing:
		return fmt.Sprintf("%s is not installed or not found in PATH.", b.provider.GetProviderName())
	case ErrBackendRateLimited:
		return fmt.Sprintf("%s is busy or rate limited. Try again shortly.", b.provider.GetProviderName())
	default:
		return fmt.Sprintf("%s is unavailable. Check the log for details.", b.provider.GetProviderName())
	}
}

// isTimeoutError detects transport-level timeouts such as http.Client.Timeout.
func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
