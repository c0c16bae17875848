package ai

import (
	"errors"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

// isRateLimitError detects if an error is a rate limit error from any LLM provider.
// It checks both the Anthropic SDK error type and error message patterns.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	// Check Anthropic SDK error type
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitErr()
	}

	// Fallback: check error message for rate limit indicators
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate_limit_error") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "too many requests")
}

// isOverloadedError detects if an error indicates API overload.
// Overloaded errors are reported the same way as rate limits.
func isOverloadedError(err error) bool {
	if err == nil {
		return false
	}

	// Check Anthropic SDK error type
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsOverloadedErr()
	}

	// Fallback: check error message
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "status 503")
}
