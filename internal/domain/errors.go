package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound signals a missing credential or record.
	ErrNotFound = errors.New("not found")
	// ErrExpired signals a record that is present but past its expiry.
	// Readers treat it as absent; status queries distinguish it.
	ErrExpired = errors.New("credential expired")
	// ErrUnauthorized signals a non-admin attempting a shared-credential mutation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuotaExceeded signals an exhausted shared-pool quota.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoUsableCredential signals that neither a personal nor a shared credential resolved.
	ErrNoUsableCredential = errors.New("no usable credential")
	// ErrProvider signals a transport or provider-side completion failure.
	ErrProvider = errors.New("provider error")
	// ErrStorage signals a local persistence failure. Fatal to the calling
	// operation, not retried.
	ErrStorage = errors.New("storage error")
)

// QuotaKind identifies which limit was hit.
type QuotaKind string

// Quota exhaustion kinds.
const (
	QuotaKindRequests         QuotaKind = "requests"
	QuotaKindTokens           QuotaKind = "tokens"
	QuotaKindProviderReported QuotaKind = "provider_reported"
)

// QuotaExceededError wraps ErrQuotaExceeded with the exhausted limit kind.
type QuotaExceededError struct {
	Kind QuotaKind
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQuotaExceeded.Error(), e.Kind)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ProviderError wraps ErrProvider with the HTTP status and response body
// reported by the completion provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrProvider.Error(), e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// QuotaExhausted reports whether the provider itself signalled quota or rate
// exhaustion, as opposed to a generic failure.
func (e *ProviderError) QuotaExhausted() bool {
	return e.StatusCode == http.StatusTooManyRequests || IsQuotaExhaustedMessage(e.Body)
}

// quotaIndicators are substrings providers use in quota-exhaustion error bodies.
var quotaIndicators = []string{
	"quota",
	"rate limit",
	"rate_limit",
	"resource_exhausted",
	"insufficient_quota",
	"billing",
}

// IsQuotaExhaustedMessage reports whether an error body contains a
// provider-side quota or rate-limit indicator.
func IsQuotaExhaustedMessage(body string) bool {
	s := strings.ToLower(body)
	for _, ind := range quotaIndicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}
