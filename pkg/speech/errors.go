package speech

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when caller-supplied data violates a
// precondition, e.g. synthesizing blank text. No network call is made.
var ErrInvalidInput = errors.New("speech: invalid input")

// ErrRateLimited is returned when the provider answers HTTP 429. Callers that
// want to retry should back off; the gateway itself never retries.
var ErrRateLimited = errors.New("speech: rate limited by provider")

// ErrServiceUnavailable is returned when the provider answers HTTP 503.
var ErrServiceUnavailable = errors.New("speech: provider unavailable")

// ServiceError is returned for any other non-200 provider response. It
// carries the status and body so operators can diagnose, but callers should
// not surface either to end users.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("speech: provider returned status %d: %s", e.Status, e.Body)
}

// ConfigError reports an invalid gateway configuration, e.g. a
// dialect/gender pair the provider has no voice for. It is returned at
// construction time, never from a network call.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("speech: unsupported %s %q", e.Field, e.Value)
}
