// Package taxonomy defines the closed set of error kinds raised by the
// orchestration engine. Every fatal or retryable condition surfaced by a
// component is one of these kinds so that callers can branch on it with
// errors.As instead of string matching.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError indicates an input or path violates a stated contract.
// Always non-transient.
type ValidationError struct {
	Component string // validator, path, store
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Component, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(component, message string) error {
	return &ValidationError{Component: component, Message: message}
}

// APIError wraps an LLM provider HTTP failure with its classification.
type APIError struct {
	StatusCode int
	Transient  bool
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api error: %s", e.Message)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// NewAPIError builds an APIError.
func NewAPIError(statusCode int, transient bool, message string) error {
	return &APIError{StatusCode: statusCode, Transient: transient, Message: message}
}

// TimeoutError indicates a per-request deadline expired. Always transient.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s", e.Message)
}

// NewTimeoutError builds a TimeoutError.
func NewTimeoutError(message string) error {
	return &TimeoutError{Message: message}
}

// LimitKind identifies which budget was breached.
type LimitKind string

// Budget kinds carried by LimitExceededError.
const (
	LimitWallClock LimitKind = "wall_clock"
	LimitAPICalls  LimitKind = "api_calls"
	LimitTokens    LimitKind = "tokens"
)

// LimitExceededError indicates a budget breach. Always non-transient.
type LimitExceededError struct {
	Kind    LimitKind
	Message string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded (%s): %s", e.Kind, e.Message)
}

// NewLimitExceededError builds a LimitExceededError.
func NewLimitExceededError(kind LimitKind, message string) error {
	return &LimitExceededError{Kind: kind, Message: message}
}

// BreakerKind identifies which circuit breaker tripped.
type BreakerKind string

// Breaker kinds carried by CircuitBreakerError.
const (
	BreakerErrorRate       BreakerKind = "error_rate"       // C4, provider error-rate window
	BreakerConsecutiveFail BreakerKind = "consecutive_fail" // C7, transient-failure streak
	BreakerFeedbackLoop    BreakerKind = "feedback_loop"     // C7, Critic rejection streak
)

// CircuitBreakerError indicates one of the three breakers tripped. Always
// non-transient — the caller's retry budget is exhausted by definition.
type CircuitBreakerError struct {
	Kind    BreakerKind
	Message string
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker open (%s): %s", e.Kind, e.Message)
}

// NewCircuitBreakerError builds a CircuitBreakerError.
func NewCircuitBreakerError(kind BreakerKind, message string) error {
	return &CircuitBreakerError{Kind: kind, Message: message}
}

// VerificationError indicates strict-mode verification failed. Always
// non-transient.
type VerificationError struct {
	QualityScore float64
	Message      string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed (score %.2f): %s", e.QualityScore, e.Message)
}

// NewVerificationError builds a VerificationError.
func NewVerificationError(score float64, message string) error {
	return &VerificationError{QualityScore: score, Message: message}
}

// networkSubstrings are fragments commonly present in unclassified
// transport-layer errors (connection resets, DNS failures, broken pipes).
// Used only as a last resort by IsTransient when an error carries no
// explicit classification.
var networkSubstrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"eof",
	"i/o timeout",
	"network is unreachable",
}

// IsTransient reports whether err is eligible for retry. It first checks for
// the taxonomy kinds that carry an explicit flag, then falls back to
// substring matching on the error text for anything else.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return false
	}

	var limitErr *LimitExceededError
	if errors.As(err, &limitErr) {
		return false
	}

	var breakerErr *CircuitBreakerError
	if errors.As(err, &breakerErr) {
		return false
	}

	var verifyErr *VerificationError
	if errors.As(err, &verifyErr) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range networkSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
