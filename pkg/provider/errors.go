package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors for provider operations. A *Error matches the sentinel of its
// Kind through errors.Is.
var (
	// ErrRateLimited indicates the provider asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a failure that may succeed on retry.
	ErrTransient = errors.New("transient provider failure")

	// ErrNotFound indicates a record or zone was not found.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates the change conflicts with existing provider state.
	ErrConflict = errors.New("record conflict")

	// ErrUnauthorized indicates authentication or authorization failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalid indicates the provider rejected the request as malformed.
	ErrInvalid = errors.New("invalid request")

	// ErrZoneResolutionUnsupported is returned when a zone ID must be configured
	// explicitly because the provider cannot look it up.
	ErrZoneResolutionUnsupported = errors.New("provider cannot resolve zone IDs; set the zone id explicitly")
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRateLimited
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalid:
		return "invalid"
	default:
		return "transient"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindRateLimited:
		return ErrRateLimited
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindUnauthorized:
		return ErrUnauthorized
	case KindInvalid:
		return ErrInvalid
	default:
		return ErrTransient
	}
}

// Error is a classified provider failure.
type Error struct {
	Provider  string
	Operation string
	Kind      ErrorKind

	// RetryAfter is the delay the provider advertised. Only meaningful for
	// KindRateLimited; zero means no hint was given.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Operation, e.Kind)
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NewError returns a classified provider error.
func NewError(provider, operation string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Operation: operation, Kind: kind, Err: err}
}

// NewRateLimited returns a rate limit error carrying the advertised delay.
func NewRateLimited(provider, operation string, retryAfter time.Duration, err error) *Error {
	return &Error{Provider: provider, Operation: operation, Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Classify converts any error into a *Error. Errors that are already
// classified are returned unchanged. Everything else, including timeouts
// and network errors, is KindTransient.
func Classify(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, operation, KindTransient, fmt.Errorf("timeout: %w", err))
	}
	return NewError(provider, operation, KindTransient, err)
}

// KindOf returns the kind of a classified error.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether an error is transient or rate limited.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindTransient || kind == KindRateLimited
}

// RetryAfter returns the provider-advertised delay, or zero.
func RetryAfter(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindRateLimited {
		return pe.RetryAfter
	}
	return 0
}

// IsNotFound returns true if the error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error indicates a conflicting record.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnauthorized returns true if the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRateLimited returns true if the provider throttled the request.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrConfigMissing creates an error for a missing required configuration field.
func ErrConfigMissing(field string) error {
	return &ConfigError{
		Field:   field,
		Message: "required but not set",
	}
}

// ErrConfigInvalid creates an error for an invalid configuration value.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
