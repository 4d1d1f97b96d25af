package source

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a source could not be read.
type FetchErrorKind int

const (
	// Unreachable covers transport failures, timeouts and server errors.
	Unreachable FetchErrorKind = iota

	// Unauthorized means the proxy rejected our credentials.
	Unauthorized

	// MalformedResponse means the proxy answered with something we cannot decode.
	MalformedResponse
)

func (k FetchErrorKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unreachable"
	}
}

// FetchError is returned by Source.Fetch. Any FetchError aborts the cycle.
type FetchError struct {
	Source string
	Kind   FetchErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err with source context.
func NewFetchError(source string, kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Source: source, Kind: kind, Err: err}
}

// IsFetchError reports whether err is a *FetchError and returns it.
func IsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	ok := errors.As(err, &fe)
	return fe, ok
}

// DuplicateSourceError indicates a source with the same name already exists.
type DuplicateSourceError struct {
	Name string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("source %q already registered", e.Name)
}
