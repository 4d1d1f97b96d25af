package source

import (
	"errors"
	"fmt"
	"strings"
)

// Hostname limits per RFC 1123.
const (
	MaxHostnameLength = 253
	MaxLabelLength    = 63
)

// Hostname validation errors.
var (
	ErrHostnameEmpty     = errors.New("hostname is empty")
	ErrHostnameTooLong   = errors.New("hostname exceeds 253 characters")
	ErrLabelTooLong      = errors.New("hostname label exceeds 63 characters")
	ErrLabelEmpty        = errors.New("hostname contains empty label")
	ErrInvalidCharacters = errors.New("hostname contains invalid characters")
	ErrInvalidLabelStart = errors.New("hostname label must start with alphanumeric character")
	ErrInvalidLabelEnd   = errors.New("hostname label must end with alphanumeric character")
)

// HostnameValidationError provides detailed information about validation failures.
type HostnameValidationError struct {
	Hostname string
	Label    string
	Err      error
}

func (e *HostnameValidationError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("invalid hostname %q: label %q: %v", e.Hostname, e.Label, e.Err)
	}
	return fmt.Sprintf("invalid hostname %q: %v", e.Hostname, e.Err)
}

func (e *HostnameValidationError) Unwrap() error {
	return e.Err
}

// ValidateHostname checks that hostname can be published as a DNS owner name.
// A trailing dot is accepted, and a single leading "*" label is allowed for
// wildcard records.
func ValidateHostname(hostname string) error {
	hostname = strings.TrimSuffix(hostname, ".")
	if hostname == "" {
		return &HostnameValidationError{Hostname: hostname, Err: ErrHostnameEmpty}
	}
	if len(hostname) > MaxHostnameLength {
		return &HostnameValidationError{Hostname: hostname, Err: ErrHostnameTooLong}
	}

	for i, label := range strings.Split(hostname, ".") {
		if i == 0 && label == "*" {
			continue
		}
		if err := validateLabel(label); err != nil {
			return &HostnameValidationError{Hostname: hostname, Label: label, Err: err}
		}
	}
	return nil
}

func validateLabel(label string) error {
	switch {
	case label == "":
		return ErrLabelEmpty
	case len(label) > MaxLabelLength:
		return ErrLabelTooLong
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !isAlphanumeric(c) && c != '-' {
			return ErrInvalidCharacters
		}
	}
	if label[0] == '-' {
		return ErrInvalidLabelStart
	}
	if label[len(label)-1] == '-' {
		return ErrInvalidLabelEnd
	}
	return nil
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
