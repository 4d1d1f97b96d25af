package provider

import (
	"fmt"
	"strings"
)

// OperationalMode defines how the engine treats records in a zone.
type OperationalMode string

const (
	// ModeManaged is the default mode. Only records carrying this
	// installation's ownership marker are updated or deleted.
	ModeManaged OperationalMode = "managed"

	// ModeAdditive never deletes. Owned records are still created and updated
	// and markers are still written, so switching back to managed later can
	// clean up.
	ModeAdditive OperationalMode = "additive"
)

// ValidModes lists all valid operational modes.
var ValidModes = []OperationalMode{ModeManaged, ModeAdditive}

// ParseOperationalMode parses a string into an OperationalMode.
// Returns ModeManaged if the input is empty.
func ParseOperationalMode(s string) (OperationalMode, error) {
	if s == "" {
		return ModeManaged, nil
	}

	mode := OperationalMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid operational mode %q: must be one of managed, additive", s)
	}
	return mode, nil
}

// IsValid returns true if the mode is a valid operational mode.
func (m OperationalMode) IsValid() bool {
	switch m {
	case ModeManaged, ModeAdditive:
		return true
	default:
		return false
	}
}

// String returns the string representation of the mode.
func (m OperationalMode) String() string {
	return string(m)
}

// AllowsDelete returns true if the mode allows deleting owned records.
func (m OperationalMode) AllowsDelete() bool {
	return m != ModeAdditive
}
