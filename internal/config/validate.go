package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig performs cross-field validation on the complete configuration.
// Returns a list of validation errors.
func validateConfig(cfg *Config) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("interval: must be positive, got %s", cfg.Interval))
	}
	if cfg.CycleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("cycle_timeout: must not be negative, got %s", cfg.CycleTimeout))
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("concurrency: must be at least 1, got %d", cfg.Concurrency))
	}
	if cfg.DefaultTTL < 0 {
		errs = append(errs, fmt.Sprintf("default_ttl: must not be negative, got %d", cfg.DefaultTTL))
	}
	if _, err := ownership.New(cfg.OwnershipPrefix, cfg.OwnerID); err != nil {
		errs = append(errs, "ownership: "+err.Error())
	}
	if err := cfg.Retry.Validate(); err != nil {
		errs = append(errs, "retry: "+err.Error())
	}

	if len(cfg.Sources) == 0 {
		errs = append(errs, "sources: at least one source is required")
	}
	seen := make(map[string]bool)
	for _, s := range cfg.Sources {
		if s.Name == "" {
			errs = append(errs, "source: name is required")
		} else if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate source name: %q", s.Name))
		}
		seen[s.Name] = true
		errs = append(errs, validateSource(s)...)
	}

	if len(cfg.Providers) == 0 {
		errs = append(errs, "providers: at least one provider is required")
	}
	providers := make(map[string]bool)
	for _, p := range cfg.Providers {
		if p.Name == "" {
			errs = append(errs, "provider: name is required")
		} else if providers[p.Name] {
			errs = append(errs, fmt.Sprintf("duplicate provider instance name: %q", p.Name))
		}
		providers[p.Name] = true
		errs = append(errs, validateProvider(p)...)
	}

	if len(cfg.Zones) == 0 {
		errs = append(errs, "zones: at least one zone is required")
	}
	for _, z := range cfg.Zones {
		errs = append(errs, validateZone(z, providers)...)
	}
	if _, err := cfg.ZoneSet(); err != nil {
		var zoneErr *provider.ZoneConfigError
		if errors.As(err, &zoneErr) {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// validateTargetRecordType ensures the target is appropriate for the record type.
func validateTargetRecordType(owner string, rt provider.RecordType, target string) []string {
	var errs []string

	switch rt {
	case provider.RecordTypeA:
		// A records must have an IPv4 address as target
		ip := net.ParseIP(target)
		if ip == nil || ip.To4() == nil {
			errs = append(errs, fmt.Sprintf("%s: A records must point to an IPv4 address, got %q", owner, target))
		}
	case provider.RecordTypeAAAA:
		// AAAA records must have an IPv6 address as target
		ip := net.ParseIP(target)
		if ip == nil || ip.To4() != nil {
			errs = append(errs, fmt.Sprintf("%s: AAAA records must point to an IPv6 address, got %q", owner, target))
		}
	case provider.RecordTypeCNAME:
		// CNAME records must have a hostname, not an IP
		if net.ParseIP(target) != nil {
			errs = append(errs, fmt.Sprintf("%s: CNAME records cannot point to IP addresses, got %q", owner, target))
		}
	case provider.RecordTypeTXT:
		// TXT records have flexible targets, no validation needed
	}

	return errs
}

// validateProviderType checks that the provider type is known.
func validateProviderType(typeName string, knownTypes []string) error {
	for _, known := range knownTypes {
		if typeName == known {
			return nil
		}
	}
	return fmt.Errorf("unknown provider type: %q (known types: %s)", typeName, joinTypes(knownTypes))
}
