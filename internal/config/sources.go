package config

import (
	"fmt"
	"log/slog"
	"net/url"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/httputil"
)

// Source types.
const (
	SourceTraefik   = "traefik"
	SourceTraefikV1 = "traefik-v1"
	SourceFile      = "file"
	SourceDocker    = "docker"
)

// SourceTypes lists every supported source type.
var SourceTypes = []string{SourceTraefik, SourceTraefikV1, SourceFile, SourceDocker}

// ClientConfig returns the HTTP client settings for an API source.
func (s *SourceConfig) ClientConfig(logger *slog.Logger) *httputil.ClientConfig {
	return &httputil.ClientConfig{
		Timeout:       s.Timeout,
		TLSSkipVerify: s.TLSSkipVerify,
		Username:      s.Username,
		Password:      s.Password,
		BearerToken:   s.Token,
		Logger:        logger,
	}
}

// validateSource checks the settings each source type requires.
func validateSource(s *SourceConfig) []string {
	var errs []string
	owner := "source " + s.Name

	switch s.Type {
	case SourceTraefik, SourceTraefikV1:
		if s.URL == "" {
			errs = append(errs, owner+": url is required")
		} else if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("%s: url %q must be an http or https URL", owner, s.URL))
		}
		if s.Timeout <= 0 {
			errs = append(errs, owner+": timeout must be positive")
		}
	case SourceFile:
		if len(s.Paths) == 0 {
			errs = append(errs, owner+": paths is required")
		}
	case SourceDocker:
		// DOCKER_HOST and the default socket are used when docker_host is unset.
	case "":
		errs = append(errs, owner+": type is required")
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown type %q (known types: %s)", owner, s.Type, joinTypes(SourceTypes)))
	}

	if s.Target != nil {
		if s.Target.Value == "" {
			errs = append(errs, owner+": target value is required")
		} else {
			errs = append(errs, validateTargetRecordType(owner+": target", s.Target.RecordType, s.Target.Value)...)
		}
	}

	return errs
}
