// Package rule extracts hostnames from reverse-proxy router rule expressions.
//
// Two grammars are understood:
//
//   - Traefik v2/v3 expressions such as
//     Host(`a.example.com`, `b.example.com`) && PathPrefix(`/api`)
//   - Traefik v1 frontend rules such as
//     Host:a.example.com,b.example.com;PathPrefix:/api
//
// Only Host and HostHeader matchers contribute hostnames. Every other matcher
// is accepted and ignored so that a rule mixing hosts with paths, headers or
// client IP checks still yields its hosts.
package rule

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Syntax selects the rule grammar.
type Syntax int

const (
	// SyntaxV2 is the functional expression grammar used by Traefik v2 and later.
	SyntaxV2 Syntax = iota

	// SyntaxV1 is the semicolon separated matcher grammar used by Traefik v1.
	SyntaxV1
)

// String returns the syntax name.
func (s Syntax) String() string {
	switch s {
	case SyntaxV1:
		return "v1"
	default:
		return "v2"
	}
}

// ParseError describes a malformed rule expression.
type ParseError struct {
	Rule string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing rule %q at offset %d: %s", e.Rule, e.Pos, e.Msg)
}

// Parse extracts hostnames from a rule written in the given syntax.
// A malformed rule yields no hostnames and a *ParseError.
func Parse(syntax Syntax, expr string) ([]string, error) {
	if syntax == SyntaxV1 {
		return ParseV1(expr)
	}
	return ParseV2(expr)
}

// hostMatcher reports whether a matcher name produces hostnames.
func hostMatcher(name string) bool {
	return strings.EqualFold(name, "Host") || strings.EqualFold(name, "HostHeader")
}

// Canonical lowercases a hostname and strips surrounding whitespace and
// the trailing root dot.
func Canonical(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	return strings.TrimSuffix(dns.CanonicalName(host), ".")
}

// hostSet keeps hostnames in first-seen order without duplicates.
type hostSet struct {
	seen  map[string]struct{}
	hosts []string
}

func (s *hostSet) add(host string) {
	host = Canonical(host)
	if host == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[host]; ok {
		return
	}
	s.seen[host] = struct{}{}
	s.hosts = append(s.hosts, host)
}

func (s *hostSet) list() []string {
	if len(s.hosts) == 0 {
		return nil
	}
	return s.hosts
}
