// Package source defines how routing rules are collected from a reverse proxy.
//
// A Source queries one proxy endpoint (an API, a config directory, a Docker
// daemon) and reports the raw rule of every router it finds. Turning rules
// into hostnames is left to the rule package so sources stay thin.
//
// Example usage:
//
//	registry := source.NewRegistry(logger)
//	registry.Register(traefik.NewAPI("edge", "http://traefik:8080"))
//
//	rules, err := registry.FetchAll(ctx)
//	if err != nil {
//	    // abort the cycle: a partial rule list would look like mass removal
//	}
package source

import (
	"context"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/rule"
)

// Source fetches the current routing rules of a proxy.
//
// Sources should:
//   - Be safe for concurrent use
//   - Return an empty slice (not an error) when the proxy has no routers
//   - Return a *FetchError for every failure so callers can classify it
type Source interface {
	// Name returns the source instance name used in logs and metrics.
	Name() string

	// Fetch returns every router rule currently known to the proxy.
	Fetch(ctx context.Context) ([]HostRule, error)
}

// Target overrides the zone default record for rules from one source.
type Target struct {
	Value      string
	RecordType provider.RecordType
	TTL        int
}

// HostRule is a raw router rule as reported by a proxy.
type HostRule struct {
	// Source is the name of the source that produced the rule.
	Source string

	// Router is the proxy-native router identifier (e.g., "whoami@docker").
	Router string

	// Rule is the unparsed rule expression.
	Rule string

	// Syntax selects the grammar used to parse Rule.
	Syntax rule.Syntax

	// Target, when set, replaces the zone's configured target.
	Target *Target
}

func (h HostRule) String() string {
	if h.Router != "" {
		return h.Source + ":" + h.Router
	}
	return h.Source
}

// Hostnames parses the rule into canonical hostnames.
func (h HostRule) Hostnames() ([]string, error) {
	return rule.Parse(h.Syntax, h.Rule)
}

// WithTarget sets target on every rule in place and returns rules.
// A nil target leaves rules unchanged.
func WithTarget(rules []HostRule, target *Target) []HostRule {
	if target == nil {
		return rules
	}
	for i := range rules {
		rules[i].Target = target
	}
	return rules
}
