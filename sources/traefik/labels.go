package traefik

import (
	"sort"
	"strings"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/rule"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

const (
	routerLabelPrefix = "traefik.http.routers."
	routerRuleSuffix  = ".rule"
	enableLabel       = "traefik.enable"
)

// RouterRules returns the router rules declared in container labels,
// keyed by router name. Labels look like traefik.http.routers.<name>.rule.
func RouterRules(labels map[string]string) map[string]string {
	rules := make(map[string]string)
	for key, value := range labels {
		name, ok := routerName(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		rules[name] = value
	}
	return rules
}

// Enabled reports whether the labels leave the container exposed. Traefik
// exposes containers by default; traefik.enable=false opts out.
func Enabled(labels map[string]string) bool {
	v, ok := labels[enableLabel]
	if !ok {
		return true
	}
	return !strings.EqualFold(strings.TrimSpace(v), "false")
}

// RulesFromLabels converts container labels into host rules named
// "<router>@docker", in router order.
func RulesFromLabels(sourceName string, labels map[string]string) []source.HostRule {
	byRouter := RouterRules(labels)
	names := make([]string, 0, len(byRouter))
	for name := range byRouter {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]source.HostRule, 0, len(names))
	for _, name := range names {
		rules = append(rules, source.HostRule{
			Source: sourceName,
			Router: name + "@docker",
			Rule:   byRouter[name],
			Syntax: rule.SyntaxV2,
		})
	}
	return rules
}

// routerName extracts "myapp" from "traefik.http.routers.myapp.rule".
func routerName(label string) (string, bool) {
	if !strings.HasPrefix(label, routerLabelPrefix) || !strings.HasSuffix(label, routerRuleSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(label, routerLabelPrefix), routerRuleSuffix)
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}
