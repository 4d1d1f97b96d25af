// Package matcher implements the hostname exclude patterns of a zone.
// Patterns are globs unless prefixed with "regex:".
package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix marks an exclude pattern as a regular expression.
const RegexPrefix = "regex:"

// DomainMatcher decides whether a hostname is in scope for a zone.
type DomainMatcher struct {
	patterns []string
	excludes []*regexp.Regexp
}

// MatchAll returns a matcher that accepts every hostname not rejected by
// one of excludes.
func MatchAll(excludes []string) (*DomainMatcher, error) {
	m := &DomainMatcher{patterns: excludes}
	for _, p := range excludes {
		re, err := compile(p)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		m.excludes = append(m.excludes, re)
	}
	return m, nil
}

// Matches reports whether hostname matches no exclude pattern.
func (m *DomainMatcher) Matches(hostname string) bool {
	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	for _, re := range m.excludes {
		if re.MatchString(hostname) {
			return false
		}
	}
	return true
}

// String describes the matcher for logs.
func (m *DomainMatcher) String() string {
	if len(m.patterns) == 0 {
		return "all"
	}
	return fmt.Sprintf("exclude=[%s]", strings.Join(m.patterns, ", "))
}

func compile(pattern string) (*regexp.Regexp, error) {
	if expr, ok := strings.CutPrefix(pattern, RegexPrefix); ok {
		return regexp.Compile("(?i)" + expr)
	}
	return regexp.Compile(globToRegex(pattern))
}

// globToRegex converts a hostname glob to an anchored, case-insensitive regex.
// '*' matches any run of characters including dots, '?' matches one
// character within a label and [...] is passed through as a class.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("(?i)^")
	inClass := false
	for _, r := range strings.ToLower(strings.TrimSuffix(glob, ".")) {
		switch {
		case inClass:
			if r == ']' {
				inClass = false
			}
			if r == '\\' {
				b.WriteString(`\\`)
				continue
			}
			b.WriteRune(r)
		case r == '[':
			inClass = true
			b.WriteRune(r)
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteString(`[^.]`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}
