package matcher

import (
	"strings"
	"testing"
)

func TestMatchAll_Excludes(t *testing.T) {
	m, err := MatchAll([]string{"*.internal.example.com", "regex:^(dev|staging)-"})
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	tests := []struct {
		hostname string
		want     bool
	}{
		{"app.example.com", true},
		{"example.com", true},
		{"db.internal.example.com", false},
		{"a.b.internal.example.com", false},
		{"internal.example.com", true},
		{"DB.Internal.Example.com.", false},
		{"dev-app.example.com", false},
		{"Staging-api.example.com", false},
		{"app-dev.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			if got := m.Matches(tt.hostname); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.hostname, got, tt.want)
			}
		})
	}
}

func TestMatchAll_NoExcludes(t *testing.T) {
	m, err := MatchAll(nil)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	for _, hostname := range []string{"example.net", "grafana.lab.example.net", "*.example.net"} {
		if !m.Matches(hostname) {
			t.Errorf("expected %q to match", hostname)
		}
	}
}

func TestMatchAll_InvalidPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"glob class", "[abc.example.com"},
		{"regex", "regex:("},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MatchAll([]string{tt.pattern})
			if err == nil {
				t.Fatalf("expected error for %q", tt.pattern)
			}
			if !strings.Contains(err.Error(), tt.pattern) {
				t.Errorf("expected error to name the pattern, got %v", err)
			}
		})
	}
}

func TestDomainMatcher_String(t *testing.T) {
	m, err := MatchAll([]string{"*.local.example.com", "regex:^test-"})
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	if got, want := m.String(), "exclude=[*.local.example.com, regex:^test-]"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	all, _ := MatchAll(nil)
	if got := all.String(); got != "all" {
		t.Errorf("expected %q, got %q", "all", got)
	}
}

func TestGlobToRegex(t *testing.T) {
	tests := []struct {
		glob  string
		input string
		want  bool
	}{
		{"*.com", "example.com", true},
		{"*.com", "foo.bar.com", true},
		{"?.com", "a.com", true},
		{"?.com", "ab.com", false},
		{"[abc].com", "a.com", true},
		{"[abc].com", "d.com", false},
		{"exact.com", "exact.com", true},
		{"exact.com", "other.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.glob+"_"+tt.input, func(t *testing.T) {
			m, err := MatchAll([]string{tt.glob})
			if err != nil {
				t.Fatalf("failed to create matcher: %v", err)
			}
			// An excluded hostname does not match.
			if got := !m.Matches(tt.input); got != tt.want {
				t.Errorf("glob %q against %q = %v, want %v", tt.glob, tt.input, got, tt.want)
			}
		})
	}
}
