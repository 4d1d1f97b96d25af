package config

import "testing"

func TestPath(t *testing.T) {
	t.Setenv("TRAEFIKDNS_CONFIG", "")
	if got := Path(""); got != DefaultConfigPath {
		t.Errorf("expected default path, got %q", got)
	}

	t.Setenv("TRAEFIKDNS_CONFIG", "/env/config.toml")
	if got := Path(""); got != "/env/config.toml" {
		t.Errorf("expected env path, got %q", got)
	}
	if got := Path("/flag/config.yml"); got != "/flag/config.yml" {
		t.Errorf("expected flag path to win, got %q", got)
	}
}
