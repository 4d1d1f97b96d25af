package config

import (
	"fmt"
	"os"
	"strings"
)

// fileSuffix marks a provider config key whose value is a path to read.
const fileSuffix = "_FILE"

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// readSecretFile returns the trimmed contents of path (Docker secrets pattern).
func readSecretFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(content)), nil
}

// resolveFileSecrets upper-cases every key of raw and replaces KEY_FILE
// entries with KEY set to the file contents.
//
// If both KEY and KEY_FILE are set, the file takes precedence. This allows
// local development with direct values while production uses Docker secrets.
func resolveFileSecrets(owner string, raw map[string]string) (map[string]string, []string) {
	var errs []string
	out := make(map[string]string, len(raw))

	for k, v := range raw {
		out[strings.ToUpper(k)] = v
	}

	for key, path := range out {
		if !strings.HasSuffix(key, fileSuffix) {
			continue
		}
		delete(out, key)
		if path == "" {
			continue
		}
		value, err := readSecretFile(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s: %v", owner, strings.ToLower(key), err))
			continue
		}
		out[strings.TrimSuffix(key, fileSuffix)] = value
	}

	return out, errs
}

// secretOrFile returns the contents of path when set, otherwise value.
func secretOrFile(owner, field, value, path string) (string, []string) {
	if path == "" {
		return value, nil
	}
	content, err := readSecretFile(path)
	if err != nil {
		return value, []string{fmt.Sprintf("%s: %s_file: %v", owner, field, err)}
	}
	return content, nil
}

// parseBool parses a boolean string, returning defaultValue on parse failure.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string, defaultValue bool) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}
