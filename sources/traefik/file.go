package traefik

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/rule"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// DefaultFilePattern matches the formats the Traefik file provider accepts.
const DefaultFilePattern = "*.yml,*.yaml,*.toml"

// File reads http.routers.*.rule entries from Traefik dynamic configuration
// files. Middleware, service and TLS sections are ignored.
type File struct {
	name     string
	paths    []string
	patterns []string
	opts     options
}

// NewFile creates a source over paths, each a file or a directory that is
// walked recursively. pattern is a comma-separated list of globs matched
// against file names; empty means DefaultFilePattern.
func NewFile(name string, paths []string, pattern string, opts ...Option) *File {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultFilePattern
	}
	var patterns []string
	for _, p := range strings.Split(pattern, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &File{
		name:     name,
		paths:    paths,
		patterns: patterns,
		opts:     buildOptions(opts),
	}
}

// Name returns the source instance name.
func (f *File) Name() string {
	return f.name
}

// Fetch parses every matching file. A missing path is Unreachable and a file
// that cannot be read or parsed is MalformedResponse; either fails the
// whole fetch.
func (f *File) Fetch(ctx context.Context) ([]source.HostRule, error) {
	files, err := f.collect()
	if err != nil {
		return nil, err
	}

	f.opts.logger.Debug("found traefik config files",
		slog.String("source", f.name),
		slog.Int("count", len(files)),
	)

	var rules []source.HostRule
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, source.NewFetchError(f.name, source.Unreachable, err)
		}

		cfg, err := parseConfigFile(file)
		if err != nil {
			return nil, source.NewFetchError(f.name, source.MalformedResponse, fmt.Errorf("%s: %w", file, err))
		}
		rules = append(rules, f.rulesFrom(cfg, file)...)
	}

	return source.WithTarget(rules, f.opts.target), nil
}

func (f *File) collect() ([]string, error) {
	var files []string
	for _, path := range f.paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, source.NewFetchError(f.name, source.Unreachable, err)
		}

		if info.IsDir() {
			found, err := f.findFilesInDir(path)
			if err != nil {
				return nil, source.NewFetchError(f.name, source.Unreachable, err)
			}
			files = append(files, found...)
			continue
		}
		if f.matchesAnyPattern(filepath.Base(path)) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (f *File) findFilesInDir(dir string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && f.matchesAnyPattern(d.Name()) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", dir, err)
	}
	return matches, nil
}

func (f *File) matchesAnyPattern(name string) bool {
	for _, pattern := range f.patterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

func (f *File) rulesFrom(cfg *fileConfig, path string) []source.HostRule {
	if cfg.HTTP == nil {
		return nil
	}

	var rules []source.HostRule
	for _, name := range sortedKeys(cfg.HTTP.Routers) {
		r := cfg.HTTP.Routers[name]
		if r == nil || r.Rule == "" {
			continue
		}
		rules = append(rules, source.HostRule{
			Source: f.name,
			Router: name + "@file",
			Rule:   r.Rule,
			Syntax: rule.SyntaxV2,
		})
		f.opts.logger.Debug("read router from file",
			slog.String("router", name),
			slog.String("file", path),
		)
	}
	return rules
}

// parseConfigFile detects the format by extension; unknown extensions are
// read as YAML.
func parseConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var cfg fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	return &cfg, nil
}

// fileConfig is the part of a Traefik dynamic configuration we read.
type fileConfig struct {
	HTTP *fileHTTPConfig `yaml:"http" toml:"http"`
}

type fileHTTPConfig struct {
	Routers map[string]*fileRouter `yaml:"routers" toml:"routers"`
}

type fileRouter struct {
	Rule string `yaml:"rule" toml:"rule"`
}
