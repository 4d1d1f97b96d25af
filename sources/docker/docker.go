// Package docker implements a proxy source that reads Traefik router labels
// from containers on a Docker daemon, as Traefik's own docker provider does.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
	"gitlab.bluewillows.net/root/traefik-dns/sources/traefik"
)

// dockerAPI is the subset of the Docker client the source uses.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// Source lists containers and reports their traefik.http.routers.*.rule labels.
type Source struct {
	name          string
	client        dockerAPI
	logger        *slog.Logger
	host          string
	target        *source.Target
	cleanupOnStop bool
}

// Option is a functional option for configuring the Source.
type Option func(*Source)

// WithHost sets the Docker host address.
// Examples:
//   - "unix:///var/run/docker.sock" (default Unix socket)
//   - "tcp://docker.example.com:2376" (TLS)
//
// If not set, the client uses DOCKER_HOST or the default socket.
func WithHost(host string) Option {
	return func(s *Source) {
		s.host = host
	}
}

// WithLogger sets a custom slog.Logger for the source.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTarget overrides the zone target for every rule from this source.
func WithTarget(target *source.Target) Option {
	return func(s *Source) {
		s.target = target
	}
}

// WithCleanupOnStop controls whether stopped containers still count.
//
// When true (default) only running containers are read, so a stopped
// container's hostnames are removed. When false stopped containers are read
// too and records only go away once the container is removed.
func WithCleanupOnStop(cleanup bool) Option {
	return func(s *Source) {
		s.cleanupOnStop = cleanup
	}
}

// New creates a Docker source. The client is configured from the
// environment (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH) unless
// WithHost is given.
func New(name string, opts ...Option) (*Source, error) {
	s := newSource(name, nil, opts...)

	clientOpts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if s.host != "" {
		clientOpts = append(clientOpts, dockerclient.WithHost(s.host))
	}
	c, err := dockerclient.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	s.client = c
	return s, nil
}

func newSource(name string, client dockerAPI, opts ...Option) *Source {
	s := &Source{
		name:          name,
		client:        client,
		logger:        slog.Default(),
		cleanupOnStop: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source instance name.
func (s *Source) Name() string {
	return s.name
}

// Fetch lists containers and returns their router rules. Containers with
// traefik.enable=false are skipped. Any daemon error is Unreachable.
func (s *Source) Fetch(ctx context.Context) ([]source.HostRule, error) {
	containers, err := s.client.ContainerList(ctx, container.ListOptions{All: !s.cleanupOnStop})
	if err != nil {
		return nil, source.NewFetchError(s.name, source.Unreachable, fmt.Errorf("listing containers: %w", err))
	}

	sort.Slice(containers, func(i, j int) bool {
		return containerName(containers[i]) < containerName(containers[j])
	})

	var rules []source.HostRule
	for _, c := range containers {
		if !traefik.Enabled(c.Labels) {
			continue
		}
		found := traefik.RulesFromLabels(s.name, c.Labels)
		if len(found) == 0 {
			continue
		}
		s.logger.Debug("read router labels",
			slog.String("container", containerName(c)),
			slog.Int("routers", len(found)),
		)
		rules = append(rules, found...)
	}

	return source.WithTarget(rules, s.target), nil
}

// containerName returns the primary container name without the leading
// slash, falling back to the short ID.
func containerName(c container.Summary) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}
