package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"gitlab.bluewillows.net/root/traefik-dns/internal/applier"
	"gitlab.bluewillows.net/root/traefik-dns/internal/config"
	"gitlab.bluewillows.net/root/traefik-dns/internal/metrics"
	"gitlab.bluewillows.net/root/traefik-dns/internal/ownership"
	"gitlab.bluewillows.net/root/traefik-dns/internal/reconciler"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/httputil"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
	"gitlab.bluewillows.net/root/traefik-dns/providers/cloudflare"
	"gitlab.bluewillows.net/root/traefik-dns/providers/rfc2136"
	"gitlab.bluewillows.net/root/traefik-dns/providers/route53"
	"gitlab.bluewillows.net/root/traefik-dns/sources/docker"
	"gitlab.bluewillows.net/root/traefik-dns/sources/traefik"
)

// app holds the wired components for one process.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	sources    *source.Registry
	providers  *provider.Registry
	zones      *provider.ZoneSet
	reconciler *reconciler.Reconciler
}

// loadConfig loads the config file named by the flags and applies the
// command-line overrides.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(config.Path(flags.configPath))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if flags.dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

// newApp builds every component from cfg. Nothing here talks to Traefik or
// a provider; zone IDs are resolved separately.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	metrics.SetBuildInfo(Version, runtime.Version())

	providers := provider.NewRegistry(logger)
	registerProviderFactories(providers, logger)
	for _, p := range cfg.Providers {
		if err := providers.CreateInstance(p.Name, p.Type, p.Config, p.GuardOptions(metrics.ObserveProviderCall)); err != nil {
			return nil, fmt.Errorf("creating provider instances: %w", err)
		}
	}

	sources := source.NewRegistry(logger)
	for _, s := range cfg.Sources {
		src, err := newSource(s, logger.With(slog.String("source", s.Name)))
		if err != nil {
			return nil, fmt.Errorf("creating source %s: %w", s.Name, err)
		}
		if err := sources.Register(src); err != nil {
			return nil, fmt.Errorf("registering sources: %w", err)
		}
	}

	zones, err := cfg.ZoneSet()
	if err != nil {
		return nil, fmt.Errorf("building zone mapping: %w", err)
	}

	tracker, err := ownership.New(cfg.OwnershipPrefix, cfg.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("creating ownership tracker: %w", err)
	}

	apply := applier.New(providers, tracker,
		applier.WithLogger(logger),
		applier.WithPolicy(cfg.Retry),
		applier.WithConcurrency(cfg.Concurrency),
		applier.WithBatchSizes(cfg.BatchSizes()),
		applier.WithDryRun(cfg.DryRun),
	)

	opts := []reconciler.Option{
		reconciler.WithLogger(logger),
		reconciler.WithConfig(reconciler.Config{
			Interval:     cfg.Interval,
			CycleTimeout: cfg.CycleTimeout,
			Concurrency:  cfg.Concurrency,
			ListPolicy:   cfg.Retry,
		}),
	}
	if cfg.Metrics.PushURL != "" {
		pusher := metrics.NewPusher(cfg.Metrics.PushURL, cfg.Metrics.Job, metrics.WithInstance(cfg.Metrics.Instance))
		opts = append(opts, reconciler.WithPusher(pusher))
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		sources:    sources,
		providers:  providers,
		zones:      zones,
		reconciler: reconciler.New(sources, providers, zones, tracker, apply, opts...),
	}, nil
}

func registerProviderFactories(registry *provider.Registry, logger *slog.Logger) {
	// Public DNS
	registry.RegisterFactory(route53.TypeName, route53.Factory(logger))
	registry.RegisterFactory(cloudflare.TypeName, cloudflare.Factory(logger))

	// Authoritative servers accepting dynamic updates (BIND, Knot, PowerDNS)
	registry.RegisterFactory(rfc2136.TypeName, rfc2136.Factory(logger))
}

func newSource(s *config.SourceConfig, logger *slog.Logger) (source.Source, error) {
	switch s.Type {
	case config.SourceTraefik:
		client := httputil.NewClient(s.ClientConfig(logger))
		return traefik.NewAPI(s.Name, s.URL,
			traefik.WithLogger(logger),
			traefik.WithHTTPClient(client),
			traefik.WithTarget(s.Target),
			traefik.WithPageSize(s.PageSize),
		)
	case config.SourceTraefikV1:
		client := httputil.NewClient(s.ClientConfig(logger))
		return traefik.NewV1API(s.Name, s.URL,
			traefik.WithLogger(logger),
			traefik.WithHTTPClient(client),
			traefik.WithTarget(s.Target),
		)
	case config.SourceFile:
		return traefik.NewFile(s.Name, s.Paths, s.Pattern,
			traefik.WithLogger(logger),
			traefik.WithTarget(s.Target),
		), nil
	case config.SourceDocker:
		return docker.New(s.Name,
			docker.WithHost(s.DockerHost),
			docker.WithLogger(logger),
			docker.WithTarget(s.Target),
			docker.WithCleanupOnStop(s.CleanupOnStop),
		)
	default:
		return nil, fmt.Errorf("unknown source type %q", s.Type)
	}
}
