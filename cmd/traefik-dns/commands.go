package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/traefik-dns/internal/metrics"
)

// setup loads the config, installs the logger and wires the components.
// Zone IDs are resolved last, so a bad credential fails here rather than
// in the first cycle.
func setup(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.reconciler.ResolveZones(ctx); err != nil {
		return nil, fmt.Errorf("resolving zones: %w", err)
	}
	return a, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile DNS records on every interval until stopped",
		Long: `Run polls the configured sources every interval and applies the resulting
changes. On SIGINT or SIGTERM no new cycle or retry starts and in-flight
provider calls are allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := setup(ctx, flags)
			if err != nil {
				return err
			}

			a.logger.Info("traefik-dns starting",
				slog.String("version", Version),
				slog.String("build_date", BuildDate),
				slog.String("go_version", runtime.Version()),
				slog.String("owner_id", a.cfg.OwnerID),
				slog.Bool("dry_run", a.cfg.DryRun),
				slog.Int("sources", a.sources.Count()),
				slog.Int("providers", a.providers.Count()),
				slog.Int("zones", a.zones.Len()),
			)

			if err := a.reconciler.Run(ctx); err != nil {
				return err
			}
			a.logger.Info("traefik-dns shutdown complete")
			return nil
		},
	}
}

func newOnceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single reconciliation cycle and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := setup(ctx, flags)
			if err != nil {
				return err
			}

			result, err := a.reconciler.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), result.Summary())

			if outcome := result.Outcome(); outcome != metrics.OutcomeSuccess {
				return fmt.Errorf("cycle %s finished with outcome %s", result.CycleID, outcome)
			}
			return nil
		},
	}
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and resolve every zone",
		Long: `Check loads and validates the configuration, builds every source and
provider and resolves zone IDs. No records are read or written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			a, err := setup(ctx, flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %d sources, %d providers, %d zones\n",
				a.sources.Count(), a.providers.Count(), a.zones.Len())
			for _, zc := range a.zones.All() {
				scope := "all"
				if zc.Matcher != nil {
					scope = zc.Matcher.String()
				}
				fmt.Fprintf(out, "  %s -> %s %s (%s, %s)\n", zc.Zone, zc.RecordType, zc.Target, zc.Mode, scope)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "traefik-dns version %s\nBuilt: %s\nGo: %s\n",
				Version, BuildDate, runtime.Version())
		},
	}
}
