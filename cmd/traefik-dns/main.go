// traefik-dns keeps DNS records at one or more providers in line with the
// hostnames routed by Traefik. It polls Traefik routers, works out the
// records they imply and applies the difference, touching only records it
// has marked as its own.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags shared by every subcommand.
type rootFlags struct {
	configPath string
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "traefik-dns",
		Short: "Publish Traefik router hostnames as DNS records",
		Long: `traefik-dns reads the routing rules of a Traefik instance, derives the DNS
records they imply and keeps Route53, Cloudflare or RFC 2136 zones in line
with them. Records are only changed or removed when an ownership TXT marker
shows this installation created them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("traefik-dns version %s\nBuilt: %s\n", Version, BuildDate))

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"config file (default $TRAEFIKDNS_CONFIG or /etc/traefik-dns/config.yml)")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false,
		"plan and log changes without calling providers")

	root.AddCommand(
		newRunCmd(flags),
		newOnceCmd(flags),
		newCheckCmd(flags),
		newVersionCmd(),
	)
	return root
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
