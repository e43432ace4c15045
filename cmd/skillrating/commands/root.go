// Package commands wires the skillrating subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/divemeets-skill-rating/config"
)

var (
	configPath  string
	verbose     bool
	metricsAddr string

	// cfg and registry are set by the root pre-run and shared by every subcommand.
	cfg      *config.Config
	registry *prometheus.Registry
)

var rootCmd = &cobra.Command{
	Use:           "skillrating",
	Short:         "skillrating computes DiveMeets diver skill ratings from public profile pages.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			loaded.Verbose = verbose
		}
		if cmd.Flags().Changed("metrics-addr") {
			loaded.MetricsAddr = metricsAddr
		}
		cfg = loaded

		logger, level := newLogger(cfg.Verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())

		registry = prometheus.NewRegistry()
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file (defaults to $"+config.EnvConfigFile+")")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
}

// ExecuteContext runs the command tree and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
