package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/divemeets-skill-rating/sink"
)

const (
	metricStaleEntries = "DiveMeetsDiverTableStaleEntries"
	metricCheckFailure = "DiveMeetsDiverTableStalenessCheckFailures"
)

var staleAfter time.Duration

func init() {
	staleCmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "Age after which a record counts as stale (overrides config)")
	rootCmd.AddCommand(staleCmd)
}

var staleCmd = &cobra.Command{
	Use:   "stale [--stale-after <duration>]",
	Short: "Counts stored ratings that have not been refreshed recently.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if staleAfter > 0 {
			cfg.StaleAfter = staleAfter
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		out := newSink(registry)
		now := time.Now()
		report := func(failed bool, extra ...sink.Metric) {
			failure := 0.0
			if failed {
				failure = 1
			}
			metrics := append(extra, sink.Metric{
				Namespace: cfg.MetricsNamespace,
				Name:      metricCheckFailure,
				Value:     failure,
				Unit:      sink.UnitCount,
				Timestamp: now,
			})
			if err := out.Emit(ctx, metrics...); err != nil {
				slog.Error("emit staleness metrics", slog.Any("error", err))
			}
		}

		st, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			report(true)
			return err
		}
		defer closeStore()

		cutoff := now.Add(-cfg.StaleAfter)
		count, err := st.CountStale(ctx, cutoff)
		if err != nil {
			report(true)
			return fmt.Errorf("count stale records: %w", err)
		}

		report(false, sink.Metric{
			Namespace: cfg.MetricsNamespace,
			Name:      metricStaleEntries,
			Value:     float64(count),
			Unit:      sink.UnitCount,
			Timestamp: now,
		})
		slog.Info("staleness check complete",
			slog.Int("stale", count),
			slog.Time("cutoff", cutoff),
		)
		return nil
	},
}
