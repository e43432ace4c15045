package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/divemeets-skill-rating/ids"
	"github.com/aluiziolira/divemeets-skill-rating/pipeline"
)

var discoverFlags struct {
	start, end int
	output     string
}

func init() {
	flags := discoverCmd.Flags()
	flags.IntVar(&discoverFlags.start, "start", 0, "First identifier to scan (inclusive)")
	flags.IntVar(&discoverFlags.end, "end", 0, "End of the scan range (exclusive)")
	flags.StringVar(&discoverFlags.output, "output", "", "Write eligible identifiers here instead of stdout")
	_ = discoverCmd.MarkFlagRequired("start")
	_ = discoverCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover --start <n> --end <m> [--output <path>]",
	Short: "Scans an identifier range and lists divers inside the eligibility window.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		list, err := ids.Range(discoverFlags.start, discoverFlags.end)
		if err != nil {
			return err
		}

		fetcher, profileParser, err := newFetchParser(cfg)
		if err != nil {
			return err
		}

		stopMetrics := startMetricsServer(cfg.MetricsAddr, registry)
		defer stopMetrics()

		processor := pipeline.New(cfg, fetcher, profileParser, nil, nil,
			pipeline.WithLogger(slog.Default()),
			pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		)
		window := pipeline.EligibilityFromConfig(cfg)
		eligible, result, err := processor.Discover(ctx, list, window)
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if discoverFlags.output != "" {
			f, err := os.Create(discoverFlags.output)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := ids.WriteList(out, eligible); err != nil {
			return err
		}

		slog.Info("discovery complete",
			slog.Int("scanned", len(list)),
			slog.Int("eligible", len(eligible)),
			slog.String("output", discoverFlags.output),
		)
		if discoverFlags.output != "" {
			printSummary("Eligible diver discovery", result)
		}
		return nil
	},
}
