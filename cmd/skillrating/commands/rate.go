package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/divemeets-skill-rating/config"
	"github.com/aluiziolira/divemeets-skill-rating/ids"
	"github.com/aluiziolira/divemeets-skill-rating/parser"
	"github.com/aluiziolira/divemeets-skill-rating/pipeline"
	"github.com/aluiziolira/divemeets-skill-rating/scoring"
	"github.com/aluiziolira/divemeets-skill-rating/scraper"
	"github.com/aluiziolira/divemeets-skill-rating/sink"
)

var rateFlags struct {
	idsFile      string
	start, end   int
	parallelism  int
	output       string
	outputFormat string
}

func init() {
	flags := rateCmd.Flags()
	flags.StringVar(&rateFlags.idsFile, "ids-file", "", "Newline-delimited list of diver identifiers")
	flags.IntVar(&rateFlags.start, "start", 0, "First identifier of the range (inclusive)")
	flags.IntVar(&rateFlags.end, "end", 0, "End of the identifier range (exclusive)")
	flags.IntVar(&rateFlags.parallelism, "parallel", 0, "Concurrent fetches (overrides config)")
	flags.StringVar(&rateFlags.output, "output", "", "Export rated records to this file")
	flags.StringVar(&rateFlags.outputFormat, "format", "", "Export format: csv, json, or dual")
	rateCmd.MarkFlagsMutuallyExclusive("ids-file", "start")
	rateCmd.MarkFlagsRequiredTogether("start", "end")
	rootCmd.AddCommand(rateCmd)
}

var rateCmd = &cobra.Command{
	Use:   "rate (--ids-file <path> | --start <n> --end <m>)",
	Short: "Fetches, rates and stores every diver in a batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if rateFlags.parallelism > 0 {
			cfg.Parallelism = rateFlags.parallelism
		}
		if rateFlags.output != "" {
			cfg.OutputFile = rateFlags.output
			if cfg.OutputFormat == "" {
				cfg.OutputFormat = "csv"
			}
		}
		if rateFlags.outputFormat != "" {
			cfg.OutputFormat = strings.ToLower(rateFlags.outputFormat)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		list, err := identifiers(cmd, rateFlags.idsFile, rateFlags.start, rateFlags.end)
		if err != nil {
			return err
		}

		st, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		dives, err := loadDiveTable(cfg)
		if err != nil {
			return err
		}

		fetcher, profileParser, err := newFetchParser(cfg)
		if err != nil {
			return err
		}

		writer, err := pipeline.NewOutputWriter(cfg.OutputFormat, cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("create writer: %w", err)
		}

		stopMetrics := startMetricsServer(cfg.MetricsAddr, registry)
		defer stopMetrics()

		opts := []pipeline.Option{
			pipeline.WithLogger(slog.Default()),
			pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		}
		if writer != nil {
			opts = append(opts, pipeline.WithWriter(writer))
		}
		processor := pipeline.New(cfg, fetcher, profileParser, scoring.NewEngine(dives), st, opts...)

		slog.Info("starting batch",
			slog.Int("identifiers", len(list)),
			slog.Int("parallelism", cfg.Parallelism),
			slog.Int("workers", cfg.Workers),
		)
		result, runErr := processor.Run(ctx, list)
		if result == nil {
			return runErr
		}

		if writer != nil {
			if err := writer.Validate(); err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("output validation: %w", err))
			}
			if err := writer.Close(); err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("close writer: %w", err))
			}
		}

		metrics := sink.FromCounts(cfg.MetricsNamespace, result.Counts(), time.Now())
		if err := newSink(registry).Emit(ctx, metrics...); err != nil {
			slog.Error("emit batch metrics", slog.Any("error", err))
		}

		printSummary("Skill rating batch", result)
		return runErr
	},
}

// identifiers resolves the batch from either a list file or a [start, end) range.
func identifiers(cmd *cobra.Command, idsFile string, start, end int) ([]string, error) {
	switch {
	case idsFile != "":
		return ids.ReadFile(idsFile)
	case cmd.Flags().Changed("start"):
		return ids.Range(start, end)
	default:
		return nil, errors.New("either --ids-file or --start/--end is required")
	}
}

func newFetchParser(cfg *config.Config) (*scraper.Fetcher, *parser.Parser, error) {
	fetcher, err := scraper.NewFetcher(cfg,
		scraper.WithLogger(slog.Default()),
		scraper.WithMetrics(scraper.NewMetrics(registry)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise fetcher: %w", err)
	}

	linkBase, err := url.Parse(cfg.LinkBaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse link base url: %w", err)
	}
	return fetcher, parser.New(parser.WithLogger(slog.Default()), parser.WithLinkBase(linkBase)), nil
}
