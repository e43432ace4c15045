package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/divemeets-skill-rating/config"
	"github.com/aluiziolira/divemeets-skill-rating/divetable"
	"github.com/aluiziolira/divemeets-skill-rating/models"
	"github.com/aluiziolira/divemeets-skill-rating/sink"
	"github.com/aluiziolira/divemeets-skill-rating/store"
)

// recordStore is what the commands need from a backend: the record contract plus staleness.
type recordStore interface {
	store.Store
	store.StaleCounter
}

// openStore picks the hosted GraphQL API when an endpoint is configured and the local
// SQLite file otherwise. The returned func releases the store.
func openStore(ctx context.Context, cfg *config.Config) (recordStore, func(), error) {
	if cfg.GraphQLEndpoint != "" {
		slog.Info("using graphql store", slog.String("endpoint", cfg.GraphQLEndpoint))
		return store.NewGraphQLStore(cfg.GraphQLEndpoint, cfg.GraphQLAPIKey), func() {}, nil
	}

	s, err := store.OpenSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using sqlite store", slog.String("path", cfg.DatabasePath))
	return s, func() {
		if err := s.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}, nil
}

func loadDiveTable(cfg *config.Config) (*divetable.Table, error) {
	if cfg.DiveTablePath == "" {
		return divetable.Default()
	}
	return divetable.LoadFile(cfg.DiveTablePath)
}

func newSink(reg prometheus.Registerer) sink.Sink {
	return sink.Multi{
		sink.NewPrometheusSink(reg),
		sink.LogSink{Logger: slog.Default()},
	}
}

// startMetricsServer serves reg on addr until the returned stop func is called.
// An empty addr disables the server.
func startMetricsServer(addr string, reg *prometheus.Registry) func() {
	if addr == "" {
		return func() {}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func printSummary(title string, result *models.BatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Metric", "Value"})

	t.AppendRow(table.Row{"Run ID", result.RunID})
	t.AppendRow(table.Row{"Identifiers", result.Total})
	t.AppendRow(table.Row{"Duplicates", result.Duplicates})
	t.AppendRow(table.Row{"Processed", result.Processed})
	t.AppendRow(table.Row{"Rated", result.Rated})
	t.AppendRow(table.Row{"Fetch failed", result.FetchFailed})
	t.AppendRow(table.Row{"Parse failed", result.ParseFailed})
	t.AppendRow(table.Row{"Write failed", result.WriteFailed})
	t.AppendRow(table.Row{"Skipped", result.Skipped()})
	t.AppendSeparator()

	appendBreakdown(t, "Skipped", result.SkippedByReason)
	appendBreakdown(t, "Fetch error", result.FetchErrors)
	appendBreakdown(t, "Outcome", result.Outcomes)

	t.AppendFooter(table.Row{"Duration", result.Duration().Round(time.Millisecond)})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if failed := result.SortedFailedIDs(); len(failed) > 0 {
		fmt.Fprintf(os.Stdout, "Failed identifiers: %s\n", strings.Join(failed, ", "))
	}
}

func appendBreakdown(t table.Writer, prefix string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{prefix + ": " + k, counts[k]})
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
