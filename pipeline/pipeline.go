// Package pipeline drives fetch, parse, score and upsert over a batch of diver identifiers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aluiziolira/divemeets-skill-rating/config"
	"github.com/aluiziolira/divemeets-skill-rating/ids"
	"github.com/aluiziolira/divemeets-skill-rating/models"
	"github.com/aluiziolira/divemeets-skill-rating/scoring"
	"github.com/aluiziolira/divemeets-skill-rating/scraper"
	"github.com/aluiziolira/divemeets-skill-rating/store"
)

var (
	// ErrMissingRequiredField marks an identifier skipped because its profile lacks a section.
	ErrMissingRequiredField = errors.New("pipeline: missing required field")
	// ErrInvalidIdentifier is returned before any fetch when the batch holds a bad identifier.
	ErrInvalidIdentifier = errors.New("pipeline: invalid identifier")
)

// Skip reasons recorded in BatchResult.SkippedByReason.
const (
	ReasonMissingInfo       = "missing_info"
	ReasonMissingGender     = "missing_gender"
	ReasonMissingStatistics = "missing_statistics"
)

// OutputWriter defines the interface for rating export.
type OutputWriter interface {
	Write(records []*models.DiverRecord) error
	Close() error
	Validate() error
}

// Fetcher resolves identifiers to page content, reporting results in completion order.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) <-chan scraper.Result
}

// Parser turns page content into a profile.
type Parser interface {
	Parse(content []byte) (*models.Profile, error)
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the batch logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWriter exports every rated record through w.
func WithWriter(w OutputWriter) Option {
	return func(p *Processor) {
		p.writer = w
	}
}

// WithMetrics records batch outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// Processor runs batches. A failure on one identifier never stops the rest of the batch.
type Processor struct {
	cfg     *config.Config
	fetcher Fetcher
	parser  Parser
	engine  *scoring.Engine
	store   store.Store
	writer  OutputWriter
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New builds a processor. st may be nil for runs that never upsert, such as Discover.
func New(cfg *config.Config, fetcher Fetcher, parser Parser, engine *scoring.Engine, st store.Store, opts ...Option) *Processor {
	p := &Processor{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  parser,
		engine:  engine,
		store:   st,
		logger:  slog.Default(),
		tracer:  otel.Tracer("divemeets-skill-rating/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type outcomeKind int

const (
	kindRated outcomeKind = iota
	kindFetchFailed
	kindParseFailed
	kindSkipped
	kindWriteFailed
	kindEligible
	kindIneligible
)

func (k outcomeKind) String() string {
	switch k {
	case kindRated:
		return "rated"
	case kindFetchFailed:
		return "fetch_failed"
	case kindParseFailed:
		return "parse_failed"
	case kindSkipped:
		return "skipped"
	case kindWriteFailed:
		return "write_failed"
	case kindEligible:
		return "eligible"
	default:
		return "ineligible"
	}
}

type outcome struct {
	kind   outcomeKind
	reason string
	record *models.DiverRecord
	err    error
}

// item is one completed fetch with its 1-based completion index.
type item struct {
	index  int
	result scraper.Result
}

type itemFunc func(ctx context.Context, logger *slog.Logger, res scraper.Result) outcome

// Run rates every identifier and upserts the results. The returned error is non-nil only
// for a precondition failure, before any fetch, or for an export failure after the batch.
func (p *Processor) Run(ctx context.Context, list []string) (*models.BatchResult, error) {
	if p.store == nil {
		return nil, errors.New("pipeline: rate run needs a store")
	}

	var (
		pending []*models.DiverRecord
		werr    error
	)
	flush := func() {
		if p.writer == nil || len(pending) == 0 || werr != nil {
			pending = pending[:0]
			return
		}
		if err := p.writer.Write(pending); err != nil {
			werr = fmt.Errorf("write batch: %w", err)
			p.logger.Error("export failed", slog.Any("error", err))
		}
		pending = pending[:0]
	}

	result, err := p.run(ctx, list, p.rate, func(o outcome) {
		if o.kind != kindRated || p.writer == nil {
			return
		}
		pending = append(pending, o.record)
		if len(pending) >= p.batchSize() {
			flush()
		}
	})
	if err != nil {
		return nil, err
	}
	flush()
	return result, werr
}

func (p *Processor) rate(ctx context.Context, logger *slog.Logger, res scraper.Result) outcome {
	profile, err := p.parser.Parse(res.Content)
	if err != nil {
		logger.Error("could not parse profile", slog.Any("error", err))
		return outcome{kind: kindParseFailed, err: err}
	}
	if o, skip := missingSection(logger, profile); skip {
		return o
	}

	rating := p.engine.Rate(profile.DiveStatistics)
	rec := models.NewDiverRecord(res.ID, profile.Info, rating)

	stored, saved, err := store.Upsert(ctx, p.store, rec)
	if err != nil {
		logger.Error("could not write record", slog.Any("error", err))
		return outcome{kind: kindWriteFailed, err: err}
	}
	logger.Debug("rated",
		slog.Float64("springboard", rating.Springboard),
		slog.Float64("platform", rating.Platform),
		slog.Float64("total", rating.Total),
		slog.String("store", string(stored)),
	)
	return outcome{kind: kindRated, reason: string(stored), record: saved}
}

// missingSection reports the first required profile section that is absent.
func missingSection(logger *slog.Logger, profile *models.Profile) (outcome, bool) {
	skip := func(reason, msg string) (outcome, bool) {
		logger.Warn(msg, slog.String("reason", reason))
		return outcome{
			kind:   kindSkipped,
			reason: reason,
			err:    fmt.Errorf("%w: %s", ErrMissingRequiredField, reason),
		}, true
	}
	switch {
	case !profile.HasInfo():
		return skip(ReasonMissingInfo, "could not get info")
	case profile.Info.Gender == nil:
		return skip(ReasonMissingGender, "could not get gender")
	case !profile.HasStatistics() || len(profile.DiveStatistics) == 0:
		return skip(ReasonMissingStatistics, "could not get stats")
	}
	return outcome{}, false
}

// run validates and dedupes the batch, fans completed fetches out to workers, aggregates
// outcomes and logs progress. collect is called serially for every handled identifier.
func (p *Processor) run(ctx context.Context, list []string, fn itemFunc, collect func(outcome)) (*models.BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, id := range list {
		if err := ids.Validate(id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
		}
	}

	unique, duplicates, err := p.dedupe(list)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))

	if p.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.BatchTimeout)
		defer cancel()
	}

	result := &models.BatchResult{
		RunID:           runID,
		StartTime:       time.Now(),
		Total:           len(list),
		Duplicates:      duplicates,
		SkippedByReason: make(map[string]int),
		FetchErrors:     make(map[string]int),
		Outcomes:        make(map[string]int),
	}
	p.metrics.AddDuplicates(duplicates)
	logger.Info("batch started",
		slog.Int("total", len(list)),
		slog.Int("unique", len(unique)),
		slog.Int("duplicates", duplicates),
	)

	progress := newProgress(logger, len(unique), p.cfg.ProgressEvery, result.StartTime)
	items := make(chan item)
	var (
		mu        sync.Mutex
		completed int64
		wg        sync.WaitGroup
	)

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range items {
				o := p.handle(ctx, logger, len(unique), it, fn)

				mu.Lock()
				record(result, it.result.ID, o)
				if collect != nil {
					collect(o)
				}
				mu.Unlock()

				p.metrics.IncOutcome(o.kind.String())
				progress.tick()
			}
		}()
	}

	for res := range p.fetcher.Fetch(ctx, unique) {
		items <- item{index: int(atomic.AddInt64(&completed, 1)), result: res}
	}
	close(items)
	wg.Wait()

	result.EndTime = time.Now()
	p.metrics.ObserveBatch(result.Duration())
	logger.Info(fmt.Sprintf("Took %.2f s", result.Duration().Seconds()),
		slog.Int("processed", result.Processed),
		slog.Int("rated", result.Rated),
		slog.Int("fetch_failed", result.FetchFailed),
		slog.Int("parse_failed", result.ParseFailed),
		slog.Int("skipped", result.Skipped()),
		slog.Int("write_failed", result.WriteFailed),
	)
	return result, nil
}

func (p *Processor) dedupe(list []string) ([]string, int, error) {
	size := p.cfg.DedupeMaxSize
	if size <= 0 {
		size = len(list) + 1
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, 0, fmt.Errorf("dedupe cache: %w", err)
	}

	unique := make([]string, 0, len(list))
	duplicates := 0
	for _, id := range list {
		if ok, _ := seen.ContainsOrAdd(id, struct{}{}); ok {
			duplicates++
			continue
		}
		unique = append(unique, id)
	}
	return unique, duplicates, nil
}

// handle runs fn for one identifier inside a span, recovering any panic into a failure.
func (p *Processor) handle(ctx context.Context, logger *slog.Logger, total int, it item, fn itemFunc) (o outcome) {
	res := it.result
	logger = logger.With(
		slog.String("id", res.ID),
		slog.Int("index", it.index),
		slog.Int("total", total),
	)

	ctx, span := p.tracer.Start(ctx, "process_id", trace.WithAttributes(
		attribute.String("diver.id", res.ID),
		attribute.Int("batch.index", it.index),
	))
	defer func() {
		span.SetAttributes(attribute.String("outcome", o.kind.String()))
		if o.err != nil && o.kind != kindSkipped {
			span.RecordError(o.err)
			span.SetStatus(codes.Error, o.err.Error())
		}
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing identifier", slog.Any("panic", r))
			o = outcome{kind: kindParseFailed, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if res.Err != nil {
		label := scraper.ErrorLabel(res.Err)
		logger.Warn("could not get profile", slog.String("category", label), slog.Any("error", res.Err))
		return outcome{kind: kindFetchFailed, reason: label, err: res.Err}
	}
	return fn(ctx, logger, res)
}

func record(result *models.BatchResult, id string, o outcome) {
	result.Processed++
	switch o.kind {
	case kindRated:
		result.Rated++
		result.Outcomes[o.reason]++
	case kindFetchFailed:
		result.FetchFailed++
		result.FetchErrors[o.reason]++
		result.FailedIDs = append(result.FailedIDs, id)
	case kindParseFailed:
		result.ParseFailed++
		result.FailedIDs = append(result.FailedIDs, id)
	case kindSkipped:
		result.SkippedByReason[o.reason]++
	case kindWriteFailed:
		result.WriteFailed++
		result.FailedIDs = append(result.FailedIDs, id)
	case kindEligible, kindIneligible:
		result.Outcomes[o.kind.String()]++
	}
}

func (p *Processor) batchSize() int {
	if p.cfg.BatchSize <= 0 {
		return 1
	}
	return p.cfg.BatchSize
}

// progress logs a throughput line every N completed identifiers.
type progress struct {
	logger *slog.Logger
	total  int
	every  int
	start  time.Time

	mu   sync.Mutex
	done int
	last time.Time
}

func newProgress(logger *slog.Logger, total, every int, start time.Time) *progress {
	return &progress{logger: logger, total: total, every: every, start: start, last: start}
}

func (pr *progress) tick() {
	if pr.every <= 0 {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.done++
	if pr.done%pr.every != 0 {
		return
	}
	now := time.Now()
	window, elapsed := now.Sub(pr.last), now.Sub(pr.start)
	pr.last = now
	pr.logger.Info(
		fmt.Sprintf("[%d/%d] Last %d: %.2f s, Elapsed: %.2f s",
			pr.done, pr.total, pr.every, window.Seconds(), elapsed.Seconds()),
		slog.Int("done", pr.done),
		slog.Duration("window", window),
		slog.Duration("elapsed", elapsed),
	)
}
