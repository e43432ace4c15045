// Package scraper fetches DiveMeets profile pages concurrently.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/divemeets-skill-rating/config"
)

const (
	idKey    = "id"
	batchKey = "batch"
	startKey = "start"
)

// Result is the outcome of fetching one profile. Exactly one of Content and Err is set.
type Result struct {
	ID         string
	URL        string
	Content    []byte
	StatusCode int
	Duration   time.Duration
	Err        error
}

// OK reports whether the page was fetched.
func (r Result) OK() bool {
	return r.Err == nil
}

// Stats is a snapshot of the fetcher's counters.
type Stats struct {
	Requests     int
	Errors       int
	ErrorsByType map[string]int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger routes fetch diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics replaces the fetcher's metrics.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.Metrics = m
	}
}

// WithTransport swaps the HTTP transport used by the collector.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		if rt != nil {
			f.collector.WithTransport(rt)
		}
	}
}

// Fetcher wraps a colly collector that fetches one profile page per identifier.
type Fetcher struct {
	cfg       *config.Config
	profile   *url.URL
	collector *colly.Collector
	logger    *slog.Logger
	Metrics   *Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int

	fetchMu      sync.Mutex
	handlersOnce sync.Once
}

// batch carries the per-call state a request needs to report its result.
type batch struct {
	ctx     context.Context
	results chan Result
	slots   chan struct{}
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("parse profile url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("profile url must include a host")
	}
	if cfg.Parallelism <= 0 {
		return nil, fmt.Errorf("parallelism must be positive")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	// Every status reaches OnResponse so the fetcher, not colly, decides what counts as success.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Parallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{
		cfg:          cfg,
		profile:      parsed,
		collector:    collector,
		logger:       slog.Default(),
		errorsByType: make(map[string]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ProfileURL returns the profile page address for id.
func (f *Fetcher) ProfileURL(id string) string {
	u := *f.profile
	q := u.Query()
	q.Set("number", id)
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch requests every identifier and streams one Result per identifier in completion order.
// At most Parallelism requests are in flight. The channel is closed once every identifier has
// been reported; callers must drain it. When ctx ends, identifiers not yet requested are
// reported with ErrCanceled.
func (f *Fetcher) Fetch(ctx context.Context, ids []string) <-chan Result {
	if ctx == nil {
		ctx = context.Background()
	}
	f.configureHandlers()

	b := &batch{
		ctx:     ctx,
		results: make(chan Result, f.cfg.Parallelism),
		slots:   make(chan struct{}, 2*f.cfg.Parallelism),
	}

	go func() {
		f.fetchMu.Lock()
		defer f.fetchMu.Unlock()
		defer close(b.results)

		f.submit(b, ids)
		f.collector.Wait()
	}()
	return b.results
}

func (f *Fetcher) submit(b *batch, ids []string) {
	for i, id := range ids {
		select {
		case <-b.ctx.Done():
			for _, rest := range ids[i:] {
				b.results <- Result{ID: rest, URL: f.ProfileURL(rest), Err: ErrCanceled{Err: b.ctx.Err()}}
			}
			return
		case b.slots <- struct{}{}:
		}

		reqCtx := colly.NewContext()
		reqCtx.Put(idKey, id)
		reqCtx.Put(batchKey, b)
		reqCtx.Put(startKey, time.Now())

		target := f.ProfileURL(id)
		if err := f.collector.Request(http.MethodGet, target, nil, reqCtx, nil); err != nil {
			f.fail(reqCtx, target, 0, err)
		}
	}
}

func (f *Fetcher) configureHandlers() {
	f.handlersOnce.Do(func() {
		f.collector.OnRequest(func(r *colly.Request) {
			if b := batchOf(r.Ctx); b != nil && b.ctx.Err() != nil {
				r.Abort()
				f.emit(r.Ctx, Result{URL: r.URL.String(), Err: ErrCanceled{Err: b.ctx.Err()}})
				return
			}
			atomic.AddInt64(&f.requestCount, 1)
			f.Metrics.IncRequest("started")
		})

		f.collector.OnResponse(func(r *colly.Response) {
			if r.StatusCode < 200 || r.StatusCode >= 300 {
				f.fail(r.Ctx, r.Request.URL.String(), r.StatusCode, errors.New(http.StatusText(r.StatusCode)))
				return
			}
			f.Metrics.IncRequest("completed")
			f.Metrics.IncProfiles()
			f.emit(r.Ctx, Result{
				URL:        r.Request.URL.String(),
				Content:    r.Body,
				StatusCode: r.StatusCode,
			})
		})

		f.collector.OnError(func(r *colly.Response, err error) {
			if r == nil || r.Request == nil {
				f.logger.Error("request error without request context", slog.Any("error", err))
				return
			}
			f.fail(r.Ctx, r.Request.URL.String(), r.StatusCode, err)
		})
	})
}

func (f *Fetcher) fail(ctx *colly.Context, target string, statusCode int, err error) {
	atomic.AddInt64(&f.errorCount, 1)
	classified := classifyError(err, statusCode)
	category := errorTypeLabel(classified)

	f.mu.Lock()
	f.errorsByType[category]++
	f.mu.Unlock()

	f.logger.Error("could not get profile",
		slog.String("id", ctx.Get(idKey)),
		slog.String("url", target),
		slog.Int("status", statusCode),
		slog.String("category", category),
		slog.Any("error", err),
	)
	f.Metrics.IncError(category)

	f.emit(ctx, Result{URL: target, StatusCode: statusCode, Err: classified})
}

func (f *Fetcher) emit(ctx *colly.Context, res Result) {
	b := batchOf(ctx)
	if b == nil {
		return
	}
	res.ID = ctx.Get(idKey)
	if start, ok := ctx.GetAny(startKey).(time.Time); ok {
		res.Duration = time.Since(start)
		f.Metrics.ObserveDuration(res.Duration)
	}
	b.results <- res
	<-b.slots
}

func batchOf(ctx *colly.Context) *batch {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.GetAny(batchKey).(*batch)
	return b
}

// Stats returns a snapshot of the request and error counters.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	return Stats{
		Requests:     int(atomic.LoadInt64(&f.requestCount)),
		Errors:       int(atomic.LoadInt64(&f.errorCount)),
		ErrorsByType: byType,
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return ErrCanceled{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode < 200 || statusCode >= 300 {
			return ErrHTTPStatus{StatusCode: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
