package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aluiziolira/divemeets-skill-rating/config"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ProfileURL = "http://example.test/profile.php"
	cfg.Parallelism = 2
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config, transport http.RoundTripper) *Fetcher {
	t.Helper()
	f, err := NewFetcher(cfg,
		WithTransport(transport),
		WithMetrics(NewMetrics(nil)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

func collect(results <-chan Result) map[string]Result {
	out := make(map[string]Result)
	for res := range results {
		out[res.ID] = res
	}
	return out
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "context canceled", err: context.Canceled, statusCode: 0, expected: "canceled"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestProfileURL(t *testing.T) {
	f := newTestFetcher(t, testConfig(), httpmock.NewMockTransport())
	if got, want := f.ProfileURL("56961"), "http://example.test/profile.php?number=56961"; got != want {
		t.Fatalf("ProfileURL() = %q, want %q", got, want)
	}
}

func TestNewFetcherRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ProfileURL = "/profile.php"
	if _, err := NewFetcher(cfg); err == nil {
		t.Fatalf("expected error for profile url without host")
	}

	cfg = testConfig()
	cfg.Parallelism = 0
	if _, err := NewFetcher(cfg); err == nil {
		t.Fatalf("expected error for zero parallelism")
	}
}

func TestFetchTimeoutAndSuccess(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/profile.php?number=1",
		httpmock.NewErrorResponder(timeoutError{}))
	transport.RegisterResponder("GET", "http://example.test/profile.php?number=2",
		httpmock.NewStringResponder(http.StatusOK, "<html><body><table><tr><td>DiveMeets #</td></tr></table></body></html>"))

	f := newTestFetcher(t, cfg, transport)
	results := collect(f.Fetch(context.Background(), []string{"1", "2"}))

	if len(results) != 2 {
		t.Fatalf("results=%d, want 2", len(results))
	}

	failed := results["1"]
	var timeout ErrTimeout
	if !errors.As(failed.Err, &timeout) {
		t.Fatalf("id 1 error = %v, want ErrTimeout", failed.Err)
	}
	if failed.OK() || failed.Content != nil {
		t.Fatalf("id 1 should carry no content")
	}

	ok := results["2"]
	if !ok.OK() {
		t.Fatalf("id 2 error = %v, want success", ok.Err)
	}
	if ok.StatusCode != http.StatusOK || len(ok.Content) == 0 {
		t.Fatalf("id 2 status=%d len=%d", ok.StatusCode, len(ok.Content))
	}

	stats := f.Stats()
	if stats.Requests != 2 || stats.Errors != 1 || stats.ErrorsByType["timeout"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := testutil.ToFloat64(f.Metrics.ProfilesFetchedTotal); got != 1 {
		t.Fatalf("profiles fetched metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.Metrics.ErrorsTotal.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("timeout metric = %v, want 1", got)
	}
}

func TestFetchHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusBadGateway, expected: "http_status"},
		{status: http.StatusInternalServerError, expected: "http_status"},
		{status: http.StatusNotModified, expected: "http_status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			cfg.Parallelism = 1

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://example.test/profile.php?number=7",
				httpmock.NewStringResponder(tt.status, ""))

			f := newTestFetcher(t, cfg, transport)
			results := collect(f.Fetch(context.Background(), []string{"7"}))

			res, ok := results["7"]
			if !ok {
				t.Fatalf("no result for id 7")
			}
			if got := ErrorLabel(res.Err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, res.Err)
			}
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestFetchAcceptsAnySuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusNoContent, http.StatusPartialContent} {
		t.Run(fmt.Sprintf("status_%d", status), func(t *testing.T) {
			cfg := testConfig()
			cfg.Parallelism = 1

			body := ""
			if status != http.StatusNoContent {
				body = "<html><body><table><tr><td>DiveMeets #</td></tr></table></body></html>"
			}
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://example.test/profile.php?number=8",
				httpmock.NewStringResponder(status, body))

			f := newTestFetcher(t, cfg, transport)
			results := collect(f.Fetch(context.Background(), []string{"8"}))

			res, ok := results["8"]
			if !ok {
				t.Fatalf("no result for id 8")
			}
			if !res.OK() {
				t.Fatalf("status %d error = %v, want success", status, res.Err)
			}
			if res.StatusCode != status {
				t.Fatalf("status = %d, want %d", res.StatusCode, status)
			}
			if stats := f.Stats(); stats.Errors != 0 {
				t.Fatalf("stats = %+v, want no errors", stats)
			}
			if got := testutil.ToFloat64(f.Metrics.ProfilesFetchedTotal); got != 1 {
				t.Fatalf("profiles fetched metric = %v, want 1", got)
			}
		})
	}
}

func TestFetchManyIdentifiers(t *testing.T) {
	cfg := testConfig()
	cfg.Parallelism = 3

	transport := httpmock.NewMockTransport()
	ids := make([]string, 0, 25)
	for i := 1; i <= 25; i++ {
		id := fmt.Sprint(i)
		ids = append(ids, id)
		transport.RegisterResponder("GET", "http://example.test/profile.php?number="+id,
			httpmock.NewStringResponder(http.StatusOK, "<html><body>"+id+"</body></html>"))
	}

	f := newTestFetcher(t, cfg, transport)
	results := collect(f.Fetch(context.Background(), ids))

	got := make([]string, 0, len(results))
	for id, res := range results {
		if !res.OK() {
			t.Fatalf("id %s failed: %v", id, res.Err)
		}
		got = append(got, id)
	}
	sort.Strings(got)
	want := append([]string(nil), ids...)
	sort.Strings(want)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	f := newTestFetcher(t, testConfig(), transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := collect(f.Fetch(ctx, []string{"1", "2", "3"}))
	if len(results) != 3 {
		t.Fatalf("results=%d, want 3", len(results))
	}
	for id, res := range results {
		var canceled ErrCanceled
		if !errors.As(res.Err, &canceled) {
			t.Fatalf("id %s error = %v, want ErrCanceled", id, res.Err)
		}
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("transport calls = %d, want 0", n)
	}
}
