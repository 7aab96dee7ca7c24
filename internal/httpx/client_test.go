package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, baseURL string, opts Options) *Client {
	t.Helper()
	opts.BaseURL = baseURL
	if opts.Name == "" {
		opts.Name = "test"
	}
	return New(opts, testLogger())
}

func TestGetRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{Retries: 5})

	result, err := c.Get(context.Background(), "/", GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", result.StatusCode)
	}
	if string(result.Body) != "ok" {
		t.Errorf("unexpected body: %q", result.Body)
	}

	stats := c.Stats()
	if stats.Total != 3 {
		t.Errorf("expected 3 total requests, got %d", stats.Total)
	}
	if stats.Accepted != 1 {
		t.Errorf("expected 1 accepted, got %d", stats.Accepted)
	}
	if stats.GTE400 != 2 {
		t.Errorf("expected 2 error responses, got %d", stats.GTE400)
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{Retries: 3})

	_, err := c.Get(context.Background(), "/", GetOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *ClientError, got %T", err)
	}
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RetriesExhaustedError in the chain, got %v", err)
	}
	if exhausted.Retries != 3 {
		t.Errorf("expected 3 retries in the error, got %d", exhausted.Retries)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
	if stats := c.Stats(); stats.RetriesExhausted != 1 {
		t.Errorf("expected 1 exhausted counter, got %d", stats.RetriesExhausted)
	}
}

func TestGetReturns404WithoutRetrying(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{Retries: 5})

	result, err := c.Get(context.Background(), "/missing", GetOptions{AllowRedirectStatus: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", result.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("404 must not be retried, got %d attempts", got)
	}
	if stats := c.Stats(); stats.GTE400 != 1 {
		t.Errorf("expected 1 error response counted, got %d", stats.GTE400)
	}
}

func TestThrottleCounter(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{Retries: 3, ThrottleCode: http.StatusTooManyRequests})

	if _, err := c.Get(context.Background(), "/", GetOptions{}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stats := c.Stats(); stats.Throttled != 1 {
		t.Errorf("expected 1 throttled, got %d", stats.Throttled)
	}
}

func TestUserAgentSuffix(t *testing.T) {
	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{UserAgent: "gigwatch/1.0"})

	for n := 0; n < 2; n++ {
		if _, err := c.Get(context.Background(), "/", GetOptions{}); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}

	first, second := <-agents, <-agents
	for _, ua := range []string{first, second} {
		if !strings.HasPrefix(ua, "gigwatch/1.0-") {
			t.Errorf("unexpected User-Agent: %q", ua)
		}
		if len(ua) != len("gigwatch/1.0-")+8 {
			t.Errorf("expected 8-character suffix, got %q", ua)
		}
	}
	if first == second {
		t.Error("consecutive requests must carry different User-Agent suffixes")
	}
}

func TestGetXPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="x"><a href="/t">one</a></div><div class="x"><a href="/u">two</a></div></body></html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})

	result, err := c.Get(context.Background(), "/", GetOptions{XPath: "//div[@class='x']/a/@href"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(result.Nodes) != 2 || result.Nodes[0] != "/t" || result.Nodes[1] != "/u" {
		t.Errorf("unexpected nodes: %v", result.Nodes)
	}
}

func TestResolveRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved":
			http.Redirect(w, r, "https://example.com/final", http.StatusMovedPermanently)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})

	target, err := c.ResolveRedirect(context.Background(), "/moved")
	if err != nil {
		t.Fatalf("ResolveRedirect: %v", err)
	}
	if target != "https://example.com/final" {
		t.Errorf("expected redirect target, got %q", target)
	}

	// A URL that doesn't redirect resolves to itself.
	target, err = c.ResolveRedirect(context.Background(), "/stable")
	if err != nil {
		t.Fatalf("ResolveRedirect: %v", err)
	}
	if target != srv.URL+"/stable" {
		t.Errorf("expected request URL back, got %q", target)
	}
}

func TestRedirectStatusIsErrorWhenNotAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})

	_, err := c.Get(context.Background(), "/", GetOptions{})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *ClientError for unexpected redirect, got %v", err)
	}
}

func TestPacerSpacing(t *testing.T) {
	var now time.Time
	var slept []time.Duration

	p := newPacer(time.Second)
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	// First request goes through immediately.
	if err := p.wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("first wait must not sleep, slept %v", slept)
	}

	// A 400ms response earns back half its duration: next slot is
	// delay - rt/2 = 800ms after observation.
	p.observe(400 * time.Millisecond)
	if err := p.wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(slept) != 1 || slept[0] != 800*time.Millisecond {
		t.Errorf("expected one 800ms sleep, got %v", slept)
	}

	// A response slower than twice the delay clears the backoff entirely.
	p.observe(3 * time.Second)
	if err := p.wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(slept) != 1 {
		t.Errorf("slow response must not cause sleeping, got %v", slept)
	}
}
