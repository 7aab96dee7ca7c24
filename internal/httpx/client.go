// Package httpx provides the retrying HTTP client shared by all upstream
// scrapers. One Client is constructed per upstream host and injected into
// the components that talk to it; the rate-limit clock and counters are
// shared across all calls through that Client.
package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DefaultRetries is the per-request retry budget when none is configured.
	DefaultRetries = 10

	defaultTimeout  = 20 * time.Second
	maxBodyBytes    = 4 * 1024 * 1024
	uaSuffixLetters = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Options configures a Client for one upstream host.
type Options struct {
	// Name identifies the upstream in logs ("musicbrainz", "songkick", ...).
	Name string

	// BaseURL is prepended to relative request paths.
	BaseURL string

	// ThrottleCode is the status code this upstream uses to signal rate
	// limiting (429, 403, 503 depending on the site). Zero disables
	// throttle tracking.
	ThrottleCode int

	// Retries is the per-request retry budget. Defaults to DefaultRetries.
	Retries int

	// Delay is the minimum spacing between consecutive requests.
	// Zero disables pacing.
	Delay time.Duration

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// UserAgent is sent with every request, with a random per-request
	// suffix appended so that upstream caches treat clients as distinct.
	UserAgent string

	// ProxyURL routes requests through a forward proxy when set.
	ProxyURL string

	// Headers are added to every request.
	Headers map[string]string
}

// Stats is a snapshot of a Client's cumulative counters.
type Stats struct {
	Total            int64
	TimedOut         int64
	Errored          int64
	Accepted         int64
	GTE400           int64
	Throttled        int64
	RetriesExhausted int64
}

// Client is a retrying HTTP client bound to one upstream host.
// It is safe for concurrent use.
type Client struct {
	name         string
	baseURL      string
	throttleCode int
	retries      int
	userAgent    string
	headers      map[string]string
	logger       *slog.Logger

	noRedirect *http.Client
	redirect   *http.Client
	pacer      *pacer

	total            atomic.Int64
	timedOut         atomic.Int64
	errored          atomic.Int64
	accepted         atomic.Int64
	gte400           atomic.Int64
	throttled        atomic.Int64
	retriesExhausted atomic.Int64
}

// New creates a Client for one upstream host.
func New(opts Options, logger *slog.Logger) *Client {
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		if proxyURL, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Client{
		name:         opts.Name,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		throttleCode: opts.ThrottleCode,
		retries:      retries,
		userAgent:    opts.UserAgent,
		headers:      opts.Headers,
		logger:       logger.With(slog.String("client", opts.Name)),
		noRedirect: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		redirect: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		pacer: newPacer(opts.Delay),
	}
}

// Name returns the upstream name the client was configured with.
func (c *Client) Name() string { return c.name }

// Retries returns the configured retry budget.
func (c *Client) Retries() int { return c.retries }

// Stats returns a snapshot of the cumulative request counters.
func (c *Client) Stats() Stats {
	return Stats{
		Total:            c.total.Load(),
		TimedOut:         c.timedOut.Load(),
		Errored:          c.errored.Load(),
		Accepted:         c.accepted.Load(),
		GTE400:           c.gte400.Load(),
		Throttled:        c.throttled.Load(),
		RetriesExhausted: c.retriesExhausted.Load(),
	}
}

// resolveURL joins a possibly-relative request path with the base URL.
func (c *Client) resolveURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
}

// send runs the retry loop. Timeouts and transport errors consume one retry
// unit, as does any status >= 400 (except 404, which can't be retried away).
// Any response with status < 400 is returned immediately. Exhausting the
// budget returns a RetriesExhaustedError.
func (c *Client) send(ctx context.Context, reqURL string, followRedirects bool) (*http.Response, error) {
	hc := c.noRedirect
	if followRedirects {
		hc = c.redirect
	}

	retries := c.retries
	for retries > 0 {
		if err := c.pacer.wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("User-Agent", c.requestUserAgent())

		c.total.Add(1)
		start := time.Now()

		resp, err := hc.Do(req)
		if err != nil {
			if isTimeout(err) {
				c.timedOut.Add(1)
				c.logger.Warn("request timed out, retrying", slog.String("url", reqURL), slog.String("error", err.Error()))
			} else {
				c.errored.Add(1)
				c.logger.Warn("request failed, retrying", slog.String("url", reqURL), slog.String("error", err.Error()))
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			retries--
			continue
		}

		responseTime := time.Since(start)
		c.pacer.observe(responseTime)

		if c.throttleCode != 0 && resp.StatusCode == c.throttleCode {
			c.throttled.Add(1)
		}
		if resp.StatusCode < http.StatusBadRequest {
			c.accepted.Add(1)
		} else {
			c.gte400.Add(1)
		}

		// Can't retry a 404.
		if resp.StatusCode < http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
			return resp, nil
		}

		drain(resp)
		c.logger.Warn("received error response, retrying",
			slog.String("url", reqURL),
			slog.Int("status", resp.StatusCode))
		retries--
	}

	c.retriesExhausted.Add(1)
	c.logger.Error("retries exhausted", slog.String("url", reqURL), slog.Int("retries", c.retries))

	return nil, &RetriesExhaustedError{URL: reqURL, Retries: c.retries}
}

// requestUserAgent appends a random 8-character suffix to the configured
// User-Agent so consecutive requests don't present an identical identity.
func (c *Client) requestUserAgent() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = uaSuffixLetters[rand.Intn(len(uaSuffixLetters))]
	}
	return c.userAgent + "-" + string(b)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
