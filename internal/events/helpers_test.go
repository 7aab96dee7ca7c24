package events

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/sydlexius/gigwatch/internal/httpx"
	"github.com/sydlexius/gigwatch/internal/match"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeShortener prefixes URLs instead of persisting them, so assertions can
// recover the original URL.
type fakeShortener struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeShortener) Shorten(_ context.Context, longURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, longURL)
	return "shortened:" + longURL, nil
}

// recordingReporter captures reported errors and messages for assertions.
type recordingReporter struct {
	mu         sync.Mutex
	exceptions []error
	messages   []string
}

func (r *recordingReporter) CaptureException(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, err)
}

func (r *recordingReporter) CaptureMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingReporter) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recordingReporter) exceptionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exceptions)
}

func newTestClient(t *testing.T, name, baseURL string) *httpx.Client {
	t.Helper()
	return httpx.New(httpx.Options{
		Name:    name,
		BaseURL: baseURL,
		Retries: 2,
	}, testLogger())
}

func newTestService(t *testing.T, songkickURL, bandsintownURL string) (*Service, *fakeShortener, *recordingReporter) {
	t.Helper()
	shortener := &fakeShortener{}
	reporter := &recordingReporter{}
	svc := NewService(
		newTestClient(t, "songkick", songkickURL),
		newTestClient(t, "bandsintown", bandsintownURL),
		shortener,
		reporter,
		match.DefaultFuzzyThreshold,
		testLogger(),
	)
	return svc, shortener, reporter
}
