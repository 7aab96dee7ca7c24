// Package report provides fire-and-forget outbound error tracking.
// Reporting never affects control flow: failures to report are swallowed.
package report

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter receives exceptions and messages worth surfacing outside logs.
type Reporter interface {
	CaptureException(err error)
	CaptureMessage(msg string)
}

// Sentry is a Reporter backed by a Sentry project.
type Sentry struct{}

// NewSentry initializes the Sentry SDK and returns a Reporter. An empty DSN
// yields a no-op reporter.
func NewSentry(dsn string) (Reporter, error) {
	if dsn == "" {
		return Noop{}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn: dsn,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing sentry: %w", err)
	}

	return Sentry{}, nil
}

// CaptureException reports err to Sentry.
func (Sentry) CaptureException(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureMessage reports msg to Sentry.
func (Sentry) CaptureMessage(msg string) {
	sentry.CaptureMessage(msg)
}

// Flush waits for buffered events to be delivered, up to the given timeout.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Noop discards everything. Used in tests and when no DSN is configured.
type Noop struct{}

// CaptureException discards err.
func (Noop) CaptureException(error) {}

// CaptureMessage discards msg.
func (Noop) CaptureMessage(string) {}
