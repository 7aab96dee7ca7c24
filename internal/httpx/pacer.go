package httpx

import (
	"context"
	"sync"
	"time"
)

// pacer enforces a minimum delay between consecutive requests to one
// upstream. After each response it credits half the round-trip time against
// the spacing budget, on the assumption that the time for the request to
// reach the server and the time for the response to come back are equal.
type pacer struct {
	delay time.Duration

	mu     sync.Mutex
	nextAt time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{
		delay: delay,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// wait blocks until the spacing window since the last response has elapsed.
func (p *pacer) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}

	p.mu.Lock()
	d := p.nextAt.Sub(p.now())
	p.mu.Unlock()

	if d <= 0 {
		return nil
	}
	return p.sleep(ctx, d)
}

// observe records a completed request's round-trip time and schedules the
// earliest moment the next request may be sent.
func (p *pacer) observe(responseTime time.Duration) {
	if p.delay <= 0 {
		return
	}

	wait := p.delay - responseTime/2
	if wait < 0 {
		wait = 0
	}

	p.mu.Lock()
	p.nextAt = p.now().Add(wait)
	p.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
