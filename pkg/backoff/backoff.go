// Package backoff provides exponential backoff for polling loops.
package backoff

import (
	"context"
	"time"
)

// Defaults used for zero Config fields.
const (
	DefaultInitial = 100 * time.Millisecond
	DefaultMax     = 5 * time.Second
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration
	Max     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Initial <= 0 {
		c.Initial = DefaultInitial
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	return c
}

// Exponential returns the delay before the given attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, up to Max.
func Exponential(attempt int, cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	d := cfg.Initial
	for i := 1; i < attempt; i++ {
		if d >= cfg.Max/2 {
			return cfg.Max
		}
		d *= 2
	}
	return min(d, cfg.Max)
}

// Poller tracks attempts of a polling loop that backs off while idle.
// It is not safe for concurrent use.
type Poller struct {
	cfg     Config
	attempt int
}

// NewPoller creates a Poller.
func NewPoller(cfg Config) *Poller {
	return &Poller{cfg: cfg.withDefaults()}
}

// Reset starts the delays over from Initial. Call it after progress.
func (p *Poller) Reset() {
	p.attempt = 0
}

// Next returns the delay for the next idle round.
func (p *Poller) Next() time.Duration {
	p.attempt++
	return Exponential(p.attempt, p.cfg)
}

// Wait sleeps for the next delay. It returns early with nil when wake is
// closed (a nil wake never fires) and with the context error when ctx ends.
func (p *Poller) Wait(ctx context.Context, wake <-chan struct{}) error {
	timer := time.NewTimer(p.Next())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
