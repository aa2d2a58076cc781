package probe

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	logx "powerwatch/pkg/logx"
)

const (
	DefaultAttempts   = 5
	DefaultRetryDelay = 10 * time.Second
)

// Checker is one reachability service. An error means the check could not
// reach a verdict; callers treat it as "not reachable".
type Checker interface {
	Name() string
	Check(ctx context.Context, host string) (bool, error)
}

// Observer receives probe outcomes; observability.Metrics implements it.
type Observer interface {
	ObserveCheck(check string, ok bool, err error)
	ObserveProbe(ok bool, attempts int, took time.Duration)
}

type Config struct {
	Attempts   int
	RetryDelay time.Duration
}

type Result struct {
	Available bool
	Attempts  int
}

type Prober struct {
	cfg    Config
	checks []Checker
	log    logx.Logger
	obs    Observer
}

func New(cfg Config, log logx.Logger, obs Observer, checks ...Checker) *Prober {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Prober{cfg: cfg, checks: checks, log: log, obs: obs}
}

// Probe runs the combined check up to Attempts times, waiting RetryDelay
// after each failed attempt, and stops at the first success. It never
// returns an error: every failure path reads as unavailable.
func (p *Prober) Probe(ctx context.Context, host string) Result {
	start := time.Now()
	res := Result{}
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		res.Attempts = attempt
		if p.Once(ctx, host) {
			res.Available = true
			break
		}
		if attempt == p.cfg.Attempts {
			break
		}
		p.log.Debug("probe attempt failed", logx.String("host", host), logx.Int("attempt", attempt))
		if !sleep(ctx, p.cfg.RetryDelay) {
			break
		}
	}
	if p.obs != nil {
		p.obs.ObserveProbe(res.Available, res.Attempts, time.Since(start))
	}
	return res
}

// Once runs every checker concurrently and returns true if any of them
// succeeds. The remaining checks are cancelled after the first success.
func (p *Prober) Once(ctx context.Context, host string) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var up atomic.Bool
	var g errgroup.Group
	for _, c := range p.checks {
		g.Go(func() error {
			ok, err := c.Check(ctx, host)
			if p.obs != nil {
				p.obs.ObserveCheck(c.Name(), ok, err)
			}
			if err != nil && !up.Load() {
				p.log.Debug("check failed", logx.String("check", c.Name()), logx.String("host", host), logx.Err(err))
			}
			if ok {
				up.Store(true)
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()
	return up.Load()
}

// sleep waits d or until ctx is done; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
