// Package dispatcher fans a rendered notification out to every subscriber of
// a location.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"powerwatch/internal/storage"
	kit "powerwatch/internal/transport"
	logx "powerwatch/pkg/logx"
	"powerwatch/pkg/tgui"
)

const (
	DefaultSendDelay = 50 * time.Millisecond
	DefaultWorkers   = 4
)

// Subscribers is the part of the subscription repository the dispatcher
// needs.
type Subscribers interface {
	ListSubscriptions(ctx context.Context, locationID string) ([]storage.Subscription, error)
	RemoveSubscription(ctx context.Context, locationID string, chatID int64) error
}

// Observer receives one outcome per recipient: "sent", "failed" or
// "removed".
type Observer interface {
	ObserveDispatch(outcome string)
}

type Config struct {
	SendDelay time.Duration
	Workers   int
}

func (c Config) withDefaults() Config {
	if c.SendDelay <= 0 {
		c.SendDelay = DefaultSendDelay
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return c
}

// Report summarizes one Dispatch call.
type Report struct {
	Total   int
	Sent    int
	Failed  int
	Removed int
}

type Dispatcher struct {
	subs   Subscribers
	sender kit.Sender
	log    logx.Logger
	obs    Observer

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, subs Subscribers, sender kit.Sender, log logx.Logger, obs Observer) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{subs: subs, sender: sender, log: log.With(logx.String("comp", "dispatcher")), obs: obs}
	d.Apply(cfg)
	return d
}

// Apply updates pacing. In-flight dispatches keep the limiter they started
// with.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Every(cfg.SendDelay), 1)
	d.mu.Unlock()
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.limiter
}

// Dispatch sends msg to every subscriber of locationID. Sends are spaced by
// SendDelay across all workers. A recipient-gone failure removes that
// subscription once; other failures are logged and not retried. Dispatch
// never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, locationID string, msg tgui.Message) Report {
	log := d.log.With(logx.String("location", locationID))

	subs, err := d.subs.ListSubscriptions(ctx, locationID)
	if err != nil {
		log.Error("list subscriptions failed", logx.Err(err))
		return Report{}
	}
	subs = dedupe(subs)
	if len(subs) == 0 {
		log.Debug("no subscribers")
		return Report{}
	}

	cfg, limiter := d.snapshot()
	var sent, failed, removed atomic.Int32

	jobs := make(chan storage.Subscription)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i, s := range subs {
			select {
			case jobs <- s:
			case <-gctx.Done():
				for range subs[i:] {
					d.observe("failed")
				}
				failed.Add(int32(len(subs) - i))
				return nil
			}
		}
		return nil
	})
	workers := min(cfg.Workers, len(subs))
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for s := range jobs {
				if err := limiter.Wait(gctx); err != nil {
					d.observe("failed")
					failed.Add(1)
					continue
				}
				switch d.deliver(gctx, log, s, msg) {
				case "sent":
					sent.Add(1)
				case "removed":
					removed.Add(1)
				default:
					failed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	r := Report{Total: len(subs), Sent: int(sent.Load()), Failed: int(failed.Load()), Removed: int(removed.Load())}
	log.Info("notification dispatched",
		logx.Int("total", r.Total), logx.Int("sent", r.Sent),
		logx.Int("failed", r.Failed), logx.Int("removed", r.Removed))
	return r
}

func (d *Dispatcher) deliver(ctx context.Context, log logx.Logger, s storage.Subscription, msg tgui.Message) string {
	to := kit.ChatTarget{ChatID: s.ChatID, ThreadID: s.ThreadID}
	_, err := msg.Send(ctx, d.sender, to)
	outcome := "sent"
	switch {
	case err == nil:
	case kit.IsRecipientGone(err):
		outcome = "removed"
		rerr := d.subs.RemoveSubscription(ctx, s.LocationID, s.ChatID)
		switch {
		case rerr == nil:
			log.Info("subscription removed: recipient gone", logx.Int64("chat_id", s.ChatID), logx.Err(err))
		case errors.Is(rerr, storage.ErrNotFound):
			log.Debug("subscription already removed", logx.Int64("chat_id", s.ChatID))
		default:
			outcome = "failed"
			log.Warn("remove subscription failed", logx.Int64("chat_id", s.ChatID), logx.Err(rerr))
		}
	default:
		outcome = "failed"
		log.Warn("send failed", logx.Int64("chat_id", s.ChatID), logx.Err(err))
	}
	d.observe(outcome)
	return outcome
}

func (d *Dispatcher) observe(outcome string) {
	if d.obs != nil {
		d.obs.ObserveDispatch(outcome)
	}
}

func dedupe(subs []storage.Subscription) []storage.Subscription {
	seen := make(map[int64]struct{}, len(subs))
	out := subs[:0:0]
	for _, s := range subs {
		if _, ok := seen[s.ChatID]; ok {
			continue
		}
		seen[s.ChatID] = struct{}{}
		out = append(out, s)
	}
	return out
}
