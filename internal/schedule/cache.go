package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	logx "powerwatch/pkg/logx"
)

const (
	// PredictSlots is how far Predict looks ahead (48 hours).
	PredictSlots = 96
	// DefaultEventWindow bounds the search for a scheduled transition around
	// an observed one.
	DefaultEventWindow = 12 * time.Hour
)

var ErrNoData = errors.New("schedule: no grid")

// Source fetches a complete grid.
type Source interface {
	Fetch(ctx context.Context) (*Grid, error)
}

// Observer receives refresh outcomes; observability.Metrics implements it.
type Observer interface {
	ObserveRefresh(ok bool, fetchedAt time.Time)
}

// Prediction holds the next slot start for each target; nil means no such
// slot in the look-ahead window.
type Prediction struct {
	NextEnable          *time.Time
	NextPossibleEnable  *time.Time
	NextDisable         *time.Time
	NextPossibleDisable *time.Time
}

func (p Prediction) IsEmpty() bool {
	return p.NextEnable == nil && p.NextPossibleEnable == nil &&
		p.NextDisable == nil && p.NextPossibleDisable == nil
}

type CacheOption func(*Cache)

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithEventWindow(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.window = d
		}
	}
}

func WithObserver(o Observer) CacheOption { return func(c *Cache) { c.obs = o } }

// Cache holds the last good grid. Refresh swaps it wholesale; readers never
// see a partially built grid.
type Cache struct {
	src    Source
	log    logx.Logger
	now    func() time.Time
	window time.Duration
	obs    Observer
	grid   atomic.Pointer[Grid]
}

func NewCache(src Source, log logx.Logger, opts ...CacheOption) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Cache{src: src, log: log, now: time.Now, window: DefaultEventWindow}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Refresh fetches a new grid. On failure the previous grid stays in place
// and the error is returned for logging only.
func (c *Cache) Refresh(ctx context.Context) error {
	g, err := c.src.Fetch(ctx)
	if err == nil && g == nil {
		err = ErrNoData
	}
	if err != nil {
		prev := c.grid.Load()
		fields := []logx.Field{logx.Err(err), logx.Bool("have_previous", prev != nil)}
		if prev != nil {
			fields = append(fields, logx.Time("previous_fetched_at", prev.FetchedAt))
		}
		c.log.Warn("schedule refresh failed; keeping previous grid", fields...)
		if c.obs != nil {
			c.obs.ObserveRefresh(false, time.Time{})
		}
		return err
	}
	c.grid.Store(g)
	c.log.Debug("schedule refreshed", logx.Int("queues", len(g.Keys())), logx.String("today", g.Today))
	if c.obs != nil {
		c.obs.ObserveRefresh(true, g.FetchedAt)
	}
	return nil
}

// Set installs a grid directly.
func (c *Cache) Set(g *Grid) { c.grid.Store(g) }

// Grid returns the current grid (nil before the first successful refresh).
func (c *Cache) Grid() *Grid { return c.grid.Load() }

func (c *Cache) Has(key Key) bool { return c.grid.Load().Has(key) }

// SlotStart rounds t down to the start of its half-hour slot in loc.
func SlotStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/30*30, 0, 0, loc)
}

// Predict is PredictAt for the cache clock's current time.
func (c *Cache) Predict(key Key, loc *time.Location) Prediction {
	return c.PredictAt(key, c.now(), loc)
}

// PredictAt scans PredictSlots slots forward from the slot holding now in loc
// and returns the first ON, OFF and POSSIBLE slot. POSSIBLE fills both the
// possible-enable and possible-disable fields. Missing data yields an empty
// prediction.
func (c *Cache) PredictAt(key Key, now time.Time, loc *time.Location) Prediction {
	g := c.grid.Load()
	if !g.Has(key) {
		return Prediction{}
	}
	if loc == nil {
		loc = time.UTC
	}

	var p Prediction
	start := SlotStart(now, loc)
	for i := 0; i < PredictSlots; i++ {
		t := start.Add(time.Duration(i) * SlotLength).In(loc)
		switch g.At(key, t) {
		case StatusOn:
			if p.NextEnable == nil {
				p.NextEnable = ptr(t)
			}
		case StatusOff:
			if p.NextDisable == nil {
				p.NextDisable = ptr(t)
			}
		case StatusPossible:
			if p.NextPossibleEnable == nil {
				p.NextPossibleEnable = ptr(t)
				p.NextPossibleDisable = ptr(t)
			}
		}
		if p.NextEnable != nil && p.NextDisable != nil && p.NextPossibleEnable != nil {
			break
		}
	}
	return p
}

func ptr(t time.Time) *time.Time { return &t }

// NearestDisable returns the scheduled start of an outage (a slot that is
// OFF or POSSIBLE right after an ON slot) closest to at, within the event
// window.
func (c *Cache) NearestDisable(key Key, at time.Time, loc *time.Location) (time.Time, bool) {
	return c.nearest(key, at, loc, func(prev, cur Status) bool {
		return prev == StatusOn && (cur == StatusOff || cur == StatusPossible)
	})
}

// NearestEnable returns the scheduled end of an outage (an ON slot right
// after an OFF or POSSIBLE slot) closest to at, within the event window.
func (c *Cache) NearestEnable(key Key, at time.Time, loc *time.Location) (time.Time, bool) {
	return c.nearest(key, at, loc, func(prev, cur Status) bool {
		return cur == StatusOn && (prev == StatusOff || prev == StatusPossible)
	})
}

func (c *Cache) nearest(key Key, at time.Time, loc *time.Location, isEvent func(prev, cur Status) bool) (time.Time, bool) {
	g := c.grid.Load()
	if !g.Has(key) {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	first := SlotStart(at.Add(-c.window), loc)
	last := at.Add(c.window)

	var (
		best     time.Time
		bestDist time.Duration = -1
	)
	prev := g.At(key, first.Add(-SlotLength).In(loc))
	for t := first; !t.After(last); t = t.Add(SlotLength) {
		lt := t.In(loc)
		cur := g.At(key, lt)
		if isEvent(prev, cur) {
			d := lt.Sub(at)
			if d < 0 {
				d = -d
			}
			if bestDist < 0 || d < bestDist {
				best, bestDist = lt, d
			}
		}
		prev = cur
	}
	return best, bestDist >= 0
}
