// Package monitor runs the availability tick: probe every enabled location,
// detect state changes and turn them into notifications.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"powerwatch/internal/classifier"
	"powerwatch/internal/composer"
	"powerwatch/internal/dispatcher"
	"powerwatch/internal/history"
	"powerwatch/internal/location"
	"powerwatch/internal/probe"
	"powerwatch/internal/schedule"
	"powerwatch/internal/storage"
	logx "powerwatch/pkg/logx"
	"powerwatch/pkg/tgui"
)

// Prober is satisfied by *probe.Prober.
type Prober interface {
	Probe(ctx context.Context, host string) probe.Result
}

// Schedule is the read side of *schedule.Cache.
type Schedule interface {
	Has(key schedule.Key) bool
	PredictAt(key schedule.Key, now time.Time, loc *time.Location) schedule.Prediction
	NearestDisable(key schedule.Key, at time.Time, loc *time.Location) (time.Time, bool)
	NearestEnable(key schedule.Key, at time.Time, loc *time.Location) (time.Time, bool)
}

// Notifier delivers a rendered message to a location's subscribers.
// *dispatcher.Dispatcher implements it.
type Notifier interface {
	Dispatch(ctx context.Context, locationID string, msg tgui.Message) dispatcher.Report
}

// StateStore persists the last observed state of each location.
type StateStore interface {
	SaveState(ctx context.Context, st storage.LocationState) error
}

type Observer interface {
	ObserveTick(took time.Duration, locations int)
	ObserveSkippedTick()
	ObserveTransition(direction string)
}

type Deps struct {
	Locations *location.Registry
	Prober    Prober
	History   *history.Store
	Schedule  Schedule
	Composer  *composer.Composer
	Notifier  Notifier
	States    StateStore // optional
	Observer  Observer   // optional
	Log       logx.Logger
	Now       func() time.Time
}

// summaryWindow is the lookback of the on/off totals logged with each change.
const summaryWindow = 24 * time.Hour

// Orchestrator owns the tick guard and drives the probe to dispatch
// pipeline. Ticks never overlap; locations within a tick run concurrently.
type Orchestrator struct {
	locs    *location.Registry
	prober  Prober
	hist    *history.Store
	sched   Schedule
	comp    *composer.Composer
	notify  Notifier
	states  StateStore
	obs     Observer
	log     logx.Logger
	now     func() time.Time
	running atomic.Bool
	limit   atomic.Int32
}

func New(d Deps) *Orchestrator {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Composer == nil {
		d.Composer = composer.New(0)
	}
	return &Orchestrator{
		locs:   d.Locations,
		prober: d.Prober,
		hist:   d.History,
		sched:  d.Schedule,
		comp:   d.Composer,
		notify: d.Notifier,
		states: d.States,
		obs:    d.Observer,
		log:    d.Log.With(logx.String("comp", "monitor")),
		now:    d.Now,
	}
}

// SetConcurrency bounds how many locations are probed at once; 0 means no
// bound.
func (o *Orchestrator) SetConcurrency(n int) {
	if n < 0 {
		n = 0
	}
	o.limit.Store(int32(n))
}

// Running reports whether a tick is in progress.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Seed restores last-known states so a restart does not announce unchanged
// locations again.
func (o *Orchestrator) Seed(states []storage.LocationState) {
	for _, st := range states {
		o.hist.Seed(st.LocationID, st.Available)
	}
}

// Tick runs one availability check over every enabled location. It returns
// false when another tick was still running and this one was skipped.
func (o *Orchestrator) Tick(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		o.log.Warn("previous tick still running; skipping")
		if o.obs != nil {
			o.obs.ObserveSkippedTick()
		}
		return false
	}
	defer o.running.Store(false)

	start := time.Now()
	log := o.log.With(logx.String("tick", uuid.NewString()))
	locs := o.locs.Enabled()
	log.Debug("tick started", logx.Int("locations", len(locs)))

	g := new(errgroup.Group)
	if n := int(o.limit.Load()); n > 0 {
		g.SetLimit(n)
	}
	for _, loc := range locs {
		g.Go(func() error {
			o.runLocation(ctx, log, loc)
			return nil
		})
	}
	_ = g.Wait()

	took := time.Since(start)
	if o.obs != nil {
		o.obs.ObserveTick(took, len(locs))
	}
	log.Debug("tick finished", logx.Duration("took", took))
	return true
}

func (o *Orchestrator) runLocation(ctx context.Context, log logx.Logger, loc location.Location) {
	log = log.With(logx.String("location", loc.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("location check panicked",
				logx.String("panic", fmt.Sprint(r)),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	o.checkLocation(ctx, log, loc)
}

func (o *Orchestrator) checkLocation(ctx context.Context, log logx.Logger, loc location.Location) {
	res := o.prober.Probe(ctx, loc.Host)
	if ctx.Err() != nil {
		log.Debug("tick cancelled; result discarded")
		return
	}

	prevState, known := o.hist.LastState(loc.ID)
	if known && prevState == res.Available {
		log.Trace("no change", logx.Bool("available", res.Available))
		return
	}

	now := o.now()
	var prev *history.Record
	if recs := o.hist.Latest(loc.ID, 1, nil); len(recs) > 0 {
		prev = &recs[0]
	} else if known {
		prev = &history.Record{LocationID: loc.ID, Available: prevState}
	}
	cur := history.Record{LocationID: loc.ID, At: now, Available: res.Available}
	o.hist.Append(cur)

	dir := classifier.DirectionOf(res.Available)
	day := history.Summarize(o.hist.RangeStats(loc.ID, now.Add(-summaryWindow), now))
	log.Info("availability changed",
		logx.Bool("available", res.Available),
		logx.Bool("first", prev == nil),
		logx.Int("attempts", res.Attempts),
		logx.String("on_24h", composer.FormatDuration(day.On)),
		logx.String("off_24h", composer.FormatDuration(day.Off)),
		logx.Int("outages_24h", day.Outages))
	if o.obs != nil {
		o.obs.ObserveTransition(dir.String())
	}
	if o.states != nil {
		if err := o.states.SaveState(ctx, storage.LocationState{LocationID: loc.ID, Available: res.Available, At: now}); err != nil {
			log.Warn("persist state failed", logx.Err(err))
		}
	}

	pred, ctxRes := o.annotate(loc, dir, now)
	msg, shape := o.comp.Render(composer.Input{
		Place:      loc,
		Previous:   prev,
		Current:    cur,
		Prediction: pred,
		Context:    ctxRes,
	})
	rep := o.notify.Dispatch(ctx, loc.ID, msg)
	log.Info("transition notified",
		logx.String("shape", shape.String()),
		logx.String("context", ctxRes.Context.String()),
		logx.Int("sent", rep.Sent))
}

// annotate computes the prediction and classification for a transition.
// Locations without a schedule, or whose queue is missing from the grid, get
// neither.
func (o *Orchestrator) annotate(loc location.Location, dir classifier.Direction, now time.Time) (schedule.Prediction, classifier.Result) {
	if o.sched == nil || !loc.HasSchedule() {
		return schedule.Prediction{}, classifier.Result{}
	}
	key := schedule.Key{Region: loc.Region, Queue: loc.Queue}
	if !o.sched.Has(key) {
		return schedule.Prediction{}, classifier.Result{}
	}
	zone := loc.Zone()
	pred := o.sched.PredictAt(key, now, zone)

	var (
		ev time.Time
		ok bool
	)
	if dir == classifier.Enable {
		ev, ok = o.sched.NearestEnable(key, now, zone)
	} else {
		ev, ok = o.sched.NearestDisable(key, now, zone)
	}
	var scheduled *time.Time
	if ok {
		scheduled = &ev
	}
	return pred, classifier.Classify(now, dir, scheduled)
}

// Keys lists the schedule keys referenced by enabled locations.
func (o *Orchestrator) Keys() []schedule.Key {
	seen := map[schedule.Key]struct{}{}
	var out []schedule.Key
	for _, l := range o.locs.Enabled() {
		if !l.HasSchedule() {
			continue
		}
		k := schedule.Key{Region: l.Region, Queue: l.Queue}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// AnnounceTomorrow sends tomorrow's schedule to every enabled location keyed
// to key.
func (o *Orchestrator) AnnounceTomorrow(ctx context.Context, key schedule.Key, day time.Time, grid schedule.DayGrid) {
	for _, l := range o.locs.Enabled() {
		if l.Region != key.Region || l.Queue != key.Queue {
			continue
		}
		msg := composer.RenderTomorrow(l.DisplayName(), key, day, l.Zone(), grid)
		rep := o.notify.Dispatch(ctx, l.ID, msg)
		o.log.Info("tomorrow schedule sent",
			logx.String("location", l.ID),
			logx.String("key", key.String()),
			logx.Int("sent", rep.Sent))
	}
}
