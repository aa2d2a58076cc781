// Package app builds every component from the config, runs the recurring
// triggers and applies hot reloads.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"powerwatch/internal/composer"
	"powerwatch/internal/config"
	"powerwatch/internal/dispatcher"
	"powerwatch/internal/history"
	"powerwatch/internal/location"
	"powerwatch/internal/monitor"
	"powerwatch/internal/observability"
	"powerwatch/internal/probe"
	rtsup "powerwatch/internal/runtime/supervisor"
	"powerwatch/internal/schedule"
	"powerwatch/internal/scheduler"
	"powerwatch/internal/storage"
	kit "powerwatch/internal/transport"
	telegram "powerwatch/internal/transport/telegram/adapter"
	logx "powerwatch/pkg/logx"
)

const (
	jobTick    = "availability.tick"
	jobRefresh = "schedule.refresh"
	jobWatch   = "schedule.tomorrow"
)

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	sender kit.Sender
	store  storage.Store
	client *http.Client
	now    func() time.Time
}

// WithSender replaces the Telegram adapter.
func WithSender(s kit.Sender) Option { return func(o *options) { o.sender = s } }

// WithStore replaces the configured storage backend. The app closes it on Stop.
func WithStore(s storage.Store) Option { return func(o *options) { o.store = s } }

// WithHTTPClient is used for every outbound HTTP collaborator.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// WithClock injects the orchestrator clock.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	sup  *rtsup.Supervisor

	store   storage.Store
	metrics *observability.Metrics
	obsrv   *observability.Server

	locs    *location.Registry
	hist    *history.Store
	cache   *schedule.Cache
	watcher *schedule.Watcher
	disp    *dispatcher.Dispatcher
	mon     *monitor.Orchestrator
	sched   *scheduler.Service

	cad         cadences
	hasSchedule bool
	hasDataset  bool
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	bootLog := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := Check(cfg); err != nil {
		return nil, err
	}

	sender := o.sender
	if sender == nil {
		timeout, err := config.ParseDurationField("telegram.timeout", cfg.Telegram.Timeout)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{
			Token:   cfg.Telegram.Token,
			APIURL:  cfg.Telegram.APIURL,
			Timeout: timeout,
		}, bootLog.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		sender = ad
	}

	logs, log := logx.New(mapLogging(cfg), sender)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store := o.store
	if store == nil {
		sc, err := mapStorage(cfg)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(sc, log)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a, err := build(cfg, cfgm, logs, log, sender, store, o)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, cfgm *config.Manager, logs *logx.Service, log logx.Logger, sender kit.Sender, store storage.Store, o options) (*App, error) {
	metrics := observability.NewMetrics()

	locs, err := mapLocations(cfg)
	if err != nil {
		return nil, err
	}
	registry := location.NewRegistry(locs...)

	pcfg, checks, err := mapProbe(cfg, o.client)
	if err != nil {
		return nil, err
	}
	prober := probe.New(pcfg, log.With(logx.String("comp", "probe")), metrics, checks...)

	hist := history.New(history.WithRetention(durationOr("monitor.retention", cfg.Monitor.Retention, history.DefaultRetention)))

	scheduleTimeout := durationOr("schedule.timeout", cfg.Schedule.Timeout, 0)
	cache := schedule.NewCache(&schedule.APISource{
		URL:     strings.TrimSpace(cfg.Schedule.URL),
		Timeout: scheduleTimeout,
		Client:  o.client,
	}, log.With(logx.String("comp", "schedule")),
		schedule.WithEventWindow(durationOr("monitor.event_window", cfg.Monitor.EventWindow, schedule.DefaultEventWindow)),
		schedule.WithObserver(metrics),
	)

	dcfg, err := mapDispatch(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatcher.New(dcfg, store, sender, log, metrics)

	mon := monitor.New(monitor.Deps{
		Locations: registry,
		Prober:    prober,
		History:   hist,
		Schedule:  cache,
		Composer:  composer.New(durationOr("monitor.suspicious_after", cfg.Monitor.SuspiciousAfter, composer.DefaultSuspiciousAfter)),
		Notifier:  disp,
		States:    store,
		Observer:  metrics,
		Log:       log,
		Now:       o.now,
	})
	mon.SetConcurrency(concurrency(cfg))

	watcher := schedule.NewWatcher(&schedule.DatasetClient{
		BaseURL: strings.TrimSpace(cfg.Schedule.DatasetURL),
		Timeout: scheduleTimeout,
		Client:  o.client,
	}, mon.Keys, mon, log.With(logx.String("comp", "tomorrow")))

	a := &App{
		cfgm:        cfgm,
		log:         log.With(logx.String("comp", "app")),
		logs:        logs,
		store:       store,
		metrics:     metrics,
		locs:        registry,
		hist:        hist,
		cache:       cache,
		watcher:     watcher,
		disp:        disp,
		mon:         mon,
		sched:       scheduler.New(scheduler.Config{Timezone: cfg.Monitor.Timezone}, log),
		hasSchedule: strings.TrimSpace(cfg.Schedule.URL) != "",
		hasDataset:  strings.TrimSpace(cfg.Schedule.DatasetURL) != "",
	}
	a.obsrv = observability.NewServer(mapMetrics(cfg), metrics, a.health, log)

	cad, err := mapCadences(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.registerJobs(cad); err != nil {
		return nil, err
	}
	a.cad = cad
	return a, nil
}

func (a *App) registerJobs(c cadences) error {
	jobs := []scheduler.Job{{
		Name:       jobTick,
		Schedule:   c.Check,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			a.mon.Tick(ctx)
			return nil
		},
	}}
	if a.hasSchedule {
		jobs = append(jobs, scheduler.Job{
			Name:       jobRefresh,
			Schedule:   c.Refresh,
			Timeout:    2 * time.Minute,
			RunOnStart: true,
			Run:        a.cache.Refresh,
		})
	}
	if a.hasDataset {
		jobs = append(jobs, scheduler.Job{
			Name:       jobWatch,
			Schedule:   c.Watch,
			Timeout:    5 * time.Minute,
			Spread:     true,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				a.watcher.Check(ctx)
				return nil
			},
		})
	}
	for _, j := range jobs {
		if err := a.sched.Add(j); err != nil {
			return err
		}
	}
	return nil
}

// Done is closed when the app context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	return a.sup.Context().Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
		rtsup.WithRestartHook(a.metrics.ObserveRestart),
	)

	states, err := a.store.LoadStates(a.sup.Context())
	if err != nil {
		a.log.Warn("load last-known states failed; starting cold", logx.Err(err))
	} else {
		a.mon.Seed(states)
		a.log.Info("last-known states restored", logx.Int("locations", len(states)))
	}

	a.obsrv.Start(a.sup.Context())
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.apply(c, last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
	)
	startSystemd(a.sup, a.log)

	a.log.Info("app started",
		logx.Int("locations", len(a.locs.All())),
		logx.Bool("schedule", a.hasSchedule),
		logx.Bool("tomorrow_watch", a.hasDataset),
	)
	return nil
}

// apply fans a committed reload out to the live components. Fields that
// need a rebuild are logged and left for the next restart.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	if err := Check(next); err != nil {
		a.log.Warn("config reload rejected; keeping previous", logx.Err(err))
		return
	}
	sections, fields := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(next))

	locs, _ := mapLocations(next)
	before := map[string]bool{}
	for _, l := range a.locs.All() {
		before[l.ID] = true
	}
	a.locs.Replace(locs)
	for _, l := range locs {
		delete(before, l.ID)
	}
	for id := range before {
		a.hist.Forget(id)
	}
	a.watcher.Forget(a.mon.Keys())
	a.mon.SetConcurrency(concurrency(next))

	if dcfg, err := mapDispatch(next); err == nil {
		a.disp.Apply(dcfg)
	}
	if cad, err := mapCadences(next); err == nil && cad != a.cad {
		if err := a.registerJobs(cad); err != nil {
			a.log.Warn("reschedule failed", logx.Err(err))
		} else {
			a.cad = cad
		}
	}
	a.obsrv.Reconfigure(ctx, mapMetrics(next))

	for _, s := range sections {
		switch s {
		case "probe", "schedule", "storage", "telegram":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

// Stop tears components down in reverse start order. Each step is bounded
// so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("observability", time.Second, func(c context.Context) error { a.obsrv.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Tick runs one availability tick outside the scheduler.
func (a *App) Tick(ctx context.Context) bool { return a.mon.Tick(ctx) }

// Metrics exposes the registry-backed metrics.
func (a *App) Metrics() *observability.Metrics { return a.metrics }
