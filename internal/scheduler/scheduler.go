package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "powerwatch/pkg/logx"
)

// Job is one recurring trigger. Run receives a context that is cancelled on
// Stop and, when Timeout > 0, after Timeout.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	// Spread delays the first run of interval jobs by a random jitter.
	Spread bool
	// RunOnStart fires the job once as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

type Config struct {
	Timezone string // IANA TZ for cron expressions; empty means local
}

type entry struct {
	job     Job
	spec    ParsedSpec
	id      cron.EntryID
	jitter  time.Duration
	running sync.Mutex
}

type Info struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]*entry
	wg     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		parser: cronParser,
		jobs:   map[string]*entry{},
	}
}

// Add registers or replaces a job by name. Jobs added before Start are
// registered when Start runs.
func (s *Service) Add(j Job) error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("job name required")
	}
	if j.Run == nil {
		return fmt.Errorf("job %s: run func required", j.Name)
	}
	ps, err := ParseSchedule(j.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[j.Name]; ok && s.c != nil {
		s.c.Remove(old.id)
	}
	e := &entry{job: j, spec: ps}
	s.jobs[j.Name] = e
	if s.c != nil {
		if err := s.registerLocked(e, false); err != nil {
			return err
		}
	}
	return nil
}

// Start begins triggering. It is a no-op when already started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}
	s.loc = loc
	s.ctx, s.cancel = context.WithCancel(ctx)

	clog := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		cron.WithLogger(clog),
	)
	names := s.namesLocked()
	for _, name := range names {
		if err := s.registerLocked(s.jobs[name], true); err != nil {
			s.log.Error("schedule register failed", logx.String("name", name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Strings("jobs", names))
	return nil
}

// Stop stops triggering, cancels running jobs and waits for them until ctx
// expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop()
	cancel()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs still running")
	}
}

// Entries lists registered jobs with their next and previous run times.
func (s *Service) Entries() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.jobs))
	for _, name := range s.namesLocked() {
		e := s.jobs[name]
		info := Info{Name: name, Spec: e.spec.String()}
		if s.c != nil {
			ce := s.c.Entry(e.id)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) namesLocked() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Service) registerLocked(e *entry, starting bool) error {
	var sched cron.Schedule
	switch e.spec.Kind {
	case SpecInterval:
		if e.job.Spread {
			sched, e.jitter = spreadInterval(e.spec.Every, time.Now().In(s.loc))
		} else {
			sched = cron.Every(e.spec.Every)
		}
	default:
		parsed, err := s.parser.Parse(e.spec.Cron)
		if err != nil {
			return err
		}
		sched = parsed
	}
	e.id = s.c.Schedule(sched, cron.FuncJob(func() { s.run(e) }))
	s.log.Debug("schedule registered",
		logx.String("name", e.job.Name),
		logx.String("spec", e.spec.String()),
		logx.Duration("startup_spread", e.jitter))

	if starting && e.job.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(e)
		}()
	}
	return nil
}

// run executes one firing. A firing that finds the previous one still
// running is skipped.
func (s *Service) run(e *entry) {
	if !e.running.TryLock() {
		s.log.Warn("job still running; skipping", logx.String("name", e.job.Name))
		return
	}
	defer e.running.Unlock()

	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}
	ctx := base
	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, e.job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.job.Run(ctx)
	took := time.Since(start)
	if err != nil {
		s.log.Warn("job failed", logx.String("name", e.job.Name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", e.job.Name), logx.Duration("took", took))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
