package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "powerwatch/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		kind  SpecKind
		every time.Duration
		str   string
	}{
		{name: "cron", raw: "*/3 * * * *", kind: SpecCron, str: "*/3 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, str: "0 0 * * *"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, str: "@hourly"},
		{name: "duration", raw: "3m", kind: SpecInterval, every: 3 * time.Minute, str: "@every 3m0s"},
		{name: "at every", raw: "@every 30m", kind: SpecInterval, every: 30 * time.Minute, str: "@every 30m0s"},
		{name: "prefixed interval", raw: "every:15m", kind: SpecInterval, every: 15 * time.Minute, str: "@every 15m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.every, got.Every)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not-a-schedule", "every:-1m", "cron:", "@every soon"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateSchedule("*/3 * * * *"))
	assert.NoError(t, ValidateSchedule("3m"))
	assert.NoError(t, ValidateSchedule("@daily"))
	assert.Error(t, ValidateSchedule("cron: not a cron"))
	assert.Error(t, ValidateSchedule("61 * * * *"))
}

func TestSpreadIntervalFirstRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	sched, jitter := spreadInterval(3*time.Minute, now)
	assert.GreaterOrEqual(t, jitter, time.Duration(0))
	assert.Less(t, jitter, maxStartupSpread)

	first := sched.Next(now)
	assert.Equal(t, now.Add(3*time.Minute+jitter), first)
	// Afterwards the base interval applies.
	assert.Equal(t, first.Truncate(time.Second).Add(3*time.Minute), sched.Next(first))
}

func TestAddValidates(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }
	assert.Error(t, s.Add(Job{Schedule: "3m", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "x", Schedule: "3m"}))
	assert.Error(t, s.Add(Job{Name: "x", Schedule: "61 * * * *", Run: noop}))
	assert.NoError(t, s.Add(Job{Name: "x", Schedule: "3m", Run: noop}))
	assert.NoError(t, s.Add(Job{Name: "x", Schedule: "*/5 * * * *", Run: noop}))

	entries := s.Entries()
	require.Len(t, entries, 1, "same name replaces")
	assert.Equal(t, "*/5 * * * *", entries[0].Spec)
}

func TestRunOnStartAndStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "UTC"}, logx.Nop())
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Add(Job{
		Name:       "tick",
		Schedule:   "3m",
		Spread:     true,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Next.After(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.True(t, cancelled.Load(), "Stop cancels running jobs")
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	var runs atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{})
	e := &entry{job: Job{Name: "slow", Run: func(context.Context) error {
		runs.Add(1)
		close(entered)
		<-release
		return nil
	}}}

	done := make(chan struct{})
	go func() { s.run(e); close(done) }()
	<-entered
	s.run(e)
	close(release)
	<-done
	assert.EqualValues(t, 1, runs.Load())
}

func TestStartBadTimezone(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "Mars/Olympus"}, logx.Nop())
	assert.Error(t, s.Start(context.Background()))
}
