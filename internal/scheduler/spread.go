package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedFirst fires once at a fixed instant, then follows the wrapped
// schedule.
type delayedFirst struct {
	cron.Schedule
	at time.Time
}

func (d delayedFirst) Next(t time.Time) time.Time {
	if t.Before(d.at) {
		return d.at
	}
	return d.Schedule.Next(t)
}

// spreadInterval builds an every-interval schedule whose first run lands one
// interval plus a random offset after now. The offset is below
// min(every, maxStartupSpread).
func spreadInterval(every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	window := min(every, maxStartupSpread)
	if window <= 0 {
		return base, 0
	}
	offset := rand.N(window)
	return delayedFirst{Schedule: base, at: now.Add(every + offset)}, offset
}
