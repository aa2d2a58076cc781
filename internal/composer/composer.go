// Package composer renders availability transitions and tomorrow's schedule
// into Telegram HTML.
package composer

import (
	"fmt"
	"time"

	"powerwatch/internal/classifier"
	"powerwatch/internal/history"
	"powerwatch/internal/location"
	"powerwatch/internal/schedule"
	"powerwatch/pkg/tgui"
)

// DefaultSuspiciousAfter is the shortest gap between two observations that is
// reported as a real power event.
const DefaultSuspiciousAfter = 30 * time.Minute

// Shape identifies which of the six message variants was rendered.
type Shape int

const (
	ShapeFirstEnable Shape = iota
	ShapeFirstDisable
	ShapeEnable
	ShapeDisable
	ShapeSuspiciousEnable
	ShapeSuspiciousDisable
)

func (s Shape) String() string {
	switch s {
	case ShapeFirstEnable:
		return "first-enable"
	case ShapeFirstDisable:
		return "first-disable"
	case ShapeEnable:
		return "enable"
	case ShapeDisable:
		return "disable"
	case ShapeSuspiciousEnable:
		return "suspicious-enable"
	default:
		return "suspicious-disable"
	}
}

// Input is everything one notification is rendered from. Previous is nil on
// the first observation of a location; a Previous with a zero At means the
// prior state is known but its time is not.
type Input struct {
	Place      location.Location
	Previous   *history.Record
	Current    history.Record
	Prediction schedule.Prediction
	Context    classifier.Result
}

type Composer struct {
	suspicious time.Duration
}

func New(suspiciousAfter time.Duration) *Composer {
	if suspiciousAfter <= 0 {
		suspiciousAfter = DefaultSuspiciousAfter
	}
	return &Composer{suspicious: suspiciousAfter}
}

// ShapeOf picks the message variant for in.
func (c *Composer) ShapeOf(in Input) Shape {
	enable := in.Current.Available
	switch {
	case in.Previous == nil:
		if enable {
			return ShapeFirstEnable
		}
		return ShapeFirstDisable
	case !in.Previous.At.IsZero() && in.Current.At.Sub(in.Previous.At) < c.suspicious:
		if enable {
			return ShapeSuspiciousEnable
		}
		return ShapeSuspiciousDisable
	case enable:
		return ShapeEnable
	default:
		return ShapeDisable
	}
}

// Render returns the message body and the shape used.
func (c *Composer) Render(in Input) (tgui.Message, Shape) {
	shape := c.ShapeOf(in)
	loc := in.Place.Zone()
	name := tgui.Clip(in.Place.DisplayName(), 64)
	at := in.Current.At.In(loc)

	b := tgui.New()
	switch shape {
	case ShapeFirstEnable:
		b.Title("🟢", name+": power is on")
	case ShapeFirstDisable:
		b.Title("🔴", name+": power is off")
	case ShapeEnable:
		b.Title("🟢", name+": power is back")
	case ShapeDisable:
		b.Title("🔴", name+": power is gone")
	case ShapeSuspiciousEnable:
		b.Title("🟡", name+": connection is back")
		b.Line("The interruption was short; it may have been a network glitch rather than an outage.")
	case ShapeSuspiciousDisable:
		b.Title("🟡", name+": connection lost")
		b.Line("The previous change was only moments ago; this may be a network glitch rather than an outage.")
	}
	b.Line("🕒 " + at.Format("15:04"))

	if shape == ShapeEnable || shape == ShapeDisable {
		if !in.Previous.At.IsZero() {
			d := FormatDuration(in.Current.At.Sub(in.Previous.At))
			if shape == ShapeEnable {
				b.Line("⏱ The outage lasted " + d)
			} else {
				b.Line("⏱ Power was on for " + d)
			}
		}
	}

	if in.Current.Available {
		b.HLine(enableScheduleLine(in.Prediction, at, loc))
	} else {
		b.HLine(disableScheduleLine(in.Prediction, at, loc))
	}
	b.HLine(contextLine(in.Context, loc))
	return b.Build(), shape
}

// enableScheduleLine tells a freshly powered location when the next outage
// is due.
func enableScheduleLine(p schedule.Prediction, now time.Time, loc *time.Location) tgui.H {
	switch {
	case p.NextDisable != nil:
		return tgui.Cat("📅 Next scheduled outage: ", tgui.B(When(*p.NextDisable, now, loc)))
	case p.NextPossibleDisable != nil:
		return tgui.Cat("📅 Possible outage from ", tgui.B(When(*p.NextPossibleDisable, now, loc)))
	}
	return ""
}

// disableScheduleLine tells a dark location when power should return.
func disableScheduleLine(p schedule.Prediction, now time.Time, loc *time.Location) tgui.H {
	switch {
	case p.NextEnable != nil:
		return tgui.Cat("📅 Power expected back at ", tgui.B(When(*p.NextEnable, now, loc)))
	case p.NextPossibleEnable != nil:
		return tgui.Cat("📅 Power may be back from ", tgui.B(When(*p.NextPossibleEnable, now, loc)))
	}
	return ""
}

func contextLine(r classifier.Result, loc *time.Location) tgui.H {
	sched := ""
	if r.Scheduled != nil {
		sched = " (" + r.Scheduled.In(loc).Format("15:04") + ")"
	}
	off := FormatDuration(abs(r.Offset))
	switch r.Context {
	case classifier.ContextOnTime:
		return tgui.Esc("✅ Matches the schedule" + sched)
	case classifier.ContextEarly:
		return tgui.Esc(fmt.Sprintf("⚠️ %s earlier than scheduled%s", off, sched))
	case classifier.ContextVeryEarly:
		return tgui.Esc(fmt.Sprintf("🎉 %s ahead of schedule%s", off, sched))
	case classifier.ContextEmergency:
		return tgui.Esc(fmt.Sprintf("🚨 Emergency outage: %s before the scheduled time%s", off, sched))
	case classifier.ContextLate:
		return tgui.Esc(fmt.Sprintf("🐢 %s later than scheduled%s", off, sched))
	case classifier.ContextOffSchedule:
		return tgui.Esc("❗ Not in the outage schedule")
	}
	return ""
}

// When formats t relative to now's calendar day in loc.
func When(t, now time.Time, loc *time.Location) string {
	t, now = t.In(loc), now.In(loc)
	switch {
	case sameDay(t, now):
		return t.Format("15:04")
	case sameDay(t, now.AddDate(0, 0, 1)):
		return "tomorrow " + t.Format("15:04")
	}
	return t.Format("02.01 15:04")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// FormatDuration renders d as "2d 3h", "1h 05m" or "12m"; under a minute is
// "<1m".
func FormatDuration(d time.Duration) string {
	d = abs(d).Round(time.Minute)
	if d < time.Minute {
		return "<1m"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	mins := int(d / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
