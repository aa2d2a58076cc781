// Package classifier annotates an observed transition with how it relates to
// the nearest scheduled transition of the same direction.
package classifier

import "time"

type Direction int

const (
	Disable Direction = iota
	Enable
)

func (d Direction) String() string {
	if d == Enable {
		return "enable"
	}
	return "disable"
}

// DirectionOf returns Enable for a transition to available.
func DirectionOf(available bool) Direction {
	if available {
		return Enable
	}
	return Disable
}

type Context int

const (
	ContextNone Context = iota
	ContextOnTime
	ContextEarly
	ContextVeryEarly
	ContextEmergency
	ContextLate
	ContextOffSchedule
)

func (c Context) String() string {
	switch c {
	case ContextOnTime:
		return "on-time"
	case ContextEarly:
		return "early"
	case ContextVeryEarly:
		return "very-early"
	case ContextEmergency:
		return "emergency"
	case ContextLate:
		return "late"
	case ContextOffSchedule:
		return "off-schedule"
	default:
		return "none"
	}
}

const (
	OnTimeTolerance = 30 * time.Minute
	FarThreshold    = 120 * time.Minute
)

// Result carries the context and the signed offset observed - scheduled.
// Offset is zero when there was no scheduled event.
type Result struct {
	Context   Context
	Offset    time.Duration
	Scheduled *time.Time
}

// Classify compares an observed transition against the scheduled event of
// the same direction. A nil scheduled event yields ContextOffSchedule for a
// disable and ContextNone for an enable; late enables are not annotated
// either.
func Classify(observed time.Time, dir Direction, scheduled *time.Time) Result {
	if scheduled == nil {
		if dir == Disable {
			return Result{Context: ContextOffSchedule}
		}
		return Result{Context: ContextNone}
	}

	diff := observed.Sub(*scheduled)
	r := Result{Offset: diff, Scheduled: scheduled}
	switch {
	case diff >= -OnTimeTolerance && diff <= OnTimeTolerance:
		r.Context = ContextOnTime
	case diff > OnTimeTolerance:
		if dir == Disable {
			r.Context = ContextLate
		}
	case diff <= -FarThreshold:
		if dir == Disable {
			r.Context = ContextEmergency
		} else {
			r.Context = ContextVeryEarly
		}
	default:
		r.Context = ContextEarly
	}
	return r
}
