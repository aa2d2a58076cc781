package composer

import (
	"time"

	"powerwatch/internal/schedule"
	"powerwatch/pkg/tgui"
)

// Span is a run of equal non-ON slots within one day.
type Span struct {
	From, To string
	Status   schedule.Status
}

// Spans collapses a day grid into OFF and POSSIBLE runs. The end of the last
// slot of the day is "24:00".
func Spans(day schedule.DayGrid) []Span {
	slots := day.Slots()
	var out []Span
	for i := 0; i < len(slots); {
		st := slots[i]
		if st != schedule.StatusOff && st != schedule.StatusPossible {
			i++
			continue
		}
		j := i + 1
		for j < len(slots) && slots[j] == st {
			j++
		}
		out = append(out, Span{From: schedule.SlotLabel(i), To: endLabel(j), Status: st})
		i = j
	}
	return out
}

func endLabel(i int) string {
	if i >= schedule.SlotsPerDay {
		return "24:00"
	}
	return schedule.SlotLabel(i)
}

// RenderTomorrow lists tomorrow's planned outages for one queue.
func RenderTomorrow(placeName string, key schedule.Key, day time.Time, loc *time.Location, grid schedule.DayGrid) tgui.Message {
	if loc == nil {
		loc = time.UTC
	}
	b := tgui.New().
		Silent(true).
		Title("📅", "Schedule for tomorrow, "+day.In(loc).Format("02.01")).
		KV("Place", tgui.Clip(placeName, 64)).
		KV("Queue", key.Queue)

	spans := Spans(grid)
	if len(spans) == 0 {
		return b.Line("✅ No outages planned").Build()
	}
	b.Blank()
	for _, s := range spans {
		icon, what := "🔴", "outage"
		if s.Status == schedule.StatusPossible {
			icon, what = "🟡", "possible outage"
		}
		b.HLine(tgui.Cat(icon, " ", tgui.B(s.From+" - "+s.To), " ", what))
	}
	return b.Build()
}
