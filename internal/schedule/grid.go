// Package schedule caches the published outage grid and answers "when is
// the next slot with status X" questions against it.
package schedule

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	SlotLength  = 30 * time.Minute
	SlotsPerDay = 48
	dateLayout  = "2006-01-02"
	labelLayout = "15:04"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusOn
	StatusOff
	StatusPossible
)

func (s Status) String() string {
	switch s {
	case StatusOn:
		return "ON"
	case StatusOff:
		return "OFF"
	case StatusPossible:
		return "POSSIBLE"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus accepts the API's words and the numeric codes some mirrors use.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "YES", "1":
		return StatusOn
	case "OFF", "NO", "2":
		return StatusOff
	case "POSSIBLE", "MAYBE", "GRAY", "GREY", "3":
		return StatusPossible
	default:
		return StatusUnknown
	}
}

// Key selects one queue of one region.
type Key struct {
	Region string
	Queue  string
}

func (k Key) String() string { return k.Region + "/" + k.Queue }

// Group is the dataset's name for the queue ("1.1" -> "GPV1.1").
func (k Key) Group() string { return "GPV" + k.Queue }

// DayGrid maps a slot label ("HH:MM", slot start) to its status.
type DayGrid map[string]Status

// Slots returns the day's statuses in slot order; missing slots are unknown.
func (d DayGrid) Slots() [SlotsPerDay]Status {
	var out [SlotsPerDay]Status
	for i := range out {
		out[i] = d[SlotLabel(i)]
	}
	return out
}

// Hash is stable across map iteration order; an empty grid hashes to 0.
func (d DayGrid) Hash() uint64 {
	if len(d) == 0 {
		return 0
	}
	labels := make([]string, 0, len(d))
	for l := range d {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	h := fnv.New64a()
	for _, l := range labels {
		fmt.Fprintf(h, "%s=%d;", l, d[l])
	}
	return h.Sum64()
}

// SlotLabel returns the label of the i-th half-hour slot of a day.
func SlotLabel(i int) string {
	return fmt.Sprintf("%02d:%02d", i/2, (i%2)*30)
}

// normalizeLabel turns "7:30" or "07:30" into "07:30"; ok is false for
// anything that is not a half-hour boundary.
func normalizeLabel(s string) (string, bool) {
	t, err := time.Parse(labelLayout, strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	if t.Minute()%30 != 0 {
		return "", false
	}
	return t.Format(labelLayout), true
}

// Grid is one complete fetch: region -> queue -> date -> day grid. It is
// never mutated after construction.
type Grid struct {
	FetchedAt time.Time
	Today     string
	Tomorrow  string
	regions   map[string]map[string]map[string]DayGrid
}

func NewGrid(fetchedAt time.Time, today, tomorrow string) *Grid {
	return &Grid{
		FetchedAt: fetchedAt,
		Today:     today,
		Tomorrow:  tomorrow,
		regions:   map[string]map[string]map[string]DayGrid{},
	}
}

// Set records one slot. Used while building a grid.
func (g *Grid) Set(key Key, date, label string, st Status) {
	queues := g.regions[key.Region]
	if queues == nil {
		queues = map[string]map[string]DayGrid{}
		g.regions[key.Region] = queues
	}
	days := queues[key.Queue]
	if days == nil {
		days = map[string]DayGrid{}
		queues[key.Queue] = days
	}
	day := days[date]
	if day == nil {
		day = DayGrid{}
		days[date] = day
	}
	day[label] = st
}

func (g *Grid) Has(key Key) bool {
	if g == nil {
		return false
	}
	return len(g.regions[key.Region][key.Queue]) > 0
}

// Day returns the grid for one date, or nil.
func (g *Grid) Day(key Key, date string) DayGrid {
	if g == nil {
		return nil
	}
	return g.regions[key.Region][key.Queue][date]
}

// At returns the status of the slot containing t (t is already in the
// location's zone).
func (g *Grid) At(key Key, t time.Time) Status {
	return g.Day(key, t.Format(dateLayout))[t.Format(labelLayout)]
}

// Keys lists every region/queue present, sorted.
func (g *Grid) Keys() []Key {
	if g == nil {
		return nil
	}
	var out []Key
	for r, qs := range g.regions {
		for q := range qs {
			out = append(out, Key{Region: r, Queue: q})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Queue < out[j].Queue
	})
	return out
}

// hourCode expands the dataset's hourly vocabulary into two half-hour slots.
var hourCode = map[string][2]Status{
	"yes":     {StatusOn, StatusOn},
	"no":      {StatusOff, StatusOff},
	"maybe":   {StatusPossible, StatusPossible},
	"first":   {StatusOff, StatusOn},
	"second":  {StatusOn, StatusOff},
	"mfirst":  {StatusPossible, StatusOn},
	"msecond": {StatusOn, StatusPossible},
}

// ExpandHours converts an hourly map ("1".."24" -> code) into a day grid.
// Hour "1" covers 00:00-01:00.
func ExpandHours(hours map[string]string) DayGrid {
	out := make(DayGrid, SlotsPerDay)
	for k, v := range hours {
		h, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || h < 1 || h > 24 {
			continue
		}
		pair, ok := hourCode[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			continue
		}
		out[SlotLabel((h-1)*2)] = pair[0]
		out[SlotLabel((h-1)*2+1)] = pair[1]
	}
	return out
}
