// Package history keeps the per-location sequence of observed availability
// transitions in memory with a rolling retention window.
package history

import (
	"sort"
	"sync"
	"time"
)

const DefaultRetention = 72 * time.Hour

// Record is one observed state. Records are never mutated after Append.
type Record struct {
	LocationID string
	At         time.Time
	Available  bool
}

// Interval is a span of constant state. Known is false for the leading span
// of a range that starts before the first record ever seen.
type Interval struct {
	Start   time.Time
	End     time.Time
	Enabled bool
	Known   bool
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

type Option func(*Store)

// WithClock overrides the time source used for pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetention overrides the pruning horizon; non-positive values are ignored.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	records   map[string][]Record
	last      map[string]bool
	retention time.Duration
	now       func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		records:   map[string][]Record{},
		last:      map[string]bool{},
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append inserts rec in timestamp order, updates the last-known state and
// prunes the location's records older than the retention window. The newest
// record always survives pruning.
func (s *Store) Append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[rec.LocationID]
	i := sort.Search(len(recs), func(i int) bool { return recs[i].At.After(rec.At) })
	recs = append(recs, Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec

	recs = prune(recs, s.now().Add(-s.retention))
	s.records[rec.LocationID] = recs
	s.last[rec.LocationID] = recs[len(recs)-1].Available
}

func prune(recs []Record, cutoff time.Time) []Record {
	i := sort.Search(len(recs), func(i int) bool { return !recs[i].At.Before(cutoff) })
	if i == 0 {
		return recs
	}
	if i >= len(recs) {
		i = len(recs) - 1
	}
	return append([]Record(nil), recs[i:]...)
}

// Seed sets the last-known state without adding a record, e.g. from a
// persisted snapshot at startup.
func (s *Store) Seed(locationID string, available bool) {
	s.mu.Lock()
	s.last[locationID] = available
	s.mu.Unlock()
}

// LastState returns the last-known state and whether one exists.
func (s *Store) LastState(locationID string) (available, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	available, ok = s.last[locationID]
	return available, ok
}

// Forget drops everything known about a location.
func (s *Store) Forget(locationID string) {
	s.mu.Lock()
	delete(s.records, locationID)
	delete(s.last, locationID)
	s.mu.Unlock()
}

// Len returns the number of retained records for a location.
func (s *Store) Len(locationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[locationID])
}

// Latest returns up to limit records, newest first. A nil upper bound means
// no bound; otherwise only records at or before *upper are considered.
// limit <= 0 returns every matching record.
func (s *Store) Latest(locationID string, limit int, upper *time.Time) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[locationID]
	end := len(recs)
	if upper != nil {
		end = sort.Search(len(recs), func(i int) bool { return recs[i].At.After(*upper) })
	}
	n := end
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := end - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out
}

// RangeStats splits [from, to) into contiguous intervals of constant state.
// The state at from comes from the last record strictly before from; each
// record inside the range closes the running interval and opens a new one.
// Records that repeat the running state do not split it. An empty or
// inverted range yields nil.
func (s *Store) RangeStats(locationID string, from, to time.Time) []Interval {
	if !to.After(from) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[locationID]
	i := sort.Search(len(recs), func(i int) bool { return !recs[i].At.Before(from) })

	cur := Interval{Start: from}
	if i > 0 {
		cur.Enabled = recs[i-1].Available
		cur.Known = true
	}

	var out []Interval
	for ; i < len(recs) && recs[i].At.Before(to); i++ {
		r := recs[i]
		if cur.Known && cur.Enabled == r.Available {
			continue
		}
		if r.At.After(cur.Start) {
			cur.End = r.At
			out = append(out, cur)
			cur = Interval{Start: r.At, Enabled: r.Available, Known: true}
			continue
		}
		// Same instant as the running interval's start: the new state wins.
		cur.Enabled, cur.Known = r.Available, true
		if n := len(out); n > 0 && out[n-1].Known && out[n-1].Enabled == cur.Enabled {
			cur.Start = out[n-1].Start
			out = out[:n-1]
		}
	}
	cur.End = to
	return append(out, cur)
}

// Summary totals the time spent in each state over a set of intervals.
type Summary struct {
	On      time.Duration
	Off     time.Duration
	Unknown time.Duration
	Outages int
}

func Summarize(ivs []Interval) Summary {
	var s Summary
	for _, iv := range ivs {
		d := iv.Duration()
		switch {
		case !iv.Known:
			s.Unknown += d
		case iv.Enabled:
			s.On += d
		default:
			s.Off += d
			s.Outages++
		}
	}
	return s
}
