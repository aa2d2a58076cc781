// Package location holds the monitored places and the registry the
// orchestrator reads them from.
package location

import (
	"sort"
	"sync"
	"time"
)

// Location is immutable once loaded; a reload replaces the whole set.
type Location struct {
	ID      string
	Name    string
	Host    string
	TZ      *time.Location
	Enabled bool

	// Region and Queue select the published outage schedule. Both empty
	// means the location has no schedule.
	Region string
	Queue  string
}

func (l Location) HasSchedule() bool { return l.Region != "" && l.Queue != "" }

// Zone returns the location's time zone, falling back to UTC.
func (l Location) Zone() *time.Location {
	if l.TZ == nil {
		return time.UTC
	}
	return l.TZ
}

// DisplayName prefers the human name over the id.
func (l Location) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}

type Registry struct {
	mu   sync.RWMutex
	all  []Location
	byID map[string]Location
}

func NewRegistry(locs ...Location) *Registry {
	r := &Registry{}
	r.Replace(locs)
	return r
}

// Replace swaps the registry contents wholesale.
func (r *Registry) Replace(locs []Location) {
	all := append([]Location(nil), locs...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	byID := make(map[string]Location, len(all))
	for _, l := range all {
		byID[l.ID] = l
	}

	r.mu.Lock()
	r.all = all
	r.byID = byID
	r.mu.Unlock()
}

func (r *Registry) All() []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Location(nil), r.all...)
}

func (r *Registry) Enabled() []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Location, 0, len(r.all))
	for _, l := range r.all {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out
}

func (r *Registry) Get(id string) (Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byID[id]
	return l, ok
}
