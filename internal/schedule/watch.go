package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "powerwatch/pkg/logx"
)

// Announcer is told when tomorrow's grid for a key appears or changes.
type Announcer interface {
	AnnounceTomorrow(ctx context.Context, key Key, day time.Time, grid DayGrid)
}

type watchState struct {
	today   int64
	present bool
	hash    uint64
}

// Watcher polls the dataset endpoint for tomorrow's grid. The first
// observation of each key is recorded without announcing.
type Watcher struct {
	src  DatasetSource
	keys func() []Key
	ann  Announcer
	log  logx.Logger

	mu   sync.Mutex
	seen map[Key]watchState
}

func NewWatcher(src DatasetSource, keys func() []Key, ann Announcer, log logx.Logger) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		src:  src,
		keys: keys,
		ann:  ann,
		log:  log.With(logx.String("comp", "tomorrow-watch")),
		seen: map[Key]watchState{},
	}
}

// Check fetches each referenced region once and announces changed keys. It
// returns the number of announcements made.
func (w *Watcher) Check(ctx context.Context) int {
	byRegion := map[string][]Key{}
	for _, k := range w.keys() {
		byRegion[k.Region] = append(byRegion[k.Region], k)
	}
	regions := make([]string, 0, len(byRegion))
	for r := range byRegion {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	announced := 0
	for _, region := range regions {
		if ctx.Err() != nil {
			return announced
		}
		ds, err := w.src.FetchRegion(ctx, region)
		if err != nil {
			w.log.Warn("dataset fetch failed", logx.String("region", region), logx.Err(err))
			continue
		}
		tomorrow, hasTomorrow := ds.Tomorrow()
		for _, key := range byRegion[region] {
			var grid DayGrid
			if hasTomorrow {
				grid = ds.Group(tomorrow, key.Group())
			}
			if w.observe(key, ds.Today, grid) {
				w.log.Info("tomorrow schedule changed",
					logx.String("key", key.String()),
					logx.Time("day", time.Unix(tomorrow, 0)))
				w.ann.AnnounceTomorrow(ctx, key, time.Unix(tomorrow, 0), grid)
				announced++
			}
		}
	}
	return announced
}

// observe records the new state and reports whether it must be announced.
func (w *Watcher) observe(key Key, today int64, grid DayGrid) bool {
	cur := watchState{today: today, present: len(grid) > 0, hash: grid.Hash()}

	w.mu.Lock()
	defer w.mu.Unlock()

	prev, known := w.seen[key]
	w.seen[key] = cur
	if !known {
		return false
	}
	if prev.today != today {
		prev = watchState{today: today}
	}
	if !cur.present {
		return false
	}
	return !prev.present || prev.hash != cur.hash
}

// Forget drops the baseline for keys no longer referenced.
func (w *Watcher) Forget(keep []Key) {
	set := make(map[Key]struct{}, len(keep))
	for _, k := range keep {
		set[k] = struct{}{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.seen {
		if _, ok := set[k]; !ok {
			delete(w.seen, k)
		}
	}
}
