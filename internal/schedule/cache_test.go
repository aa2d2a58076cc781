package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kyiv = Key{Region: "kyiv", Queue: "1.1"}

func at(day, hh, mm int) time.Time {
	return time.Date(2026, 10, day, hh, mm, 0, 0, time.UTC)
}

// testGrid: on the 15th ON until 08:00, OFF 08:00-12:00, POSSIBLE
// 12:00-14:00, ON afterwards; the 16th is ON all day.
func testGrid() *Grid {
	g := NewGrid(at(15, 0, 0), "2026-10-15", "2026-10-16")
	for i := 0; i < SlotsPerDay; i++ {
		st := StatusOn
		switch {
		case i >= 16 && i < 24:
			st = StatusOff
		case i >= 24 && i < 28:
			st = StatusPossible
		}
		g.Set(kyiv, "2026-10-15", SlotLabel(i), st)
		g.Set(kyiv, "2026-10-16", SlotLabel(i), StatusOn)
	}
	return g
}

type fakeSource struct {
	grid *Grid
	err  error
	n    int
}

func (f *fakeSource) Fetch(context.Context) (*Grid, error) {
	f.n++
	return f.grid, f.err
}

type refreshRecorder struct{ oks, fails int }

func (r *refreshRecorder) ObserveRefresh(ok bool, _ time.Time) {
	if ok {
		r.oks++
	} else {
		r.fails++
	}
}

func TestRefreshKeepsPreviousGridOnFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{grid: testGrid()}
	obs := &refreshRecorder{}
	c := NewCache(src, nilLogger(), WithObserver(obs))
	assert.Nil(t, c.Grid())

	require.NoError(t, c.Refresh(context.Background()))
	first := c.Grid()
	require.NotNil(t, first)

	src.grid, src.err = nil, errors.New("upstream down")
	assert.Error(t, c.Refresh(context.Background()))
	assert.Same(t, first, c.Grid())

	src.err = nil
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNoData)
	assert.Same(t, first, c.Grid())

	assert.Equal(t, 1, obs.oks)
	assert.Equal(t, 2, obs.fails)
}

func TestRefreshReplacesWholesale(t *testing.T) {
	t.Parallel()

	src := &fakeSource{grid: testGrid()}
	c := NewCache(src, nilLogger())
	require.NoError(t, c.Refresh(context.Background()))

	other := NewGrid(at(15, 1, 0), "2026-10-15", "2026-10-16")
	other.Set(Key{Region: "lviv", Queue: "2.1"}, "2026-10-15", "00:00", StatusOff)
	src.grid = other
	require.NoError(t, c.Refresh(context.Background()))

	assert.False(t, c.Has(kyiv))
	assert.True(t, c.Has(Key{Region: "lviv", Queue: "2.1"}))
}

func TestPredict(t *testing.T) {
	t.Parallel()

	c := NewCache(&fakeSource{}, nilLogger())
	c.Set(testGrid())

	p := c.PredictAt(kyiv, at(15, 9, 10), time.UTC)
	require.NotNil(t, p.NextDisable)
	require.NotNil(t, p.NextEnable)
	require.NotNil(t, p.NextPossibleEnable)
	require.NotNil(t, p.NextPossibleDisable)
	assert.Equal(t, at(15, 9, 0), *p.NextDisable, "current slot counts")
	assert.Equal(t, at(15, 14, 0), *p.NextEnable)
	assert.Equal(t, at(15, 12, 0), *p.NextPossibleEnable)
	assert.Equal(t, *p.NextPossibleEnable, *p.NextPossibleDisable)
}

func TestPredictUsesCacheClock(t *testing.T) {
	t.Parallel()

	c := NewCache(&fakeSource{}, nilLogger(), WithClock(func() time.Time { return at(15, 9, 10) }))
	c.Set(testGrid())

	p := c.Predict(kyiv, time.UTC)
	assert.Equal(t, c.PredictAt(kyiv, at(15, 9, 10), time.UTC), p)
	require.NotNil(t, p.NextEnable)
	assert.Equal(t, at(15, 14, 0), *p.NextEnable)
	assert.True(t, c.Predict(Key{Region: "kyiv", Queue: "9.9"}, time.UTC).IsEmpty())
}

func TestPredictMissingFields(t *testing.T) {
	t.Parallel()

	c := NewCache(&fakeSource{}, nilLogger())
	c.Set(testGrid())

	// From 14:00 on the 15th everything ahead is ON and the 17th is absent.
	p := c.PredictAt(kyiv, at(15, 14, 5), time.UTC)
	require.NotNil(t, p.NextEnable)
	assert.Equal(t, at(15, 14, 0), *p.NextEnable)
	assert.Nil(t, p.NextDisable)
	assert.Nil(t, p.NextPossibleEnable)
	assert.Nil(t, p.NextPossibleDisable)
}

func TestPredictWithoutData(t *testing.T) {
	t.Parallel()

	c := NewCache(&fakeSource{}, nilLogger())
	assert.True(t, c.PredictAt(kyiv, at(15, 9, 0), time.UTC).IsEmpty())

	c.Set(testGrid())
	assert.True(t, c.PredictAt(Key{Region: "kyiv", Queue: "9.9"}, at(15, 9, 0), time.UTC).IsEmpty())
}

func TestPredictUsesLocationZone(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+3", 3*3600)
	c := NewCache(&fakeSource{}, nilLogger())
	c.Set(testGrid())

	// 05:10 UTC is 08:10 local, inside the OFF block.
	p := c.PredictAt(kyiv, at(15, 5, 10), zone)
	require.NotNil(t, p.NextDisable)
	assert.Equal(t, "08:00", p.NextDisable.Format("15:04"))
	assert.True(t, p.NextDisable.Equal(at(15, 5, 0)))
}

func TestNearestEvents(t *testing.T) {
	t.Parallel()

	c := NewCache(&fakeSource{}, nilLogger())
	c.Set(testGrid())

	got, ok := c.NearestDisable(kyiv, at(15, 8, 5), time.UTC)
	require.True(t, ok)
	assert.Equal(t, at(15, 8, 0), got)

	got, ok = c.NearestDisable(kyiv, at(15, 6, 0), time.UTC)
	require.True(t, ok)
	assert.Equal(t, at(15, 8, 0), got, "future events count too")

	got, ok = c.NearestEnable(kyiv, at(15, 13, 50), time.UTC)
	require.True(t, ok)
	assert.Equal(t, at(15, 14, 0), got, "POSSIBLE to ON is an enable")

	_, ok = c.NearestDisable(kyiv, at(15, 21, 0), time.UTC)
	assert.False(t, ok, "08:00 is outside a 12h window")

	_, ok = c.NearestEnable(Key{Region: "nowhere"}, at(15, 12, 0), time.UTC)
	assert.False(t, ok)
}

func TestNearestEventWindowOption(t *testing.T) {
	t.Parallel()

	c := NewCache(&fakeSource{}, nilLogger(), WithEventWindow(time.Hour))
	c.Set(testGrid())

	_, ok := c.NearestDisable(kyiv, at(15, 10, 0), time.UTC)
	assert.False(t, ok)
	_, ok = c.NearestDisable(kyiv, at(15, 8, 45), time.UTC)
	assert.True(t, ok)
}

func TestSlotStart(t *testing.T) {
	t.Parallel()

	assert.Equal(t, at(15, 9, 30), SlotStart(at(15, 9, 59), time.UTC))
	assert.Equal(t, at(15, 9, 0), SlotStart(at(15, 9, 0), time.UTC))
}
