package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	logx "powerwatch/pkg/logx"
)

func nilLogger() logx.Logger { return logx.Nop() }

func TestParseStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"ON": StatusOn, "on": StatusOn, " yes ": StatusOn,
		"OFF": StatusOff, "no": StatusOff,
		"POSSIBLE": StatusPossible, "maybe": StatusPossible,
		"": StatusUnknown, "banana": StatusUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseStatus(in), in)
	}
}

func TestNormalizeLabel(t *testing.T) {
	t.Parallel()

	l, ok := normalizeLabel("7:30")
	assert.True(t, ok)
	assert.Equal(t, "07:30", l)

	_, ok = normalizeLabel("07:15")
	assert.False(t, ok)
	_, ok = normalizeLabel("25:00")
	assert.False(t, ok)
}

func TestSlotLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00:00", SlotLabel(0))
	assert.Equal(t, "00:30", SlotLabel(1))
	assert.Equal(t, "23:30", SlotLabel(SlotsPerDay-1))
}

func TestExpandHours(t *testing.T) {
	t.Parallel()

	d := ExpandHours(map[string]string{
		"1":  "first",
		"2":  "second",
		"3":  "mfirst",
		"4":  "msecond",
		"5":  "maybe",
		"24": "no",
		"25": "no",
		"x":  "yes",
		"6":  "unheard-of",
	})
	assert.Equal(t, StatusOff, d["00:00"])
	assert.Equal(t, StatusOn, d["00:30"])
	assert.Equal(t, StatusOn, d["01:00"])
	assert.Equal(t, StatusOff, d["01:30"])
	assert.Equal(t, StatusPossible, d["02:00"])
	assert.Equal(t, StatusOn, d["02:30"])
	assert.Equal(t, StatusOn, d["03:00"])
	assert.Equal(t, StatusPossible, d["03:30"])
	assert.Equal(t, StatusPossible, d["04:00"])
	assert.Equal(t, StatusOff, d["23:00"])
	assert.Equal(t, StatusOff, d["23:30"])
	assert.Len(t, d, 12)
}

func TestDayGridHash(t *testing.T) {
	t.Parallel()

	a := DayGrid{"00:00": StatusOn, "00:30": StatusOff}
	b := DayGrid{"00:30": StatusOff, "00:00": StatusOn}
	assert.Equal(t, a.Hash(), b.Hash())

	b["00:30"] = StatusPossible
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Zero(t, DayGrid(nil).Hash())
}

func TestGridKeysSorted(t *testing.T) {
	t.Parallel()

	g := NewGrid(at(15, 0, 0), "2026-10-15", "")
	g.Set(Key{Region: "b", Queue: "1"}, "2026-10-15", "00:00", StatusOn)
	g.Set(Key{Region: "a", Queue: "2"}, "2026-10-15", "00:00", StatusOn)
	g.Set(Key{Region: "a", Queue: "1"}, "2026-10-15", "00:00", StatusOn)
	assert.Equal(t, []Key{{"a", "1"}, {"a", "2"}, {"b", "1"}}, g.Keys())
	assert.Nil(t, (*Grid)(nil).Keys())
}
