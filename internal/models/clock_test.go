package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		raw  string
		want Clock
		ok   bool
	}{
		{"09:00", NewClock(9, 0), true},
		{"00:00", 0, true},
		{"23:59", NewClock(23, 59), true},
		{"9:00", 0, false},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{" 09:00", 0, false},
		{"9am", 0, false},
		{"", 0, false},
		{"09:00:00", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.raw)
		if !tc.ok {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestClockJSON(t *testing.T) {
	rec := DayRecord{Day: 3, Status: StatusPresent, CheckIn: NewClock(22, 0), CheckOut: NewClock(6, 5)}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"checkIn":"22:00"`)
	assert.Contains(t, string(raw), `"checkOut":"06:05"`)

	var back DayRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec, back)

	assert.Error(t, json.Unmarshal([]byte(`{"checkIn":"7pm"}`), &back))
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus(" wo ")
	assert.True(t, ok)
	assert.Equal(t, StatusWeekOff, s)

	_, ok = ParseStatus("X")
	assert.False(t, ok)
}

func TestStatusCounts(t *testing.T) {
	var c StatusCounts
	for _, s := range Statuses {
		c.Add(s)
	}
	c.Add(StatusPresent)
	assert.Equal(t, 2, c.Of(StatusPresent))
	assert.Equal(t, 1, c.Of(StatusPaidHoliday))
	assert.Equal(t, 0, c.Of("X"))
}
