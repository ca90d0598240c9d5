// Package attendance resolves per-day entries and folds them into monthly rows.
// Everything here is pure: no I/O, no clocks, no shared state.
package attendance

import (
	"math"
	"time"

	"github.com/noah-isme/attendance-sheet/internal/models"
)

// Baseline is the working-day length beyond which overtime accrues.
const Baseline = 8.0

var (
	DefaultCheckIn  = models.NewClock(9, 0)
	DefaultCheckOut = models.NewClock(18, 0)

	midnight = models.NewClock(0, 0)
)

// Fields named in substitutions.
const (
	FieldCheckIn  = "checkIn"
	FieldCheckOut = "checkOut"
)

// Substitution records a malformed time that was replaced by its default.
type Substitution struct {
	Day     int          `json:"day"`
	Field   string       `json:"field"`
	Raw     string       `json:"raw"`
	Applied models.Clock `json:"applied"`
}

type policy struct {
	checkIn, checkOut models.Clock
	hours             float64
}

var fixed = map[models.AttendanceStatus]policy{
	models.StatusAbsent:    {midnight, midnight, 0},
	models.StatusLeave:     {midnight, midnight, 0},
	models.StatusWeekOff:   {models.NewClock(9, 0), models.NewClock(17, 0), 8},
	models.StatusHalfLeave: {models.NewClock(9, 0), models.NewClock(13, 0), 4},
}

// Resolve maps one day's input to its record. Working statuses take their
// times from the input, falling back to defaults; malformed text also yields
// a Substitution so the caller can warn without blocking entry.
func Resolve(input models.DayInput, date time.Time) (models.DayRecord, []Substitution) {
	record := models.DayRecord{Day: date.Day(), Status: input.Status}

	if p, ok := fixed[input.Status]; ok {
		record.CheckIn, record.CheckOut, record.Hours = p.checkIn, p.checkOut, p.hours
		return record, nil
	}

	var subs []Substitution
	checkIn, sub := clockOrDefault(input.CheckIn, DefaultCheckIn)
	if sub != nil {
		sub.Day, sub.Field = record.Day, FieldCheckIn
		subs = append(subs, *sub)
	}
	checkOut, sub := clockOrDefault(input.CheckOut, DefaultCheckOut)
	if sub != nil {
		sub.Day, sub.Field = record.Day, FieldCheckOut
		subs = append(subs, *sub)
	}

	record.CheckIn, record.CheckOut = checkIn, checkOut
	record.Hours = ElapsedHours(date, checkIn, checkOut)
	if input.Status == models.StatusPresent {
		record.Overtime = Round2(math.Max(0, record.Hours-Baseline))
	}
	return record, subs
}

func clockOrDefault(raw *string, fallback models.Clock) (models.Clock, *Substitution) {
	if raw == nil {
		return fallback, nil
	}
	c, err := models.ParseClock(*raw)
	if err != nil {
		return fallback, &Substitution{Raw: *raw, Applied: fallback}
	}
	return c, nil
}

// ElapsedHours measures check-in to check-out on date, rolling the check-out
// to the next calendar day when it is not strictly later.
func ElapsedHours(date time.Time, checkIn, checkOut models.Clock) float64 {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	in := day.Add(time.Duration(checkIn) * time.Minute)
	out := day.Add(time.Duration(checkOut) * time.Minute)
	if !out.After(in) {
		out = out.AddDate(0, 0, 1)
	}
	return Round2(out.Sub(in).Seconds() / 3600)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
