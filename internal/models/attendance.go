package models

import "strings"

// AttendanceStatus is the per-day status chosen for an employee.
type AttendanceStatus string

const (
	StatusPresent     AttendanceStatus = "P"
	StatusAbsent      AttendanceStatus = "A"
	StatusLeave       AttendanceStatus = "L"
	StatusWeekOff     AttendanceStatus = "WO"
	StatusHalfLeave   AttendanceStatus = "HL"
	StatusPaidHoliday AttendanceStatus = "PH"
)

// Statuses lists every status in selector and export order.
var Statuses = []AttendanceStatus{
	StatusPresent,
	StatusAbsent,
	StatusLeave,
	StatusWeekOff,
	StatusHalfLeave,
	StatusPaidHoliday,
}

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLeave, StatusWeekOff, StatusHalfLeave, StatusPaidHoliday:
		return true
	default:
		return false
	}
}

// Working reports whether check-in/check-out come from user input.
func (s AttendanceStatus) Working() bool {
	return s == StatusPresent || s == StatusPaidHoliday
}

// ParseStatus accepts a status code in any letter case.
func ParseStatus(raw string) (AttendanceStatus, bool) {
	s := AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// DayInput is the raw per-day entry for the active employee. Nil times mean
// the field was left at its pre-filled default.
type DayInput struct {
	Status   AttendanceStatus `json:"status"`
	CheckIn  *string          `json:"checkIn,omitempty"`
	CheckOut *string          `json:"checkOut,omitempty"`
}

// DayRecord holds the resolved facts for one calendar day.
type DayRecord struct {
	Day      int              `json:"day"`
	Status   AttendanceStatus `json:"status"`
	CheckIn  Clock            `json:"checkIn"`
	CheckOut Clock            `json:"checkOut"`
	Hours    float64          `json:"hours"`
	Overtime float64          `json:"overtime"`
}

// StatusCounts tallies days per status for one employee month.
type StatusCounts struct {
	Present     int `json:"P"`
	Absent      int `json:"A"`
	Leave       int `json:"L"`
	WeekOff     int `json:"WO"`
	HalfLeave   int `json:"HL"`
	PaidHoliday int `json:"PH"`
}

// Add increments the counter for status.
func (c *StatusCounts) Add(status AttendanceStatus) {
	switch status {
	case StatusPresent:
		c.Present++
	case StatusAbsent:
		c.Absent++
	case StatusLeave:
		c.Leave++
	case StatusWeekOff:
		c.WeekOff++
	case StatusHalfLeave:
		c.HalfLeave++
	case StatusPaidHoliday:
		c.PaidHoliday++
	}
}

// Of returns the counter for status.
func (c StatusCounts) Of(status AttendanceStatus) int {
	switch status {
	case StatusPresent:
		return c.Present
	case StatusAbsent:
		return c.Absent
	case StatusLeave:
		return c.Leave
	case StatusWeekOff:
		return c.WeekOff
	case StatusHalfLeave:
		return c.HalfLeave
	case StatusPaidHoliday:
		return c.PaidHoliday
	default:
		return 0
	}
}

// EmployeeRow is one employee's complete month.
type EmployeeRow struct {
	Code            string       `json:"code"`
	Name            string       `json:"name"`
	Month           int          `json:"month"`
	Year            int          `json:"year"`
	Days            []DayRecord  `json:"days"`
	Counts          StatusCounts `json:"counts"`
	TotalAttendance int          `json:"totalAttendance"`
	TotalOvertime   float64      `json:"totalOvertime"`
}
