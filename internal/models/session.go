package models

import (
	"fmt"
	"time"
)

// Employee is one roster entry.
type Employee struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Period is the month being entered.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// DaysInMonth returns the number of calendar days in the period.
func (p Period) DaysInMonth() int {
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date returns the calendar date of day within the period, in UTC.
func (p Period) Date(day int) time.Time {
	return time.Date(p.Year, time.Month(p.Month), day, 0, 0, 0, 0, time.UTC)
}

func (p Period) String() string {
	return fmt.Sprintf("%s %d", time.Month(p.Month), p.Year)
}

// SessionState is the durable progress of an entry session: the roster
// pointer and every saved row keyed by roster index.
type SessionState struct {
	CurrentIndex int                 `json:"currentIndex"`
	Rows         map[int]EmployeeRow `json:"rows"`
}

// Clone returns a copy whose row map can be mutated independently.
func (s SessionState) Clone() SessionState {
	rows := make(map[int]EmployeeRow, len(s.Rows))
	for k, v := range s.Rows {
		rows[k] = v
	}
	return SessionState{CurrentIndex: s.CurrentIndex, Rows: rows}
}
