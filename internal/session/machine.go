// Package session implements the entry wizard's state machine. A state is
// Entering(index) while index < roster length and Complete once index equals
// it. Transitions take a SessionState and return a new one; the input value is
// never mutated, so callers can keep the previous state for rollback.
package session

import (
	"fmt"

	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

// Phase names the machine state.
type Phase string

const (
	PhaseEntering Phase = "entering"
	PhaseComplete Phase = "complete"
)

// Machine binds transitions to a roster length.
type Machine struct {
	rosterLen int
}

// NewMachine returns a machine for a roster of n employees.
func NewMachine(n int) Machine {
	if n < 0 {
		n = 0
	}
	return Machine{rosterLen: n}
}

// RosterLen returns the roster size the machine was built for.
func (m Machine) RosterLen() int { return m.rosterLen }

// Empty is the initial state of a fresh session.
func Empty() models.SessionState {
	return models.SessionState{Rows: map[int]models.EmployeeRow{}}
}

// Restore adopts a loaded snapshot, clamping the pointer into [0, rosterLen].
// Saved rows are kept even when the roster is shorter than they reach; rows
// past rosterLen are simply not visited until a longer roster is loaded.
func (m Machine) Restore(s models.SessionState) models.SessionState {
	out := s.Clone()
	if out.CurrentIndex < 0 {
		out.CurrentIndex = 0
	}
	if out.CurrentIndex > m.rosterLen {
		out.CurrentIndex = m.rosterLen
	}
	return out
}

// Phase reports whether s is still entering or complete.
func (m Machine) Phase(s models.SessionState) Phase {
	if s.CurrentIndex >= m.rosterLen {
		return PhaseComplete
	}
	return PhaseEntering
}

// Save writes row at the current index without moving the pointer.
func (m Machine) Save(s models.SessionState, row models.EmployeeRow) (models.SessionState, error) {
	if m.Phase(s) == PhaseComplete {
		return s, appErrors.Clone(appErrors.ErrSessionComplete, "no employee is selected; go back to edit a saved row")
	}
	next := s.Clone()
	next.Rows[s.CurrentIndex] = row
	return next, nil
}

// Advance moves to the next employee, or to Complete after the last one.
func (m Machine) Advance(s models.SessionState) (models.SessionState, error) {
	if m.Phase(s) == PhaseComplete {
		return s, appErrors.ErrSessionComplete
	}
	next := s.Clone()
	next.CurrentIndex++
	return next, nil
}

// Retreat moves to the previous employee. It is a no-op at index 0, and from
// Complete it re-enters the last employee.
func (m Machine) Retreat(s models.SessionState) models.SessionState {
	next := s.Clone()
	switch {
	case m.Phase(s) == PhaseComplete:
		next.CurrentIndex = m.rosterLen - 1
		if next.CurrentIndex < 0 {
			next.CurrentIndex = 0
		}
	case s.CurrentIndex > 0:
		next.CurrentIndex--
	}
	return next
}

// Ordered returns saved rows by roster index ascending.
func (m Machine) Ordered(s models.SessionState) []models.EmployeeRow {
	rows := make([]models.EmployeeRow, 0, len(s.Rows))
	for idx := 0; idx < m.rosterLen; idx++ {
		if row, ok := s.Rows[idx]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// Missing lists roster indices with no saved row.
func (m Machine) Missing(s models.SessionState) []int {
	var missing []int
	for idx := 0; idx < m.rosterLen; idx++ {
		if _, ok := s.Rows[idx]; !ok {
			missing = append(missing, idx)
		}
	}
	return missing
}

func (p Phase) String() string { return string(p) }

// Describe renders a short position label such as "3 of 12" or "complete".
func (m Machine) Describe(s models.SessionState) string {
	if m.Phase(s) == PhaseComplete {
		return string(PhaseComplete)
	}
	return fmt.Sprintf("%d of %d", s.CurrentIndex+1, m.rosterLen)
}
