package attendance

import (
	"fmt"

	"github.com/noah-isme/attendance-sheet/internal/models"
)

// ResolveMonth resolves one input per calendar day of period.
func ResolveMonth(period models.Period, inputs []models.DayInput) ([]models.DayRecord, []Substitution, error) {
	if want := period.DaysInMonth(); len(inputs) != want {
		return nil, nil, fmt.Errorf("expected %d days for %s, got %d", want, period, len(inputs))
	}
	records := make([]models.DayRecord, len(inputs))
	var subs []Substitution
	for i, input := range inputs {
		if !input.Status.Valid() {
			return nil, nil, fmt.Errorf("day %d: unknown status %q", i+1, input.Status)
		}
		rec, s := Resolve(input, period.Date(i+1))
		records[i] = rec
		subs = append(subs, s...)
	}
	return records, subs, nil
}

// Aggregate folds a full month of records into the employee's row. Leave days
// count toward total attendance alongside present, half-leave and paid-holiday.
func Aggregate(employee models.Employee, period models.Period, days []models.DayRecord) (models.EmployeeRow, error) {
	if want := period.DaysInMonth(); len(days) != want {
		return models.EmployeeRow{}, fmt.Errorf("expected %d days for %s, got %d", want, period, len(days))
	}

	row := models.EmployeeRow{
		Code:  employee.Code,
		Name:  employee.Name,
		Month: period.Month,
		Year:  period.Year,
		Days:  append([]models.DayRecord(nil), days...),
	}
	var overtime float64
	for _, d := range days {
		row.Counts.Add(d.Status)
		overtime += d.Overtime
	}
	c := row.Counts
	row.TotalAttendance = c.Present + c.HalfLeave + c.Leave + c.PaidHoliday
	row.TotalOvertime = Round2(overtime)
	return row, nil
}

// BuildRow resolves and aggregates in one step.
func BuildRow(employee models.Employee, period models.Period, inputs []models.DayInput) (models.EmployeeRow, []Substitution, error) {
	records, subs, err := ResolveMonth(period, inputs)
	if err != nil {
		return models.EmployeeRow{}, nil, err
	}
	row, err := Aggregate(employee, period, records)
	if err != nil {
		return models.EmployeeRow{}, nil, err
	}
	return row, subs, nil
}
