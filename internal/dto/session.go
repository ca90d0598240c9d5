package dto

import (
	"time"

	"github.com/noah-isme/attendance-sheet/internal/models"
)

// Warning codes surfaced alongside successful responses.
const (
	WarningTimeSubstituted  = "TIME_SUBSTITUTED"
	WarningBackupUnreadable = "BACKUP_UNREADABLE"
)

// Warning is a non-blocking notice for the operator.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Day     int    `json:"day,omitempty"`
	Field   string `json:"field,omitempty"`
}

// SessionView describes where the wizard currently stands.
type SessionView struct {
	Phase        string                    `json:"phase"`
	RosterLoaded bool                      `json:"rosterLoaded"`
	CurrentIndex int                       `json:"currentIndex"`
	Total        int                       `json:"total"`
	Position     string                    `json:"position"`
	SavedCount   int                       `json:"savedCount"`
	Employee     *models.Employee          `json:"employee,omitempty"`
	SavedRow     *models.EmployeeRow       `json:"savedRow,omitempty"`
	Period       models.Period             `json:"period"`
	DaysInMonth  int                       `json:"daysInMonth"`
	Statuses     []models.AttendanceStatus `json:"statuses"`
	BackupDriver string                    `json:"backupDriver"`
	Warnings     []Warning                 `json:"warnings,omitempty"`
}

// RosterResponse is returned after a roster upload.
type RosterResponse struct {
	Employees []models.Employee `json:"employees"`
	Count     int               `json:"count"`
	Session   SessionView       `json:"session"`
}

// RowPreview is a computed but unsaved employee row.
type RowPreview struct {
	Row      models.EmployeeRow `json:"row"`
	Warnings []Warning          `json:"warnings,omitempty"`
}

// IndexedRow pairs a saved row with its roster position.
type IndexedRow struct {
	Index int                `json:"index"`
	Row   models.EmployeeRow `json:"row"`
}

// ExportLink points at a stored, signed export.
type ExportLink struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
