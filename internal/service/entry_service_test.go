package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-sheet/internal/dto"
	"github.com/noah-isme/attendance-sheet/internal/models"
	"github.com/noah-isme/attendance-sheet/internal/repository"
	"github.com/noah-isme/attendance-sheet/internal/roster"
	"github.com/noah-isme/attendance-sheet/internal/session"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

const rosterCSV = "Post Code,Employee Name\nP01,Ana\nP02,Budi\nP03,Citra\n"

var february2024 = func() time.Time { return time.Date(2024, time.February, 10, 8, 0, 0, 0, time.UTC) }

type flakyBackup struct {
	inner BackupStore
	fail  bool
}

func (f *flakyBackup) Load(ctx context.Context) (models.SessionState, error) {
	return f.inner.Load(ctx)
}

func (f *flakyBackup) Store(ctx context.Context, state models.SessionState) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.inner.Store(ctx, state)
}

func (f *flakyBackup) Driver() string { return f.inner.Driver() }

func newEntryServiceForTest(t *testing.T, backup BackupStore) *EntryService {
	t.Helper()
	loader := roster.NewLoader([]string{"Post Code"}, []string{"Employee Name"})
	svc := NewEntryService(backup, loader, nil, nil, EntryConfig{MinYear: 2020, MaxYear: 2030, Now: february2024}, zap.NewNop())
	svc.Restore(context.Background())
	return svc
}

func loadRoster(t *testing.T, svc *EntryService) *dto.RosterResponse {
	t.Helper()
	resp, err := svc.LoadRoster(context.Background(), "roster.csv", strings.NewReader(rosterCSV))
	require.NoError(t, err)
	return resp
}

func month(n int, status string, checkIn, checkOut *string) SaveEntryRequest {
	days := make([]DayEntry, n)
	for i := range days {
		days[i] = DayEntry{Status: status, CheckIn: checkIn, CheckOut: checkOut}
	}
	return SaveEntryRequest{Days: days}
}

func text(v string) *string { return &v }

func TestEntryServiceStartsEmptyWithoutBackup(t *testing.T) {
	repo := repository.NewFileSnapshotRepository(t.TempDir(), "entry")
	svc := newEntryServiceForTest(t, repo)

	view := svc.Current(context.Background())
	assert.False(t, view.RosterLoaded)
	assert.Equal(t, 0, view.CurrentIndex)
	assert.Equal(t, models.Period{Month: 2, Year: 2024}, view.Period)
	assert.Equal(t, 29, view.DaysInMonth)
	assert.Equal(t, repository.DriverFile, view.BackupDriver)
	assert.Empty(t, view.Warnings)
}

func TestEntryServiceUnreadableBackupWarnsOnce(t *testing.T) {
	repo := repository.NewFileSnapshotRepository(t.TempDir(), "entry")
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{not json"), 0o600))

	svc := newEntryServiceForTest(t, repo)

	first := svc.Current(context.Background())
	require.Len(t, first.Warnings, 1)
	assert.Equal(t, dto.WarningBackupUnreadable, first.Warnings[0].Code)
	assert.Equal(t, 0, first.CurrentIndex)

	second := svc.Current(context.Background())
	assert.Empty(t, second.Warnings)
}

func TestEntryServiceFullWalkthrough(t *testing.T) {
	dir := t.TempDir()
	repo := repository.NewFileSnapshotRepository(dir, "entry")
	svc := newEntryServiceForTest(t, repo)

	resp := loadRoster(t, svc)
	assert.Equal(t, 3, resp.Count)
	require.NotNil(t, resp.Session.Employee)
	assert.Equal(t, "P01", resp.Session.Employee.Code)
	assert.Equal(t, "1 of 3", resp.Session.Position)

	for i := 0; i < 3; i++ {
		view, err := svc.SaveAndNext(context.Background(), month(29, "P", text("09:00"), text("18:00")))
		require.NoError(t, err)
		assert.Equal(t, i+1, view.CurrentIndex)
	}

	view := svc.Current(context.Background())
	assert.Equal(t, string(session.PhaseComplete), view.Phase)
	assert.Nil(t, view.Employee)

	rows, err := svc.CompletedRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"P01", "P02", "P03"}, []string{rows[0].Code, rows[1].Code, rows[2].Code})
	assert.Equal(t, 29, rows[0].TotalAttendance)
	assert.Equal(t, 29.0, rows[0].TotalOvertime)

	_, err = svc.SaveAndNext(context.Background(), month(29, "P", nil, nil))
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionComplete))

	// A fresh service over the same backup resumes where this one stopped.
	resumed := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(dir, "entry"))
	resp = loadRoster(t, resumed)
	assert.Equal(t, 3, resp.Session.CurrentIndex)
	assert.Equal(t, 3, resp.Session.SavedCount)
}

func TestEntryServiceSubstitutionWarnings(t *testing.T) {
	svc := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(t.TempDir(), "entry"))
	loadRoster(t, svc)

	req := month(29, "P", nil, nil)
	req.Days[0] = DayEntry{Status: "p", CheckIn: text("9am"), CheckOut: text("18:00")}
	req.Days[1] = DayEntry{Status: "PH", CheckIn: text("08:00"), CheckOut: text("")}

	preview, err := svc.Preview(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, preview.Warnings, 2)
	assert.Equal(t, dto.WarningTimeSubstituted, preview.Warnings[0].Code)
	assert.Equal(t, 1, preview.Warnings[0].Day)
	assert.Contains(t, preview.Warnings[0].Message, "Using default 09:00")
	assert.Equal(t, 2, preview.Warnings[1].Day)
	assert.Contains(t, preview.Warnings[1].Message, "Using default 18:00")

	view := svc.Current(context.Background())
	assert.Equal(t, 0, view.SavedCount, "preview must not save")
}

func TestEntryServicePersistFailureLeavesStateUntouched(t *testing.T) {
	backup := &flakyBackup{inner: repository.NewFileSnapshotRepository(t.TempDir(), "entry")}
	svc := newEntryServiceForTest(t, backup)
	loadRoster(t, svc)

	backup.fail = true
	_, err := svc.SaveAndNext(context.Background(), month(29, "A", nil, nil))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPersistence))

	view := svc.Current(context.Background())
	assert.Equal(t, 0, view.CurrentIndex)
	assert.Equal(t, 0, view.SavedCount)

	backup.fail = false
	view, err = svc.SaveAndNext(context.Background(), month(29, "A", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentIndex)
}

func TestEntryServiceSaveAndPreviousAtFirstEmployee(t *testing.T) {
	svc := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(t.TempDir(), "entry"))
	loadRoster(t, svc)

	view, err := svc.SaveAndPrevious(context.Background(), month(29, "WO", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, view.CurrentIndex)
	assert.Equal(t, 1, view.SavedCount)
	require.NotNil(t, view.SavedRow)
	assert.Equal(t, 29, view.SavedRow.Counts.WeekOff)
}

func TestEntryServiceRetreatFromComplete(t *testing.T) {
	svc := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(t.TempDir(), "entry"))
	loadRoster(t, svc)
	for i := 0; i < 3; i++ {
		_, err := svc.SaveAndNext(context.Background(), month(29, "L", nil, nil))
		require.NoError(t, err)
	}

	view, err := svc.Retreat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, view.CurrentIndex)
	assert.Equal(t, string(session.PhaseEntering), view.Phase)
	require.NotNil(t, view.SavedRow)
	assert.Equal(t, "P03", view.SavedRow.Code)

	_, err = svc.CompletedRows(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionIncomplete))
}

func TestEntryServiceRejectsInvalidEntries(t *testing.T) {
	svc := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(t.TempDir(), "entry"))

	_, err := svc.Save(context.Background(), month(29, "P", nil, nil))
	assert.True(t, appErrors.Is(err, appErrors.ErrRosterRequired))

	loadRoster(t, svc)

	_, err = svc.Save(context.Background(), month(30, "P", nil, nil))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Save(context.Background(), month(29, "X", nil, nil))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "status must be one of")

	_, err = svc.Save(context.Background(), SaveEntryRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEntryServiceSetPeriod(t *testing.T) {
	svc := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(t.TempDir(), "entry"))

	view, err := svc.SetPeriod(context.Background(), PeriodRequest{Month: 4, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 30, view.DaysInMonth)

	_, err = svc.SetPeriod(context.Background(), PeriodRequest{Month: 13, Year: 2025})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "month must be between 1 and 12")

	_, err = svc.SetPeriod(context.Background(), PeriodRequest{Month: 4})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "Year is required")
	assert.NotContains(t, err.Error(), "month must be")

	_, err = svc.SetPeriod(context.Background(), PeriodRequest{Month: 1, Year: 2019})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEntryServiceRosterUploadClampsRestoredIndex(t *testing.T) {
	repo := repository.NewFileSnapshotRepository(t.TempDir(), "entry")
	require.NoError(t, repo.Store(context.Background(), models.SessionState{
		CurrentIndex: 7,
		Rows:         map[int]models.EmployeeRow{0: {Code: "P01"}, 5: {Code: "gone"}},
	}))

	svc := newEntryServiceForTest(t, repo)
	resp := loadRoster(t, svc)
	assert.Equal(t, 3, resp.Session.CurrentIndex)
	assert.Equal(t, 1, resp.Session.SavedCount)
	assert.Equal(t, string(session.PhaseComplete), resp.Session.Phase)

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gone", stored.Rows[5].Code, "rows past the roster stay in the backup")
}

func TestEntryServiceShorterRosterKeepsSavedRows(t *testing.T) {
	dir := t.TempDir()
	repo := repository.NewFileSnapshotRepository(dir, "entry")
	svc := newEntryServiceForTest(t, repo)
	loadRoster(t, svc)
	for i := 0; i < 3; i++ {
		_, err := svc.SaveAndNext(context.Background(), month(29, "P", nil, nil))
		require.NoError(t, err)
	}

	resp, err := svc.LoadRoster(context.Background(), "short.csv", strings.NewReader("Post Code,Employee Name\nP01,Ana\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Session.CurrentIndex)
	assert.Equal(t, 1, resp.Session.SavedCount)

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored.Rows, 3)

	resp = loadRoster(t, svc)
	assert.Equal(t, 1, resp.Session.CurrentIndex)
	assert.Equal(t, 3, resp.Session.SavedCount)

	rows, err := svc.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "P03", rows[2].Row.Code)

	stored, err = repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentIndex)
	assert.Len(t, stored.Rows, 3)
}

func TestEntryServiceBadRosterKeepsPreviousState(t *testing.T) {
	svc := newEntryServiceForTest(t, repository.NewFileSnapshotRepository(t.TempDir(), "entry"))
	loadRoster(t, svc)

	_, err := svc.LoadRoster(context.Background(), "roster.csv", strings.NewReader("Code,Other\n1,2\n"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSchema))

	employees, err := svc.Roster(context.Background())
	require.NoError(t, err)
	assert.Len(t, employees, 3)
}

func TestEntryServiceResetAndRows(t *testing.T) {
	dir := t.TempDir()
	repo := repository.NewFileSnapshotRepository(dir, "entry")
	svc := newEntryServiceForTest(t, repo)
	loadRoster(t, svc)

	_, err := svc.SaveAndNext(context.Background(), month(29, "P", nil, nil))
	require.NoError(t, err)
	_, err = svc.SaveAndNext(context.Background(), month(29, "A", nil, nil))
	require.NoError(t, err)

	rows, err := svc.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, 1, rows[1].Index)

	view, err := svc.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, view.CurrentIndex)
	assert.Equal(t, 0, view.SavedCount)

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentIndex)
	assert.Empty(t, stored.Rows)
	_, err = os.Stat(filepath.Join(dir, "entry.json"))
	assert.NoError(t, err)
}
