package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-sheet/internal/attendance"
	"github.com/noah-isme/attendance-sheet/internal/dto"
	"github.com/noah-isme/attendance-sheet/internal/models"
	"github.com/noah-isme/attendance-sheet/internal/session"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

// BackupStore persists the single session snapshot.
type BackupStore interface {
	Load(ctx context.Context) (models.SessionState, error)
	Store(ctx context.Context, state models.SessionState) error
	Driver() string
}

type rosterLoader interface {
	Load(filename string, r io.Reader) ([]models.Employee, error)
}

// Transition kinds, used in logs and metrics.
const (
	transitionRoster       = "roster"
	transitionSave         = "save"
	transitionSaveNext     = "save_next"
	transitionSavePrevious = "save_previous"
	transitionRetreat      = "retreat"
	transitionReset        = "reset"
)

// EntryConfig tunes the entry workflow.
type EntryConfig struct {
	MinYear int
	MaxYear int
	Now     func() time.Time
}

// DayEntry is one day of the entry form.
type DayEntry struct {
	Status   string  `json:"status" validate:"required,attendance_status"`
	CheckIn  *string `json:"checkIn"`
	CheckOut *string `json:"checkOut"`
}

// SaveEntryRequest carries a full month of day entries for the current employee.
type SaveEntryRequest struct {
	Days []DayEntry `json:"days" validate:"required,min=28,max=31,dive"`
}

// PeriodRequest selects the month being entered.
type PeriodRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required"`
}

// EntryService owns the one live entry session: roster, period, state
// machine and backup. Every committed transition is persisted before the
// in-memory state changes, so a failed write leaves the session untouched.
type EntryService struct {
	backup    BackupStore
	loader    rosterLoader
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       EntryConfig

	mu      sync.Mutex
	roster  []models.Employee
	machine session.Machine
	state   models.SessionState
	period  models.Period
	pending []dto.Warning
}

// NewEntryService constructs the entry service.
func NewEntryService(backup BackupStore, loader rosterLoader, validate *validator.Validate, metrics *MetricsService, cfg EntryConfig, logger *zap.Logger) *EntryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MinYear == 0 {
		cfg.MinYear = 2020
	}
	if cfg.MaxYear < cfg.MinYear {
		cfg.MaxYear = cfg.MinYear + 10
	}
	svc := &EntryService{
		backup:    backup,
		loader:    loader,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		state:     session.Empty(),
	}
	svc.period = svc.defaultPeriod()
	_ = svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseStatus(fl.Field().String())
		return ok
	})
	return svc
}

// Restore reads the backup once at session start. A missing snapshot starts
// empty; an unreadable one starts empty and queues a warning for the next view.
func (s *EntryService) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	driver := s.backup.Driver()
	state, err := s.backup.Load(ctx)
	switch {
	case err == nil:
		s.state = state
		s.metrics.RecordBackupLoad(driver, "restored")
		s.logger.Info("session restored", zap.String("driver", driver), zap.Int("current_index", state.CurrentIndex), zap.Int("rows", len(state.Rows)))
	case appErrors.Is(err, appErrors.ErrSnapshotNotFound):
		s.state = session.Empty()
		s.metrics.RecordBackupLoad(driver, "empty")
	default:
		s.state = session.Empty()
		s.metrics.RecordBackupLoad(driver, "degraded")
		s.pending = append(s.pending, dto.Warning{
			Code:    dto.WarningBackupUnreadable,
			Message: "saved progress could not be read; starting a fresh session",
		})
		s.logger.Warn("session backup unreadable, starting empty", zap.String("driver", driver), zap.Error(err))
	}
}

// LoadRoster replaces the roster and re-applies saved progress to it. A bad
// upload leaves the previous roster and state in place.
func (s *EntryService) LoadRoster(ctx context.Context, filename string, r io.Reader) (*dto.RosterResponse, error) {
	employees, err := s.loader.Load(filename, r)
	s.metrics.RecordRosterUpload(err == nil)
	if err != nil {
		s.logger.Warn("roster rejected", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	machine := session.NewMachine(len(employees))
	next := machine.Restore(s.state)
	if err := s.persist(ctx, next, transitionRoster); err != nil {
		return nil, err
	}
	s.roster = employees
	s.machine = machine
	s.state = next
	s.logger.Info("roster loaded", zap.String("filename", filename), zap.Int("employees", len(employees)), zap.Int("current_index", next.CurrentIndex))

	return &dto.RosterResponse{
		Employees: append([]models.Employee(nil), employees...),
		Count:     len(employees),
		Session:   s.viewLocked(nil),
	}, nil
}

// Roster returns the loaded employees.
func (s *EntryService) Roster(ctx context.Context) ([]models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roster == nil {
		return nil, appErrors.ErrRosterRequired
	}
	return append([]models.Employee(nil), s.roster...), nil
}

// SetPeriod selects month and year for subsequent entries.
func (s *EntryService) SetPeriod(ctx context.Context, req PeriodRequest) (*dto.SessionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, describeValidation(err))
	}
	if req.Year < s.cfg.MinYear || req.Year > s.cfg.MaxYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("year must be between %d and %d", s.cfg.MinYear, s.cfg.MaxYear))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = models.Period{Month: req.Month, Year: req.Year}
	view := s.viewLocked(nil)
	return &view, nil
}

// Current returns the session view, including any pending warnings.
func (s *EntryService) Current(ctx context.Context) *dto.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := s.viewLocked(nil)
	return &view
}

// Preview computes the current employee's row without saving it.
func (s *EntryService) Preview(ctx context.Context, req SaveEntryRequest) (*dto.RowPreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, warnings, err := s.buildRowLocked(req)
	if err != nil {
		return nil, err
	}
	return &dto.RowPreview{Row: row, Warnings: warnings}, nil
}

// Save stores the current employee's row without moving.
func (s *EntryService) Save(ctx context.Context, req SaveEntryRequest) (*dto.SessionView, error) {
	return s.saveAnd(ctx, req, transitionSave, func(st models.SessionState) (models.SessionState, error) {
		return st, nil
	})
}

// SaveAndNext stores the current row then advances, completing after the last employee.
func (s *EntryService) SaveAndNext(ctx context.Context, req SaveEntryRequest) (*dto.SessionView, error) {
	return s.saveAnd(ctx, req, transitionSaveNext, func(st models.SessionState) (models.SessionState, error) {
		return s.machine.Advance(st)
	})
}

// SaveAndPrevious stores the current row then steps back. At the first
// employee the row is still saved and the pointer stays.
func (s *EntryService) SaveAndPrevious(ctx context.Context, req SaveEntryRequest) (*dto.SessionView, error) {
	return s.saveAnd(ctx, req, transitionSavePrevious, func(st models.SessionState) (models.SessionState, error) {
		return s.machine.Retreat(st), nil
	})
}

func (s *EntryService) saveAnd(ctx context.Context, req SaveEntryRequest, kind string, move func(models.SessionState) (models.SessionState, error)) (*dto.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, warnings, err := s.buildRowLocked(req)
	if err != nil {
		return nil, err
	}
	next, err := s.machine.Save(s.state, row)
	if err != nil {
		return nil, err
	}
	if next, err = move(next); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, next, kind); err != nil {
		return nil, err
	}
	s.state = next
	view := s.viewLocked(warnings)
	return &view, nil
}

// Retreat steps back without saving; from Complete it re-enters the last employee.
func (s *EntryService) Retreat(ctx context.Context) (*dto.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return nil, appErrors.ErrRosterRequired
	}
	next := s.machine.Retreat(s.state)
	if err := s.persist(ctx, next, transitionRetreat); err != nil {
		return nil, err
	}
	s.state = next
	view := s.viewLocked(nil)
	return &view, nil
}

// Reset discards all progress and persists the empty state.
func (s *EntryService) Reset(ctx context.Context) (*dto.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := session.Empty()
	if err := s.persist(ctx, next, transitionReset); err != nil {
		return nil, err
	}
	s.state = next
	view := s.viewLocked(nil)
	return &view, nil
}

// Rows returns saved rows by roster index ascending.
func (s *EntryService) Rows(ctx context.Context) ([]dto.IndexedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return nil, appErrors.ErrRosterRequired
	}
	out := make([]dto.IndexedRow, 0, len(s.state.Rows))
	for idx := 0; idx < s.machine.RosterLen(); idx++ {
		if row, ok := s.state.Rows[idx]; ok {
			out = append(out, dto.IndexedRow{Index: idx, Row: row})
		}
	}
	return out, nil
}

// CompletedRows returns every row in roster order once the session is
// complete. Export is refused before that point.
func (s *EntryService) CompletedRows(ctx context.Context) ([]models.EmployeeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return nil, appErrors.ErrRosterRequired
	}
	if s.machine.Phase(s.state) != session.PhaseComplete {
		return nil, appErrors.Clone(appErrors.ErrSessionIncomplete,
			fmt.Sprintf("entry is at employee %s; finish every employee before exporting", s.machine.Describe(s.state)))
	}
	if missing := s.machine.Missing(s.state); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrSessionIncomplete,
			fmt.Sprintf("%d employee(s) have no saved row, first is #%d", len(missing), missing[0]+1))
	}
	return s.machine.Ordered(s.state), nil
}

// persist writes the candidate state. The caller applies it only on success.
func (s *EntryService) persist(ctx context.Context, next models.SessionState, kind string) error {
	start := time.Now()
	err := s.backup.Store(ctx, next)
	s.metrics.ObserveBackupWrite(s.backup.Driver(), err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("session backup failed", zap.String("transition", kind), zap.String("driver", s.backup.Driver()), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "session backup failed; the change was not applied")
	}
	s.metrics.RecordTransition(kind)
	s.logger.Info("session transition", zap.String("transition", kind), zap.Int("current_index", next.CurrentIndex), zap.Int("rows", len(next.Rows)))
	return nil
}

func (s *EntryService) buildRowLocked(req SaveEntryRequest) (models.EmployeeRow, []dto.Warning, error) {
	if s.roster == nil {
		return models.EmployeeRow{}, nil, appErrors.ErrRosterRequired
	}
	if s.machine.Phase(s.state) == session.PhaseComplete {
		return models.EmployeeRow{}, nil, appErrors.Clone(appErrors.ErrSessionComplete, "all employees are entered; go back to edit a row")
	}
	if err := s.validator.Struct(req); err != nil {
		return models.EmployeeRow{}, nil, appErrors.Clone(appErrors.ErrValidation, describeValidation(err))
	}

	inputs := make([]models.DayInput, len(req.Days))
	for i, d := range req.Days {
		status, _ := models.ParseStatus(d.Status)
		inputs[i] = models.DayInput{Status: status, CheckIn: d.CheckIn, CheckOut: d.CheckOut}
	}

	employee := s.roster[s.state.CurrentIndex]
	row, subs, err := attendance.BuildRow(employee, s.period, inputs)
	if err != nil {
		return models.EmployeeRow{}, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	warnings := make([]dto.Warning, 0, len(subs))
	for _, sub := range subs {
		s.metrics.RecordSubstitution(sub.Field)
		warnings = append(warnings, substitutionWarning(sub))
	}
	if len(subs) > 0 {
		s.logger.Warn("time input substituted", zap.String("employee", employee.Code), zap.Int("count", len(subs)))
	}
	return row, warnings, nil
}

// viewLocked snapshots the session; pending warnings are handed out once.
func (s *EntryService) viewLocked(extra []dto.Warning) dto.SessionView {
	view := dto.SessionView{
		Phase:        string(session.PhaseEntering),
		RosterLoaded: s.roster != nil,
		CurrentIndex: s.state.CurrentIndex,
		Total:        len(s.roster),
		SavedCount:   len(s.state.Rows),
		Period:       s.period,
		DaysInMonth:  s.period.DaysInMonth(),
		Statuses:     append([]models.AttendanceStatus(nil), models.Statuses...),
		BackupDriver: s.backup.Driver(),
	}
	if s.roster != nil {
		view.Phase = string(s.machine.Phase(s.state))
		view.Position = s.machine.Describe(s.state)
		view.SavedCount = len(s.machine.Ordered(s.state))
		if s.machine.Phase(s.state) == session.PhaseEntering {
			emp := s.roster[s.state.CurrentIndex]
			view.Employee = &emp
			if row, ok := s.state.Rows[s.state.CurrentIndex]; ok {
				view.SavedRow = &row
			}
		}
	}
	view.Warnings = append(view.Warnings, s.pending...)
	view.Warnings = append(view.Warnings, extra...)
	s.pending = nil
	return view
}

func (s *EntryService) defaultPeriod() models.Period {
	now := s.cfg.Now()
	year := now.Year()
	if year < s.cfg.MinYear {
		year = s.cfg.MinYear
	}
	if year > s.cfg.MaxYear {
		year = s.cfg.MaxYear
	}
	return models.Period{Month: int(now.Month()), Year: year}
}

func substitutionWarning(sub attendance.Substitution) dto.Warning {
	label := "check-in"
	if sub.Field == attendance.FieldCheckOut {
		label = "check-out"
	}
	return dto.Warning{
		Code:    dto.WarningTimeSubstituted,
		Message: fmt.Sprintf("Day %d: invalid %s format %q. Using default %s", sub.Day, label, sub.Raw, sub.Applied),
		Day:     sub.Day,
		Field:   sub.Field,
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "attendance_status":
			msgs = append(msgs, fmt.Sprintf("%s: status must be one of P, A, L, WO, HL, PH", fe.Namespace()))
		case "min", "max":
			if fe.Field() == "Month" {
				msgs = append(msgs, fmt.Sprintf("%s: month must be between 1 and 12", fe.Namespace()))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s: expected one entry per day of the month", fe.Namespace()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
