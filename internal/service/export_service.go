package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-sheet/internal/dto"
	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
	"github.com/noah-isme/attendance-sheet/pkg/export"
	"github.com/noah-isme/attendance-sheet/pkg/jobs"
	"github.com/noah-isme/attendance-sheet/pkg/storage"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

// JobExportCleanup is the queue kind that prunes old rendered files.
const JobExportCleanup = "export.cleanup"

// Sheet column names outside the per-day block.
const (
	ColumnCode            = "Post Code"
	ColumnName            = "Employee Name"
	ColumnTotalAttendance = "Total Attendance"
	ColumnOvertime        = "OT Hours"
)

type rowSource interface {
	CompletedRows(ctx context.Context) ([]models.EmployeeRow, error)
}

type exportStorage interface {
	Save(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	SheetName string
	Filename  string
	Retention time.Duration
}

// ExportRequest selects the output format; empty means xlsx.
type ExportRequest struct {
	Format string `form:"format" json:"format" validate:"omitempty,export_format"`
}

// RenderedExport is a finished document ready to send.
type RenderedExport struct {
	Format      string
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService assembles completed rows into the attendance sheet and renders it.
type ExportService struct {
	rows      rowSource
	storage   exportStorage
	signer    *storage.SignedURLSigner
	queue     jobQueue
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(rows rowSource, store exportStorage, signer *storage.SignedURLSigner, queue jobQueue, validate *validator.Validate, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	if cfg.Filename == "" {
		cfg.Filename = "attendance_sheet"
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Attendance"
	}
	_ = validate.RegisterValidation("export_format", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case FormatXLSX, FormatCSV, FormatPDF:
			return true
		default:
			return false
		}
	})
	return &ExportService{
		rows:      rows,
		storage:   store,
		signer:    signer,
		queue:     queue,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Render builds the sheet for the completed session in the requested format.
func (s *ExportService) Render(ctx context.Context, req ExportRequest) (*RenderedExport, error) {
	format, err := s.format(req)
	if err != nil {
		return nil, err
	}
	rows, err := s.rows.CompletedRows(ctx)
	if err != nil {
		return nil, err
	}

	dataset := BuildDataset(rows)
	renderer := s.renderer(format, rows)
	if format == FormatPDF {
		dataset, err = dataset.Project(SummaryColumns()...)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build export")
		}
	}
	body, err := renderer.Render(dataset)
	if err != nil {
		s.logger.Error("export render failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.metrics.RecordExport(format)
	s.logger.Info("export rendered", zap.String("format", format), zap.Int("rows", len(rows)), zap.Int("bytes", len(body)))

	return &RenderedExport{
		Format:      format,
		Filename:    s.cfg.Filename + "." + renderer.Extension(),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// Publish renders, stores and signs the export, then schedules retention cleanup.
func (s *ExportService) Publish(ctx context.Context, req ExportRequest) (*dto.ExportLink, error) {
	rendered, err := s.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	relPath, err := s.storage.Save(path.Join(id, rendered.Filename), rendered.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Sign(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	if s.queue != nil {
		job := jobs.Job{ID: id, Kind: JobExportCleanup, Enqueued: time.Now().UTC()}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("export cleanup not scheduled", zap.String("export_id", id), zap.Error(err))
		}
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.ExportLink{
		ID:        id,
		Format:    rendered.Format,
		Filename:  rendered.Filename,
		URL:       fmt.Sprintf("%s/export/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download resolves a signed token to the stored file.
func (s *ExportService) Download(ctx context.Context, token string) (*RenderedExport, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.ErrLinkExpired
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	body, err := s.storage.Read(claims.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export")
	}

	format := strings.TrimPrefix(path.Ext(claims.File), ".")
	renderer := s.renderer(format, nil)
	return &RenderedExport{
		Format:      format,
		Filename:    path.Base(claims.File),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// CleanupJob is the queue handler removing rendered files past retention.
func (s *ExportService) CleanupJob(ctx context.Context, job jobs.Job) error {
	removed, err := s.storage.CleanupOlderThan(s.cfg.Retention)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		s.logger.Info("export files pruned", zap.String("trigger", job.ID), zap.Int("removed", len(removed)))
	}
	return nil
}

func (s *ExportService) format(req ExportRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be one of xlsx, csv, pdf")
	}
	format := strings.ToLower(req.Format)
	if format == "" {
		format = FormatXLSX
	}
	return format, nil
}

func (s *ExportService) renderer(format string, rows []models.EmployeeRow) export.Renderer {
	switch format {
	case FormatCSV:
		return export.NewCSVExporter()
	case FormatPDF:
		return export.NewPDFExporter("Attendance Sheet", periodLabel(rows), ColumnName)
	default:
		return export.NewXLSXExporter(s.cfg.SheetName, 2)
	}
}

// BuildDataset lays rows out as the attendance sheet: identity, then
// check-in, check-out, status and overtime for each day, then totals. Rows
// from a shorter month leave trailing day cells blank.
func BuildDataset(rows []models.EmployeeRow) export.Dataset {
	days := 0
	for _, row := range rows {
		if len(row.Days) > days {
			days = len(row.Days)
		}
	}

	headers := make([]string, 0, 2+days*4+8)
	headers = append(headers, ColumnCode, ColumnName)
	for day := 1; day <= days; day++ {
		headers = append(headers,
			fmt.Sprintf("%02d_Check-in", day),
			fmt.Sprintf("%02d_Check-out", day),
			fmt.Sprintf("%02d_Status", day),
			fmt.Sprintf("%02d_OT", day),
		)
	}
	headers = append(headers, totalColumns()...)

	out := export.Dataset{Headers: headers, Rows: make([][]interface{}, 0, len(rows))}
	for _, row := range rows {
		cells := make([]interface{}, 0, len(headers))
		cells = append(cells, row.Code, row.Name)
		for i := 0; i < days; i++ {
			if i >= len(row.Days) {
				cells = append(cells, nil, nil, nil, nil)
				continue
			}
			d := row.Days[i]
			cells = append(cells, d.CheckIn.String(), d.CheckOut.String(), string(d.Status), d.Overtime)
		}
		for _, status := range models.Statuses {
			cells = append(cells, row.Counts.Of(status))
		}
		cells = append(cells, row.TotalAttendance, row.TotalOvertime)
		out.Rows = append(out.Rows, cells)
	}
	return out
}

// SummaryColumns are the identity and total columns used by the PDF summary.
func SummaryColumns() []string {
	return append([]string{ColumnCode, ColumnName}, totalColumns()...)
}

func totalColumns() []string {
	cols := make([]string, 0, len(models.Statuses)+2)
	for _, status := range models.Statuses {
		cols = append(cols, "Total "+string(status))
	}
	return append(cols, ColumnTotalAttendance, ColumnOvertime)
}

func periodLabel(rows []models.EmployeeRow) string {
	if len(rows) == 0 {
		return ""
	}
	return models.Period{Month: rows[0].Month, Year: rows[0].Year}.String()
}
