package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-sheet/internal/dto"
	"github.com/noah-isme/attendance-sheet/internal/models"
	"github.com/noah-isme/attendance-sheet/internal/service"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
	"github.com/noah-isme/attendance-sheet/pkg/response"
)

type entryService interface {
	LoadRoster(ctx context.Context, filename string, r io.Reader) (*dto.RosterResponse, error)
	Roster(ctx context.Context) ([]models.Employee, error)
	SetPeriod(ctx context.Context, req service.PeriodRequest) (*dto.SessionView, error)
	Current(ctx context.Context) *dto.SessionView
	Preview(ctx context.Context, req service.SaveEntryRequest) (*dto.RowPreview, error)
	Save(ctx context.Context, req service.SaveEntryRequest) (*dto.SessionView, error)
	SaveAndNext(ctx context.Context, req service.SaveEntryRequest) (*dto.SessionView, error)
	SaveAndPrevious(ctx context.Context, req service.SaveEntryRequest) (*dto.SessionView, error)
	Retreat(ctx context.Context) (*dto.SessionView, error)
	Rows(ctx context.Context) ([]dto.IndexedRow, error)
	Reset(ctx context.Context) (*dto.SessionView, error)
}

// SessionHandler exposes the entry wizard.
type SessionHandler struct {
	entries   entryService
	maxUpload int64
}

// NewSessionHandler constructs the handler. maxUpload caps roster uploads in bytes.
func NewSessionHandler(entries entryService, maxUpload int64) *SessionHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &SessionHandler{entries: entries, maxUpload: maxUpload}
}

// UploadRoster godoc
// @Summary Upload roster
// @Description Accepts an .xlsx, .xls or .csv file with employee code and name columns. Saved progress is re-applied to the new roster.
// @Tags Session
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /session/roster [post]
func (h *SessionHandler) UploadRoster(c *gin.Context) {
	if c.Request.ContentLength > h.maxUpload {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field \"file\" is required"))
		return
	}
	if header.Size > h.maxUpload {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnreadableUpload.Code, appErrors.ErrUnreadableUpload.Status, appErrors.ErrUnreadableUpload.Message))
		return
	}
	defer file.Close()

	result, err := h.entries.LoadRoster(c.Request.Context(), header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Roster godoc
// @Summary List roster employees
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /session/roster [get]
func (h *SessionHandler) Roster(c *gin.Context) {
	employees, err := h.entries.Roster(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, employees, map[string]interface{}{"count": len(employees)})
}

// SetPeriod godoc
// @Summary Select month and year
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body service.PeriodRequest true "Period"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /session/period [put]
func (h *SessionHandler) SetPeriod(c *gin.Context) {
	var req service.PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	view, err := h.entries.SetPeriod(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Current godoc
// @Summary Current session state
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session [get]
func (h *SessionHandler) Current(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.entries.Current(c.Request.Context()))
}

// Preview godoc
// @Summary Preview the current employee row
// @Description Computes overtime and totals without saving.
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body service.SaveEntryRequest true "Day entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /session/preview [post]
func (h *SessionHandler) Preview(c *gin.Context) {
	req, ok := bindEntry(c)
	if !ok {
		return
	}
	preview, err := h.entries.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview)
}

// Save godoc
// @Summary Save the current employee row
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body service.SaveEntryRequest true "Day entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /session/save [post]
func (h *SessionHandler) Save(c *gin.Context) {
	h.transition(c, h.entries.Save)
}

// SaveAndNext godoc
// @Summary Save the current row and move to the next employee
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body service.SaveEntryRequest true "Day entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /session/next [post]
func (h *SessionHandler) SaveAndNext(c *gin.Context) {
	h.transition(c, h.entries.SaveAndNext)
}

// SaveAndPrevious godoc
// @Summary Save the current row and move to the previous employee
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body service.SaveEntryRequest true "Day entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /session/previous [post]
func (h *SessionHandler) SaveAndPrevious(c *gin.Context) {
	h.transition(c, h.entries.SaveAndPrevious)
}

// Retreat godoc
// @Summary Move back one employee without saving
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /session/retreat [post]
func (h *SessionHandler) Retreat(c *gin.Context) {
	view, err := h.entries.Retreat(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Rows godoc
// @Summary Saved rows in roster order
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session/rows [get]
func (h *SessionHandler) Rows(c *gin.Context) {
	rows, err := h.entries.Rows(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, map[string]interface{}{"count": len(rows)})
}

// Reset godoc
// @Summary Discard all saved progress
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session [delete]
func (h *SessionHandler) Reset(c *gin.Context) {
	view, err := h.entries.Reset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

func (h *SessionHandler) transition(c *gin.Context, apply func(context.Context, service.SaveEntryRequest) (*dto.SessionView, error)) {
	req, ok := bindEntry(c)
	if !ok {
		return
	}
	view, err := apply(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

func bindEntry(c *gin.Context) (service.SaveEntryRequest, bool) {
	var req service.SaveEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return req, false
	}
	return req, true
}
