package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-sheet/internal/dto"
	"github.com/noah-isme/attendance-sheet/internal/service"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
	"github.com/noah-isme/attendance-sheet/pkg/response"
)

type exportService interface {
	Render(ctx context.Context, req service.ExportRequest) (*service.RenderedExport, error)
	Publish(ctx context.Context, req service.ExportRequest) (*dto.ExportLink, error)
	Download(ctx context.Context, token string) (*service.RenderedExport, error)
}

// ExportHandler serves the finished attendance sheet.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Stream godoc
// @Summary Download the attendance sheet
// @Description Available once every employee has a saved row.
// @Tags Export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "xlsx (default), csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session/export [get]
func (h *ExportHandler) Stream(c *gin.Context) {
	req := service.ExportRequest{Format: c.Query("format")}
	out, err := h.exports.Render(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Body)
}

// Publish godoc
// @Summary Store the attendance sheet and return a signed link
// @Tags Export
// @Accept json
// @Produce json
// @Param payload body service.ExportRequest false "Format"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session/export [post]
func (h *ExportHandler) Publish(c *gin.Context) {
	req := service.ExportRequest{Format: c.Query("format")}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
	}
	link, err := h.exports.Publish(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Download godoc
// @Summary Download a stored export by signed token
// @Tags Export
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	out, err := h.exports.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Body)
}
