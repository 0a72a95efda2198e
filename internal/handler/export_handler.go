package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	"github.com/noah-isme/uc-timetable-api/internal/service"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
	"github.com/noah-isme/uc-timetable-api/pkg/response"
)

type exportService interface {
	Request(ctx context.Context, req dto.ExportRequest, requestedBy string) (*models.ExportJob, error)
	Job(ctx context.Context, id string) (*models.ExportJob, error)
	Open(token string) (*service.Download, error)
}

// ExportHandler queues roster and schedule exports and serves their files.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Create godoc
// @Summary Queue an export
// @Description Students may only export their own schedule.
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !isAdmin(claims) && (req.Kind != string(models.ExportKindStudentSchedule) || req.StudentID != claims.UserID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only export their own schedule"))
		return
	}

	job, err := h.service.Request(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, newExportResponse(job))
}

// Job godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export-jobs/{id} [get]
func (h *ExportHandler) Job(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.service.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isAdmin(claims) && job.RequestedBy != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export job not found"))
		return
	}
	response.OK(c, newExportResponse(job))
}

// Download godoc
// @Summary Download an export through its signed link
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	})
}

func newExportResponse(job *models.ExportJob) dto.ExportResponse {
	resp := dto.ExportResponse{
		JobID:  job.ID,
		Status: string(job.Status),
		Kind:   string(job.Kind),
		Format: string(job.Format),
		URL:    job.URL,
		Error:  job.Error,
	}
	if job.ExpiresAt != nil {
		resp.ExpiresAt = job.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}
