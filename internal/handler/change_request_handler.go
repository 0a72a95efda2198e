package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
	"github.com/noah-isme/uc-timetable-api/pkg/response"
)

const (
	defaultRequestPageSize = 50
	maxRequestPageSize     = 200
)

type changeRequestService interface {
	Submit(ctx context.Context, req dto.SubmitChangeRequest) (*models.ChangeRequest, error)
	Requests(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
	Request(ctx context.Context, id string) (*models.ChangeRequest, error)
	Process(ctx context.Context) (*dto.ProcessReportResponse, error)
}

// ChangeRequestHandler exposes the class-change workflow.
type ChangeRequestHandler struct {
	service changeRequestService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(service changeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service}
}

// Submit godoc
// @Summary Submit a class-change request
// @Description Students may only submit for themselves.
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitChangeRequest true "Change request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /change-requests [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !isAdmin(claims) {
		if req.StudentID == "" {
			req.StudentID = claims.UserID
		}
		if strings.TrimSpace(req.StudentID) != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only request changes for themselves"))
			return
		}
	}

	created, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List change requests
// @Description Students only see their own requests.
// @Tags ChangeRequests
// @Produce json
// @Param status query string false "Comma separated PENDING, APPROVED, REJECTED"
// @Param student_id query string false "Filter by student"
// @Param uc query string false "Filter by UC"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := parseChangeRequestFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isAdmin(claims) {
		filter.StudentID = claims.UserID
	}

	requests, err := h.service.Requests(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	page := parseQueryInt(c, "page", 1)
	size := parseQueryInt(c, "page_size", defaultRequestPageSize)
	if size > maxRequestPageSize {
		size = maxRequestPageSize
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: len(requests)}
	start, end := pageBounds(len(requests), page, size)
	response.JSON(c, http.StatusOK, requests[start:end], pagination)
}

// pageBounds returns the slice bounds of a 1-based page over total items.
// Pages past the end yield an empty range.
func pageBounds(total, page, size int) (int, int) {
	if page < 1 || size < 1 || page-1 >= (total+size-1)/size {
		return total, total
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}

// Get godoc
// @Summary Get a change request
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.service.Request(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isAdmin(claims) && req.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("change request %s not found", req.ID)))
		return
	}
	response.OK(c, req)
}

// Process godoc
// @Summary Process every pending change request
// @Description Runs one pass in submission order, pairing swaps where possible.
// @Tags ChangeRequests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /change-requests/process [post]
func (h *ChangeRequestHandler) Process(c *gin.Context) {
	report, err := h.service.Process(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

func parseChangeRequestFilter(c *gin.Context) (models.ChangeRequestFilter, error) {
	filter := models.ChangeRequestFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		UCCode:    strings.TrimSpace(c.Query("uc")),
	}
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" {
		return filter, nil
	}
	for _, part := range strings.Split(raw, ",") {
		status := models.ChangeRequestStatus(strings.ToUpper(strings.TrimSpace(part)))
		switch status {
		case models.ChangeRequestPending, models.ChangeRequestApproved, models.ChangeRequestRejected:
			filter.Status = append(filter.Status, status)
		case "":
		default:
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported status %q", part))
		}
	}
	return filter, nil
}
