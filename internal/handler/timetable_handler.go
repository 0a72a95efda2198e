package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/middleware"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
	"github.com/noah-isme/uc-timetable-api/pkg/response"
)

type timetableReadService interface {
	Student(ctx context.Context, id string) (*dto.StudentView, bool, error)
	StudentSchedule(ctx context.Context, id string) ([]dto.ScheduleEntryView, bool, error)
	Section(ctx context.Context, key models.SectionKey) (*dto.SectionView, bool, error)
	SectionsOf(ctx context.Context, ucCode string) ([]dto.SectionView, bool, error)
	Roster(ctx context.Context, key models.SectionKey, order models.RosterOrder) ([]dto.StudentSummary, bool, error)
	UCStudents(ctx context.Context, ucCode string, order models.RosterOrder) ([]dto.StudentSummary, bool, error)
	UCSchedule(ctx context.Context, ucCode string) ([]dto.ScheduleEntryView, bool, error)
	SectionCodeSchedule(ctx context.Context, sectionCode string) ([]dto.ScheduleEntryView, bool, error)
}

// TimetableHandler exposes read-only timetable lookups.
type TimetableHandler struct {
	service timetableReadService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(service timetableReadService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Student godoc
// @Summary Get student with enrollments
// @Tags Timetable
// @Produce json
// @Param id path string true "Student code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *TimetableHandler) Student(c *gin.Context) {
	student, hit, err := h.service.Student(c.Request.Context(), c.Param("id"))
	respondRead(c, student, hit, err)
}

// StudentSchedule godoc
// @Summary Weekly schedule of a student
// @Tags Timetable
// @Produce json
// @Param id path string true "Student code"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/schedule [get]
func (h *TimetableHandler) StudentSchedule(c *gin.Context) {
	entries, hit, err := h.service.StudentSchedule(c.Request.Context(), c.Param("id"))
	respondRead(c, entries, hit, err)
}

// SectionsOf godoc
// @Summary List sections of a UC
// @Tags Timetable
// @Produce json
// @Param uc path string true "UC code"
// @Success 200 {object} response.Envelope
// @Router /ucs/{uc}/sections [get]
func (h *TimetableHandler) SectionsOf(c *gin.Context) {
	sections, hit, err := h.service.SectionsOf(c.Request.Context(), c.Param("uc"))
	respondRead(c, sections, hit, err)
}

// UCSchedule godoc
// @Summary Weekly schedule of every section of a UC
// @Tags Timetable
// @Produce json
// @Param uc path string true "UC code"
// @Success 200 {object} response.Envelope
// @Router /ucs/{uc}/schedule [get]
func (h *TimetableHandler) UCSchedule(c *gin.Context) {
	entries, hit, err := h.service.UCSchedule(c.Request.Context(), c.Param("uc"))
	respondRead(c, entries, hit, err)
}

// UCStudents godoc
// @Summary Students enrolled in a UC
// @Tags Timetable
// @Produce json
// @Param uc path string true "UC code"
// @Param order query string false "name-asc, name-desc, id-asc or id-desc"
// @Success 200 {object} response.Envelope
// @Router /ucs/{uc}/students [get]
func (h *TimetableHandler) UCStudents(c *gin.Context) {
	order, ok := rosterOrder(c)
	if !ok {
		return
	}
	students, hit, err := h.service.UCStudents(c.Request.Context(), c.Param("uc"), order)
	respondRead(c, students, hit, err)
}

// Section godoc
// @Summary Get one section
// @Tags Timetable
// @Produce json
// @Param uc path string true "UC code"
// @Param section path string true "Section code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{uc}/{section} [get]
func (h *TimetableHandler) Section(c *gin.Context) {
	section, hit, err := h.service.Section(c.Request.Context(), sectionKey(c))
	respondRead(c, section, hit, err)
}

// Roster godoc
// @Summary Students of one section
// @Tags Timetable
// @Produce json
// @Param uc path string true "UC code"
// @Param section path string true "Section code"
// @Param order query string false "name-asc, name-desc, id-asc or id-desc"
// @Success 200 {object} response.Envelope
// @Router /sections/{uc}/{section}/students [get]
func (h *TimetableHandler) Roster(c *gin.Context) {
	order, ok := rosterOrder(c)
	if !ok {
		return
	}
	students, hit, err := h.service.Roster(c.Request.Context(), sectionKey(c), order)
	respondRead(c, students, hit, err)
}

// SectionCodeSchedule godoc
// @Summary Schedule of every UC taught under a section code
// @Tags Timetable
// @Produce json
// @Param section path string true "Section code"
// @Success 200 {object} response.Envelope
// @Router /section-codes/{section}/schedule [get]
func (h *TimetableHandler) SectionCodeSchedule(c *gin.Context) {
	entries, hit, err := h.service.SectionCodeSchedule(c.Request.Context(), c.Param("section"))
	respondRead(c, entries, hit, err)
}

func sectionKey(c *gin.Context) models.SectionKey {
	return models.SectionKey{
		UCCode:      strings.TrimSpace(c.Param("uc")),
		SectionCode: strings.TrimSpace(c.Param("section")),
	}
}

func rosterOrder(c *gin.Context) (models.RosterOrder, bool) {
	order, err := models.ParseRosterOrder(c.Query("order"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return "", false
	}
	return order, true
}

func respondRead(c *gin.Context, data interface{}, cacheHit bool, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}
