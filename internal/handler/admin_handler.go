package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uc-timetable-api/pkg/response"
)

type timetableLifecycle interface {
	Load(ctx context.Context) error
	Save(ctx context.Context) error
}

// AdminHandler exposes persistence controls for administrators.
type AdminHandler struct {
	timetable timetableLifecycle
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(timetable timetableLifecycle) *AdminHandler {
	return &AdminHandler{timetable: timetable}
}

// Save godoc
// @Summary Write current enrollments back to the store
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/timetable/save [post]
func (h *AdminHandler) Save(c *gin.Context) {
	if err := h.timetable.Save(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"saved": true})
}

// Reload godoc
// @Summary Reload the timetable from the store
// @Description Pending change requests are discarded.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/timetable/reload [post]
func (h *AdminHandler) Reload(c *gin.Context) {
	if err := h.timetable.Load(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"reloaded": true})
}
