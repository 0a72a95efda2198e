package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/uc-timetable-api/internal/service"
)

type readyFlag bool

func (r readyFlag) Ready() bool { return bool(r) }

func TestMetricsHandlerReadiness(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, readyFlag(false)).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, readyFlag(true)).Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, nil).Health(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordSubmission()

	c, rec := newTestContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(metrics, nil).Prometheus(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "change_requests_submitted_total 1")

	c, rec = newTestContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
