package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/middleware"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newTestContext(method, target string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

type fakeTimetableSrv struct {
	student   *dto.StudentView
	roster    []dto.StudentSummary
	hit       bool
	err       error
	lastKey   models.SectionKey
	lastOrder models.RosterOrder
	lastID    string
}

func (f *fakeTimetableSrv) Student(_ context.Context, id string) (*dto.StudentView, bool, error) {
	f.lastID = id
	return f.student, f.hit, f.err
}

func (f *fakeTimetableSrv) StudentSchedule(_ context.Context, id string) ([]dto.ScheduleEntryView, bool, error) {
	f.lastID = id
	return []dto.ScheduleEntryView{{UCCode: "L.EIC001", SectionCode: "1LEIC01", Weekday: models.Monday, Start: "10:30", End: "12:00", Kind: "TP"}}, f.hit, f.err
}

func (f *fakeTimetableSrv) Section(_ context.Context, key models.SectionKey) (*dto.SectionView, bool, error) {
	f.lastKey = key
	return &dto.SectionView{UCCode: key.UCCode, SectionCode: key.SectionCode}, f.hit, f.err
}

func (f *fakeTimetableSrv) SectionsOf(context.Context, string) ([]dto.SectionView, bool, error) {
	return []dto.SectionView{}, f.hit, f.err
}

func (f *fakeTimetableSrv) Roster(_ context.Context, key models.SectionKey, order models.RosterOrder) ([]dto.StudentSummary, bool, error) {
	f.lastKey = key
	f.lastOrder = order
	return f.roster, f.hit, f.err
}

func (f *fakeTimetableSrv) UCStudents(_ context.Context, _ string, order models.RosterOrder) ([]dto.StudentSummary, bool, error) {
	f.lastOrder = order
	return f.roster, f.hit, f.err
}

func (f *fakeTimetableSrv) UCSchedule(context.Context, string) ([]dto.ScheduleEntryView, bool, error) {
	return []dto.ScheduleEntryView{}, f.hit, f.err
}

func (f *fakeTimetableSrv) SectionCodeSchedule(context.Context, string) ([]dto.ScheduleEntryView, bool, error) {
	return []dto.ScheduleEntryView{}, f.hit, f.err
}

func TestTimetableHandlerStudent(t *testing.T) {
	srv := &fakeTimetableSrv{student: &dto.StudentView{ID: "202025232", Name: "Iara", Enrollments: []models.SectionKey{}}, hit: true}
	handler := NewTimetableHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/students/202025232", nil)
	c.Params = gin.Params{{Key: "id", Value: "202025232"}}
	handler.Student(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "202025232", srv.lastID)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	var student dto.StudentView
	require.NoError(t, json.Unmarshal(envelope.Data, &student))
	assert.Equal(t, "Iara", student.Name)
}

func TestTimetableHandlerStudentNotFound(t *testing.T) {
	handler := NewTimetableHandler(&fakeTimetableSrv{err: appErrors.Clone(appErrors.ErrUnknownStudent, "student 1 not found")})

	c, rec := newTestContext(http.MethodGet, "/students/1", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.Student(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrUnknownStudent.Code, envelope.Error.Code)
}

func TestTimetableHandlerRosterOrder(t *testing.T) {
	srv := &fakeTimetableSrv{roster: []dto.StudentSummary{{ID: "2", Name: "Bruno"}, {ID: "1", Name: "Ana"}}}
	handler := NewTimetableHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/sections/L.EIC001/1LEIC01/students?order=id-desc", nil)
	c.Params = gin.Params{{Key: "uc", Value: "L.EIC001"}, {Key: "section", Value: "1LEIC01"}}
	handler.Roster(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OrderIDDesc, srv.lastOrder)
	assert.Equal(t, models.SectionKey{UCCode: "L.EIC001", SectionCode: "1LEIC01"}, srv.lastKey)
	var roster []dto.StudentSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &roster))
	assert.Len(t, roster, 2)
}

func TestTimetableHandlerRosterDefaultsAndRejectsOrder(t *testing.T) {
	srv := &fakeTimetableSrv{roster: []dto.StudentSummary{}}
	handler := NewTimetableHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/ucs/L.EIC001/students", nil)
	c.Params = gin.Params{{Key: "uc", Value: "L.EIC001"}}
	handler.UCStudents(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DefaultRosterOrder, srv.lastOrder)

	c, rec = newTestContext(http.MethodGet, "/ucs/L.EIC001/students?order=random", nil)
	c.Params = gin.Params{{Key: "uc", Value: "L.EIC001"}}
	handler.UCStudents(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimetableHandlerSchedules(t *testing.T) {
	handler := NewTimetableHandler(&fakeTimetableSrv{})

	c, rec := newTestContext(http.MethodGet, "/students/1/schedule", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	handler.StudentSchedule(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	var entries []dto.ScheduleEntryView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "10:30", entries[0].Start)

	c, rec = newTestContext(http.MethodGet, "/section-codes/1LEIC01/schedule", nil)
	c.Params = gin.Params{{Key: "section", Value: "1LEIC01"}}
	handler.SectionCodeSchedule(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(decodeEnvelope(t, rec).Data))
}
