package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	"github.com/noah-isme/uc-timetable-api/internal/service"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
)

type fakeExportSrv struct {
	requested []dto.ExportRequest
	jobs      map[string]*models.ExportJob
	path      string
}

func (f *fakeExportSrv) Request(_ context.Context, req dto.ExportRequest, requestedBy string) (*models.ExportJob, error) {
	f.requested = append(f.requested, req)
	job := &models.ExportJob{ID: "job-1", Kind: models.ExportKind(req.Kind), Format: models.ExportFormat(req.Format), Status: models.ExportStatusQueued, RequestedBy: requestedBy}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeExportSrv) Job(_ context.Context, id string) (*models.ExportJob, error) {
	if job, ok := f.jobs[id]; ok {
		return job, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
}

func (f *fakeExportSrv) Open(token string) (*service.Download, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	return &service.Download{File: file, Filename: "roster.csv", ContentType: "text/csv; charset=utf-8"}, nil
}

func TestExportHandlerCreate(t *testing.T) {
	srv := &fakeExportSrv{jobs: map[string]*models.ExportJob{}}
	handler := NewExportHandler(srv)

	c, rec := jsonContext(http.MethodPost, "/exports", `{"kind":"roster","format":"csv","uc_code":"L.EIC001","section_code":"1LEIC01"}`, studentClaims)
	handler.Create(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = jsonContext(http.MethodPost, "/exports", `{"kind":"student-schedule","format":"pdf","student_id":"202025232"}`, studentClaims)
	handler.Create(c)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp dto.ExportResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, string(models.ExportStatusQueued), resp.Status)

	c, rec = jsonContext(http.MethodPost, "/exports", `{"kind":"roster","format":"csv","uc_code":"L.EIC001","section_code":"1LEIC01"}`, adminClaims)
	handler.Create(c)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, srv.requested, 2)
}

func TestExportHandlerJobVisibility(t *testing.T) {
	srv := &fakeExportSrv{jobs: map[string]*models.ExportJob{
		"job-9": {ID: "job-9", Status: models.ExportStatusFinished, RequestedBy: "admin"},
	}}
	handler := NewExportHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/export-jobs/job-9", studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "job-9"}}
	handler.Job(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/export-jobs/job-9", adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "job-9"}}
	handler.Job(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte("Student,Name\n1,Ana\n"), 0o600))
	handler := NewExportHandler(&fakeExportSrv{path: path})

	c, rec := newTestContext(http.MethodGet, "/exports/good", nil)
	c.Params = gin.Params{{Key: "token", Value: "good"}}
	handler.Download(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Student,Name\n1,Ana\n", rec.Body.String())
	assert.Equal(t, `attachment; filename="roster.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	c, rec = newTestContext(http.MethodGet, "/exports/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
