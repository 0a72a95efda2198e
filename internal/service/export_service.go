package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
	"github.com/noah-isme/uc-timetable-api/pkg/export"
	"github.com/noah-isme/uc-timetable-api/pkg/jobs"
	"github.com/noah-isme/uc-timetable-api/pkg/storage"
)

type timetableReader interface {
	Roster(ctx context.Context, key models.SectionKey, order models.RosterOrder) ([]dto.StudentSummary, bool, error)
	UCStudents(ctx context.Context, ucCode string, order models.RosterOrder) ([]dto.StudentSummary, bool, error)
	Student(ctx context.Context, id string) (*dto.StudentView, bool, error)
	StudentSchedule(ctx context.Context, id string) ([]dto.ScheduleEntryView, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// Download is an opened export file ready to stream.
type Download struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders rosters and schedules to CSV or PDF in the
// background and hands out signed download links. It only reads the
// timetable.
type ExportService struct {
	reader     timetableReader
	storage    fileStorage
	signer     *storage.SignedURLSigner
	renderers  map[models.ExportFormat]export.Renderer
	dispatcher jobDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time

	mu   sync.RWMutex
	jobs map[string]*models.ExportJob
}

// NewExportService constructs an ExportService. Call UseDispatcher before
// accepting requests.
func NewExportService(reader timetableReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &ExportService{
		reader:  reader,
		storage: files,
		signer:  signer,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV: export.NewCSVExporter(),
			models.ExportFormatPDF: export.NewPDFExporter(),
		},
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[string]*models.ExportJob),
	}
}

// UseDispatcher sets the queue export jobs are sent to.
func (s *ExportService) UseDispatcher(d jobDispatcher) {
	s.dispatcher = d
}

// Request validates and queues an export on behalf of requestedBy.
func (s *ExportService) Request(ctx context.Context, req dto.ExportRequest, requestedBy string) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	order, err := models.ParseRosterOrder(req.Order)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster order")
	}
	if s.dispatcher == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue not configured")
	}

	job := &models.ExportJob{
		ID:          uuid.NewString(),
		Kind:        models.ExportKind(req.Kind),
		Format:      models.ExportFormat(req.Format),
		UCCode:      req.UCCode,
		SectionCode: req.SectionCode,
		StudentID:   req.StudentID,
		Order:       order,
		Status:      models.ExportStatusQueued,
		RequestedBy: requestedBy,
		CreatedAt:   s.now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.dispatcher.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
		s.fail(job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	s.logger.Info("export queued", zap.String("job_id", job.ID), zap.String("kind", req.Kind), zap.String("format", req.Format))
	return s.Job(ctx, job.ID)
}

// Job returns a copy of an export job.
func (s *ExportService) Job(_ context.Context, id string) (*models.ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	cp := *job
	return &cp, nil
}

// Handle is the queue handler: it renders the job and records the result.
// Returned errors make the queue retry.
func (s *ExportService) Handle(ctx context.Context, queued jobs.Job) error {
	s.mu.Lock()
	job, ok := s.jobs[queued.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("export job %s not found", queued.ID)
	}
	job.Status = models.ExportStatusRunning
	snapshot := *job
	s.mu.Unlock()

	file, url, expiresAt, err := s.Generate(ctx, &snapshot)
	if err != nil {
		s.mu.Lock()
		job.Error = err.Error()
		job.Status = models.ExportStatusQueued
		s.mu.Unlock()
		return err
	}

	finished := s.now()
	s.mu.Lock()
	job.Status = models.ExportStatusFinished
	job.File = file
	job.URL = url
	job.ExpiresAt = &expiresAt
	job.FinishedAt = &finished
	job.Error = ""
	s.mu.Unlock()
	s.logger.Info("export finished", zap.String("job_id", job.ID), zap.String("file", file))
	return nil
}

// MarkFailed records a job the queue gave up on.
func (s *ExportService) MarkFailed(queued jobs.Job, err error) {
	s.fail(queued.ID, err)
}

func (s *ExportService) fail(id string, err error) {
	finished := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.ExportStatusFailed
		job.Error = err.Error()
		job.FinishedAt = &finished
	}
}

// Generate renders the dataset for job, stores it and signs a download link.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (file, url string, expiresAt time.Time, err error) {
	renderer, ok := s.renderers[job.Format]
	if !ok {
		return "", "", time.Time{}, fmt.Errorf("unsupported format %s", job.Format)
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return "", "", time.Time{}, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return "", "", time.Time{}, err
	}
	file, err = s.storage.Save(s.buildFilename(job, renderer.Extension()), payload)
	if err != nil {
		return "", "", time.Time{}, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, file)
	if err != nil {
		return "", "", time.Time{}, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return file, fmt.Sprintf("%s/exports/%s", prefix, token), expiresAt, nil
}

// Open validates a download token and opens the referenced file.
func (s *ExportService) Open(token string) (*Download, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	contentType := "application/octet-stream"
	for _, r := range s.renderers {
		if strings.HasSuffix(relPath, "."+r.Extension()) {
			contentType = r.ContentType()
		}
	}
	name := relPath
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return &Download{File: file, Filename: name, ContentType: contentType}, nil
}

// Cleanup removes stored files older than ttl (ResultTTL when ttl <= 0) and
// forgets finished jobs whose links have expired.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	now := s.now()
	s.mu.Lock()
	for id, job := range s.jobs {
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > ttl {
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()
	return removed, nil
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, error) {
	switch job.Kind {
	case models.ExportKindRoster:
		key := models.SectionKey{UCCode: job.UCCode, SectionCode: job.SectionCode}
		students, _, err := s.reader.Roster(ctx, key, job.Order)
		if err != nil {
			return export.Dataset{}, err
		}
		return studentDataset(fmt.Sprintf("Roster %s", key), students), nil
	case models.ExportKindUCStudents:
		students, _, err := s.reader.UCStudents(ctx, job.UCCode, job.Order)
		if err != nil {
			return export.Dataset{}, err
		}
		return studentDataset(fmt.Sprintf("Students of %s", job.UCCode), students), nil
	case models.ExportKindStudentSchedule:
		student, _, err := s.reader.Student(ctx, job.StudentID)
		if err != nil {
			return export.Dataset{}, err
		}
		entries, _, err := s.reader.StudentSchedule(ctx, job.StudentID)
		if err != nil {
			return export.Dataset{}, err
		}
		rows := make([]map[string]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, map[string]string{
				"Day":     e.Weekday.String(),
				"Start":   e.Start,
				"End":     e.End,
				"UC":      e.UCCode,
				"Section": e.SectionCode,
				"Type":    e.Kind,
			})
		}
		return export.Dataset{
			Title:   fmt.Sprintf("Schedule of %s (%s)", student.Name, student.ID),
			Headers: []string{"Day", "Start", "End", "UC", "Section", "Type"},
			Rows:    rows,
		}, nil
	default:
		return export.Dataset{}, fmt.Errorf("unsupported export kind %s", job.Kind)
	}
}

func studentDataset(title string, students []dto.StudentSummary) export.Dataset {
	rows := make([]map[string]string, 0, len(students))
	for _, s := range students {
		rows = append(rows, map[string]string{"Student": s.ID, "Name": s.Name})
	}
	return export.Dataset{Title: title, Headers: []string{"Student", "Name"}, Rows: rows}
}

func (s *ExportService) buildFilename(job *models.ExportJob, ext string) string {
	parts := []string{string(job.Kind)}
	for _, p := range []string{job.UCCode, job.SectionCode, job.StudentID} {
		if p != "" {
			parts = append(parts, sanitizeFilename(p))
		}
	}
	parts = append(parts, s.now().Format("20060102_150405"))
	return fmt.Sprintf("%s/%s.%s", job.ID, strings.Join(parts, "_"), ext)
}

func sanitizeFilename(raw string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}
