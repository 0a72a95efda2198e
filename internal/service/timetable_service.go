package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
)

// Change request event types published after submissions and decisions.
const (
	EventChangeSubmitted = "change_request.submitted"
	EventChangeApproved  = "change_request.approved"
	EventChangeRejected  = "change_request.rejected"
)

const timetableCachePattern = "timetable:*"

// TimetableStore loads and persists the whole timetable.
type TimetableStore interface {
	LoadAll(ctx context.Context) (models.Snapshot, error)
	SaveAll(ctx context.Context, snapshot models.Snapshot) error
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// TimetableService owns the ScheduleManager and serialises every call to it.
// Reads share a read lock; submissions and processing passes take the write
// lock, so the engine always sees one actor at a time.
type TimetableService struct {
	mu      sync.RWMutex
	manager *ScheduleManager

	store       TimetableStore
	cache       *CacheService
	metrics     *MetricsService
	publisher   EventPublisher
	validator   *validator.Validate
	logger      *zap.Logger
	managerOpts []ManagerOption
}

// TimetableOption configures a TimetableService.
type TimetableOption func(*TimetableService)

// WithTimetableCache enables read caching.
func WithTimetableCache(cache *CacheService) TimetableOption {
	return func(s *TimetableService) { s.cache = cache }
}

// WithTimetableMetrics enables engine metrics.
func WithTimetableMetrics(metrics *MetricsService) TimetableOption {
	return func(s *TimetableService) { s.metrics = metrics }
}

// WithEventPublisher sets the destination for change request events.
func WithEventPublisher(publisher EventPublisher) TimetableOption {
	return func(s *TimetableService) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithValidator overrides the payload validator.
func WithValidator(validate *validator.Validate) TimetableOption {
	return func(s *TimetableService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// WithManagerOptions forwards options to every ScheduleManager built by Load.
func WithManagerOptions(opts ...ManagerOption) TimetableOption {
	return func(s *TimetableService) { s.managerOpts = append(s.managerOpts, opts...) }
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// NewTimetableService constructs the service. Load must succeed before any
// other call.
func NewTimetableService(store TimetableStore, logger *zap.Logger, opts ...TimetableOption) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TimetableService{
		store:     store,
		publisher: nopPublisher{},
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load replaces the in-memory timetable with the store's contents. Pending
// requests do not survive a reload.
func (s *TimetableService) Load(ctx context.Context) error {
	if s.store == nil {
		return appErrors.Clone(appErrors.ErrInternal, "timetable store not configured")
	}
	snapshot, err := s.store.LoadAll(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	manager, err := NewScheduleManager(snapshot, s.managerOpts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager = manager
	s.invalidateLocked(ctx)
	students, sections, _ := manager.Counts()
	s.metrics.SetPendingRequests(0)
	if err := manager.CheckInvariants(); err != nil {
		s.logger.Warn("timetable loaded with inconsistencies", zap.Error(err))
	}
	s.logger.Info("timetable loaded", zap.Int("students", students), zap.Int("sections", sections))
	return nil
}

// Save writes the current enrollments back to the store.
func (s *TimetableService) Save(ctx context.Context) error {
	s.mu.RLock()
	if s.manager == nil {
		s.mu.RUnlock()
		return appErrors.Clone(appErrors.ErrInternal, "timetable not loaded")
	}
	snapshot := s.manager.Snapshot()
	s.mu.RUnlock()

	if err := s.store.SaveAll(ctx, snapshot); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	s.logger.Info("timetable saved", zap.Int("students", len(snapshot.Students)))
	return nil
}

// Ready reports whether a timetable has been loaded.
func (s *TimetableService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager != nil
}

// Student returns the student view. The boolean reports a cache hit.
func (s *TimetableService) Student(ctx context.Context, id string) (*dto.StudentView, bool, error) {
	return cachedRead(ctx, s, cacheKey("student", id), func(m *ScheduleManager) (*dto.StudentView, error) {
		student, ok := m.FindStudent(id)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownStudent, fmt.Sprintf("student %s not found", id))
		}
		view := dto.NewStudentView(student)
		return &view, nil
	})
}

// StudentSchedule returns every slot the student attends, in weekly order.
func (s *TimetableService) StudentSchedule(ctx context.Context, id string) ([]dto.ScheduleEntryView, bool, error) {
	return cachedRead(ctx, s, cacheKey("student", id, "schedule"), func(m *ScheduleManager) ([]dto.ScheduleEntryView, error) {
		entries, ok := m.StudentSchedule(id)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownStudent, fmt.Sprintf("student %s not found", id))
		}
		return dto.NewScheduleEntryViews(entries), nil
	})
}

// Section returns one section.
func (s *TimetableService) Section(ctx context.Context, key models.SectionKey) (*dto.SectionView, bool, error) {
	return cachedRead(ctx, s, cacheKey("section", key.UCCode, key.SectionCode), func(m *ScheduleManager) (*dto.SectionView, error) {
		section, ok := m.FindSection(key)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownSection, fmt.Sprintf("section %s not found", key))
		}
		view := dto.NewSectionView(section)
		return &view, nil
	})
}

// SectionsOf lists the sections of a UC ordered by section code. An unknown
// UC yields an empty list.
func (s *TimetableService) SectionsOf(ctx context.Context, ucCode string) ([]dto.SectionView, bool, error) {
	return cachedRead(ctx, s, cacheKey("uc", ucCode, "sections"), func(m *ScheduleManager) ([]dto.SectionView, error) {
		sections := m.SectionsOf(ucCode)
		views := make([]dto.SectionView, 0, len(sections))
		for _, section := range sections {
			views = append(views, dto.NewSectionView(section))
		}
		return views, nil
	})
}

// Roster lists the students of a section in the requested order.
func (s *TimetableService) Roster(ctx context.Context, key models.SectionKey, order models.RosterOrder) ([]dto.StudentSummary, bool, error) {
	return cachedRead(ctx, s, cacheKey("section", key.UCCode, key.SectionCode, "students", string(order)), func(m *ScheduleManager) ([]dto.StudentSummary, error) {
		students, ok := m.StudentsOf(key, order)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownSection, fmt.Sprintf("section %s not found", key))
		}
		return dto.NewStudentSummaries(students), nil
	})
}

// UCStudents lists every student enrolled in a UC.
func (s *TimetableService) UCStudents(ctx context.Context, ucCode string, order models.RosterOrder) ([]dto.StudentSummary, bool, error) {
	return cachedRead(ctx, s, cacheKey("uc", ucCode, "students", string(order)), func(m *ScheduleManager) ([]dto.StudentSummary, error) {
		return dto.NewStudentSummaries(m.UCStudents(ucCode, order)), nil
	})
}

// UCSchedule lists every slot of every section of a UC.
func (s *TimetableService) UCSchedule(ctx context.Context, ucCode string) ([]dto.ScheduleEntryView, bool, error) {
	return cachedRead(ctx, s, cacheKey("uc", ucCode, "schedule"), func(m *ScheduleManager) ([]dto.ScheduleEntryView, error) {
		return dto.NewScheduleEntryViews(m.UCSchedule(ucCode)), nil
	})
}

// SectionCodeSchedule lists the slots of every section sharing a code.
func (s *TimetableService) SectionCodeSchedule(ctx context.Context, sectionCode string) ([]dto.ScheduleEntryView, bool, error) {
	return cachedRead(ctx, s, cacheKey("section-code", sectionCode, "schedule"), func(m *ScheduleManager) ([]dto.ScheduleEntryView, error) {
		return dto.NewScheduleEntryViews(m.SectionCodeSchedule(sectionCode)), nil
	})
}

// Submit validates the payload and enqueues a change request.
func (s *TimetableService) Submit(ctx context.Context, req dto.SubmitChangeRequest) (*models.ChangeRequest, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.UCCode = strings.TrimSpace(req.UCCode)
	req.TargetSection = strings.TrimSpace(req.TargetSection)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change request payload")
	}

	s.mu.Lock()
	if s.manager == nil {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable not loaded")
	}
	created, err := s.manager.Submit(req.StudentID, req.UCCode, req.TargetSection)
	if err == nil {
		s.metrics.RecordSubmission()
		s.metrics.SetPendingRequests(len(s.manager.PendingRequests()))
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("change request submitted",
		zap.String("request_id", created.ID),
		zap.String("student_id", created.StudentID),
		zap.String("uc", created.UCCode),
		zap.String("from", created.FromSection),
		zap.String("to", created.TargetSection),
	)
	s.publish(ctx, EventChangeSubmitted, *created)
	return created, nil
}

// Requests lists change requests matching the filter in submission order.
func (s *TimetableService) Requests(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable not loaded")
	}
	return s.manager.Requests(filter), nil
}

// Request returns one change request.
func (s *TimetableService) Request(ctx context.Context, id string) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable not loaded")
	}
	req, ok := s.manager.Request(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("change request %s not found", id))
	}
	return req, nil
}

// Process runs one processing pass over the pending queue.
func (s *TimetableService) Process(ctx context.Context) (*dto.ProcessReportResponse, error) {
	s.mu.Lock()
	if s.manager == nil {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable not loaded")
	}
	start := time.Now()
	report := s.manager.ProcessRequests()
	remaining := len(s.manager.PendingRequests())
	if report.Approved > 0 {
		s.invalidateLocked(ctx)
	}
	invariantErr := s.manager.CheckInvariants()
	s.mu.Unlock()

	s.metrics.RecordDecisions(report.Processed)
	s.metrics.ObserveProcessPass(time.Since(start), remaining)
	if invariantErr != nil {
		s.metrics.RecordInvariantViolation()
		s.logger.Error("timetable invariants violated after processing", zap.Error(invariantErr))
	}

	for _, decided := range report.Processed {
		eventType := EventChangeApproved
		if decided.Status == models.ChangeRequestRejected {
			eventType = EventChangeRejected
		}
		s.publish(ctx, eventType, decided)
	}

	s.logger.Info("change requests processed",
		zap.Int("approved", report.Approved),
		zap.Int("rejected", report.Rejected),
		zap.Int("swaps", report.Swaps),
		zap.Duration("duration", time.Since(start)),
	)
	return &dto.ProcessReportResponse{
		Approved:  report.Approved,
		Rejected:  report.Rejected,
		Swaps:     report.Swaps,
		Remaining: remaining,
		Decisions: report.Processed,
	}, nil
}

func (s *TimetableService) publish(ctx context.Context, eventType string, req models.ChangeRequest) {
	if err := s.publisher.Publish(ctx, eventType, req); err != nil {
		s.logger.Warn("publish change request event failed",
			zap.String("event", eventType),
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}
}

// invalidateLocked drops every cached read model. Callers hold the write lock
// so no reader can repopulate the cache with pre-change data.
func (s *TimetableService) invalidateLocked(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, timetableCachePattern); err != nil {
		s.logger.Warn("invalidate timetable cache", zap.Error(err))
	}
}

// cachedRead serves a read model from cache or builds it under the read lock.
// Cache failures degrade to a direct read.
func cachedRead[T any](ctx context.Context, s *TimetableService, key string, build func(*ScheduleManager) (T, error)) (T, bool, error) {
	var zero T
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager == nil {
		return zero, false, appErrors.Clone(appErrors.ErrInternal, "timetable not loaded")
	}

	if s.cache != nil {
		var cached T
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return cached, true, nil
		}
	}

	value, err := build(s.manager)
	if err != nil {
		return zero, false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, value, 0); err != nil {
			s.logger.Warn("cache timetable read", zap.String("key", key), zap.Error(err))
		}
	}
	return value, false, nil
}

// cacheKey query-escapes each part, so codes holding ":" or glob
// characters map to distinct keys.
func cacheKey(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = url.QueryEscape(part)
	}
	return "timetable:" + strings.Join(escaped, ":")
}
