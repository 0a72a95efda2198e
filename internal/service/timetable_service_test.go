package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uc-timetable-api/internal/dto"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
)

type stubTimetableStore struct {
	snapshot models.Snapshot
	loadErr  error
	saved    *models.Snapshot
}

func (s *stubTimetableStore) LoadAll(context.Context) (models.Snapshot, error) {
	if s.loadErr != nil {
		return models.Snapshot{}, s.loadErr
	}
	return s.snapshot, nil
}

func (s *stubTimetableStore) SaveAll(_ context.Context, snapshot models.Snapshot) error {
	s.saved = &snapshot
	return nil
}

type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = raw
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range r.items {
		if strings.HasPrefix(k, prefix) {
			delete(r.items, k)
		}
	}
	return nil
}

type recordingPublisher struct {
	events []string
	ids    []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, data interface{}) error {
	p.events = append(p.events, eventType)
	if req, ok := data.(models.ChangeRequest); ok {
		p.ids = append(p.ids, req.ID)
	}
	return nil
}

func swapFixture() models.Snapshot {
	a := key("CS101", "A")
	b := key("CS101", "B")
	return models.Snapshot{
		Sections: []*models.Section{
			models.NewSection(a, 1, slot(models.Monday, 9, 2)),
			models.NewSection(b, 1, slot(models.Tuesday, 9, 2)),
		},
		Students: []*models.Student{
			enrolled("1", "Ana", a),
			enrolled("2", "Bruno", b),
		},
	}
}

func newLoadedService(t *testing.T, store *stubTimetableStore, opts ...TimetableOption) *TimetableService {
	t.Helper()
	svc := NewTimetableService(store, nil, opts...)
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func TestTimetableServiceReadsBeforeLoad(t *testing.T) {
	svc := NewTimetableService(&stubTimetableStore{}, nil)
	assert.False(t, svc.Ready())

	_, _, err := svc.Student(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	_, err = svc.Process(context.Background())
	require.Error(t, err)
}

func TestTimetableServiceLoadFailure(t *testing.T) {
	svc := NewTimetableService(&stubTimetableStore{loadErr: errors.New("disk gone")}, nil)
	err := svc.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.False(t, svc.Ready())
}

func TestTimetableServiceSubmitValidation(t *testing.T) {
	svc := newLoadedService(t, &stubTimetableStore{snapshot: swapFixture()})

	_, err := svc.Submit(context.Background(), dto.SubmitChangeRequest{StudentID: "1", UCCode: " "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), dto.SubmitChangeRequest{StudentID: "9", UCCode: "CS101", TargetSection: "B"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownStudent.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), dto.SubmitChangeRequest{StudentID: "1", UCCode: "MA201", TargetSection: "B"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), dto.SubmitChangeRequest{StudentID: "1", UCCode: "CS101", TargetSection: "Z"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownSection.Code, appErrors.FromError(err).Code)

	pending, err := svc.Requests(context.Background(), models.ChangeRequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTimetableServiceProcessSwapPublishesAndSaves(t *testing.T) {
	store := &stubTimetableStore{snapshot: swapFixture()}
	publisher := &recordingPublisher{}
	metrics := NewMetricsService()
	svc := newLoadedService(t, store, WithEventPublisher(publisher), WithTimetableMetrics(metrics))
	ctx := context.Background()

	r1, err := svc.Submit(ctx, dto.SubmitChangeRequest{StudentID: "1", UCCode: "CS101", TargetSection: "B"})
	require.NoError(t, err)
	r2, err := svc.Submit(ctx, dto.SubmitChangeRequest{StudentID: "2", UCCode: "CS101", TargetSection: "A"})
	require.NoError(t, err)

	report, err := svc.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Approved)
	assert.Equal(t, 1, report.Swaps)
	assert.Equal(t, 0, report.Remaining)
	require.Len(t, report.Decisions, 2)

	assert.Equal(t, []string{EventChangeSubmitted, EventChangeSubmitted, EventChangeApproved, EventChangeApproved}, publisher.events)
	assert.ElementsMatch(t, []string{r1.ID, r2.ID}, publisher.ids[2:])

	stored, err := svc.Request(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, stored.Status)

	require.NoError(t, svc.Save(ctx))
	require.NotNil(t, store.saved)
	for _, student := range store.saved.Students {
		switch student.ID {
		case "1":
			assert.Equal(t, key("CS101", "B"), student.Enrollments["CS101"])
		case "2":
			assert.Equal(t, key("CS101", "A"), student.Enrollments["CS101"])
		}
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() == "change_requests_total" {
			found = true
			require.Len(t, family.GetMetric(), 1)
			assert.Equal(t, float64(2), family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestTimetableServiceCacheInvalidatedAfterApproval(t *testing.T) {
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := newLoadedService(t, &stubTimetableStore{snapshot: swapFixture()}, WithTimetableCache(cache))
	ctx := context.Background()
	a := key("CS101", "A")

	roster, hit, err := svc.Roster(ctx, a, models.OrderNameAsc)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, roster, 1)
	assert.Equal(t, "1", roster[0].ID)

	roster, hit, err = svc.Roster(ctx, a, models.OrderNameAsc)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "1", roster[0].ID)

	student, hit, err := svc.Student(ctx, "1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []models.SectionKey{a}, student.Enrollments)

	_, err = svc.Submit(ctx, dto.SubmitChangeRequest{StudentID: "1", UCCode: "CS101", TargetSection: "B"})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, dto.SubmitChangeRequest{StudentID: "2", UCCode: "CS101", TargetSection: "A"})
	require.NoError(t, err)
	_, err = svc.Process(ctx)
	require.NoError(t, err)

	roster, hit, err = svc.Roster(ctx, a, models.OrderNameAsc)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, roster, 1)
	assert.Equal(t, "2", roster[0].ID)

	student, _, err = svc.Student(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []models.SectionKey{key("CS101", "B")}, student.Enrollments)
}

func TestTimetableServiceReadErrors(t *testing.T) {
	svc := newLoadedService(t, &stubTimetableStore{snapshot: swapFixture()})
	ctx := context.Background()

	_, _, err := svc.Section(ctx, key("CS101", "Z"))
	assert.Equal(t, appErrors.ErrUnknownSection.Code, appErrors.FromError(err).Code)

	_, _, err = svc.Roster(ctx, key("CS101", "Z"), models.OrderIDAsc)
	assert.Equal(t, appErrors.ErrUnknownSection.Code, appErrors.FromError(err).Code)

	_, _, err = svc.StudentSchedule(ctx, "404")
	assert.Equal(t, appErrors.ErrUnknownStudent.Code, appErrors.FromError(err).Code)

	_, err = svc.Request(ctx, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	sections, _, err := svc.SectionsOf(ctx, "NOPE")
	require.NoError(t, err)
	assert.Empty(t, sections)

	schedule, _, err := svc.UCSchedule(ctx, "CS101")
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Equal(t, models.Monday, schedule[0].Weekday)
	assert.Equal(t, "09:00", schedule[0].Start)
	assert.Equal(t, "11:00", schedule[0].End)
}

func TestCacheKeyEscapesParts(t *testing.T) {
	assert.NotEqual(t,
		cacheKey("section", "A", "B:C"),
		cacheKey("section", "A:B", "C"))
	assert.Equal(t, "timetable:section:L.EIC001:1LEIC01", cacheKey("section", "L.EIC001", "1LEIC01"))
	assert.Equal(t, "timetable:uc:CS%2A%3A1:schedule", cacheKey("uc", "CS*:1", "schedule"))
}
