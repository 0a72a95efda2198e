package service

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/uc-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uc-timetable-api/pkg/errors"
)

// ScheduleManager owns every student, section and change request and is the
// only place where enrollments change. It is not safe for concurrent use;
// TimetableService serialises access to it.
//
// Students and sections never point at each other: a student's enrollment is
// a SectionKey and a roster is a set of student ids, both resolved through
// the manager's maps.
type ScheduleManager struct {
	students map[string]*models.Student
	sections map[models.SectionKey]*models.Section
	queue    []*models.ChangeRequest

	now   func() time.Time
	newID func() string
}

// ManagerOption configures a ScheduleManager.
type ManagerOption func(*ScheduleManager)

// WithClock overrides the time source used for request timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *ScheduleManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides change request id generation.
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *ScheduleManager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewScheduleManager builds a manager from a persisted snapshot. Rosters are
// rebuilt from the students' enrollments; section rosters in the snapshot
// are ignored.
func NewScheduleManager(snapshot models.Snapshot, opts ...ManagerOption) (*ScheduleManager, error) {
	m := &ScheduleManager{
		students: make(map[string]*models.Student, len(snapshot.Students)),
		sections: make(map[models.SectionKey]*models.Section, len(snapshot.Sections)),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	for _, section := range snapshot.Sections {
		if section == nil {
			continue
		}
		if _, dup := m.sections[section.Key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate section %s", section.Key))
		}
		if section.Capacity < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %s has negative capacity", section.Key))
		}
		for _, slot := range section.Slots {
			if err := slot.Validate(); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("section %s has an invalid slot", section.Key))
			}
		}
		m.sections[section.Key] = models.NewSection(section.Key, section.Capacity, append([]models.TimeSlot(nil), section.Slots...)...)
	}

	for _, student := range snapshot.Students {
		if student == nil {
			continue
		}
		if _, dup := m.students[student.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate student %s", student.ID))
		}
		owned := student.Clone()
		if owned.Enrollments == nil {
			owned.Enrollments = make(map[string]models.SectionKey)
		}
		for uc, key := range owned.Enrollments {
			if key.UCCode != uc {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s maps uc %s to section %s", owned.ID, uc, key))
			}
			section, ok := m.sections[key]
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s enrolled in unknown section %s", owned.ID, key))
			}
			section.Roster[owned.ID] = struct{}{}
		}
		m.students[owned.ID] = owned
	}

	for key, section := range m.sections {
		if section.Size() > section.Capacity {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %s holds %d students over capacity %d", key, section.Size(), section.Capacity))
		}
	}
	return m, nil
}

// FindStudent returns a copy of the student, or false when absent.
func (m *ScheduleManager) FindStudent(id string) (*models.Student, bool) {
	student, ok := m.students[id]
	if !ok {
		return nil, false
	}
	return student.Clone(), true
}

// FindSection returns a copy of the section, or false when absent.
func (m *ScheduleManager) FindSection(key models.SectionKey) (*models.Section, bool) {
	section, ok := m.sections[key]
	if !ok {
		return nil, false
	}
	return section.Clone(), true
}

// SectionsOf returns every section of a UC ordered by key.
func (m *ScheduleManager) SectionsOf(ucCode string) []*models.Section {
	sections := make([]*models.Section, 0)
	for key, section := range m.sections {
		if key.UCCode == ucCode {
			sections = append(sections, section.Clone())
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Key.Less(sections[j].Key) })
	return sections
}

// StudentsOf projects a section roster in the requested order.
func (m *ScheduleManager) StudentsOf(key models.SectionKey, order models.RosterOrder) ([]models.Student, bool) {
	section, ok := m.sections[key]
	if !ok {
		return nil, false
	}
	return m.project(section.Roster, order), true
}

// UCStudents lists every student enrolled in any section of the UC.
func (m *ScheduleManager) UCStudents(ucCode string, order models.RosterOrder) []models.Student {
	ids := make(map[string]struct{})
	for key, section := range m.sections {
		if key.UCCode != ucCode {
			continue
		}
		for id := range section.Roster {
			ids[id] = struct{}{}
		}
	}
	return m.project(ids, order)
}

func (m *ScheduleManager) project(ids map[string]struct{}, order models.RosterOrder) []models.Student {
	students := make([]models.Student, 0, len(ids))
	for id := range ids {
		if student, ok := m.students[id]; ok {
			students = append(students, *student.Clone())
		}
	}
	models.SortStudents(students, order)
	return students
}

// StudentSchedule lists the slots of every section the student holds.
func (m *ScheduleManager) StudentSchedule(id string) ([]models.ScheduleEntry, bool) {
	student, ok := m.students[id]
	if !ok {
		return nil, false
	}
	entries := make([]models.ScheduleEntry, 0)
	for _, key := range student.Enrollments {
		entries = appendEntries(entries, m.sections[key])
	}
	models.SortScheduleEntries(entries)
	return entries, true
}

// SectionCodeSchedule lists the slots of every section, across UCs, that
// shares the section code.
func (m *ScheduleManager) SectionCodeSchedule(sectionCode string) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0)
	for key, section := range m.sections {
		if key.SectionCode == sectionCode {
			entries = appendEntries(entries, section)
		}
	}
	models.SortScheduleEntries(entries)
	return entries
}

// UCSchedule lists the slots of every section of the UC.
func (m *ScheduleManager) UCSchedule(ucCode string) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0)
	for key, section := range m.sections {
		if key.UCCode == ucCode {
			entries = appendEntries(entries, section)
		}
	}
	models.SortScheduleEntries(entries)
	return entries
}

func appendEntries(entries []models.ScheduleEntry, section *models.Section) []models.ScheduleEntry {
	if section == nil {
		return entries
	}
	for _, slot := range section.Slots {
		entries = append(entries, models.ScheduleEntry{Key: section.Key, Slot: slot})
	}
	return entries
}

// Submit validates and enqueues a change request. It never touches
// enrollments; the same checks run again when the request is processed.
func (m *ScheduleManager) Submit(studentID, ucCode, targetSection string) (*models.ChangeRequest, error) {
	student, ok := m.students[studentID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownStudent, fmt.Sprintf("student %s not found", studentID))
	}
	current, ok := student.SectionFor(ucCode)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s is not enrolled in %s", studentID, ucCode))
	}
	target := models.SectionKey{UCCode: ucCode, SectionCode: targetSection}
	if _, ok := m.sections[target]; !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownSection, fmt.Sprintf("section %s not found", target))
	}
	req := &models.ChangeRequest{
		ID:            m.newID(),
		StudentID:     studentID,
		UCCode:        ucCode,
		FromSection:   current.SectionCode,
		TargetSection: targetSection,
		Status:        models.ChangeRequestPending,
		SubmittedAt:   m.now(),
	}
	m.queue = append(m.queue, req)
	return cloneRequest(req), nil
}

// ProcessRequests decides every pending request in submission order. A swap
// partner is decided together with the request that matched it and is
// skipped when its own turn comes. Rejections are terminal.
func (m *ScheduleManager) ProcessRequests() models.ProcessReport {
	report := models.ProcessReport{Processed: make([]models.ChangeRequest, 0)}
	for _, req := range m.queue {
		if !req.Pending() {
			continue
		}
		decided := m.decide(req)
		for _, r := range decided {
			report.Processed = append(report.Processed, *cloneRequest(r))
			if r.Status == models.ChangeRequestApproved {
				report.Approved++
			} else {
				report.Rejected++
			}
		}
		if len(decided) == 2 {
			report.Swaps++
		}
	}
	return report
}

// decide resolves one pending request and returns every request it settled.
func (m *ScheduleManager) decide(req *models.ChangeRequest) []*models.ChangeRequest {
	student, ok := m.students[req.StudentID]
	if !ok {
		return m.reject(req, models.ReasonStaleRequest)
	}
	current, enrolled := student.SectionFor(req.UCCode)
	target, exists := m.sections[req.Target()]
	if !enrolled || !exists || current.SectionCode != req.FromSection {
		return m.reject(req, models.ReasonStaleRequest)
	}
	if current.SectionCode == req.TargetSection {
		return m.reject(req, models.ReasonNoChange)
	}
	if m.conflicts(student, req.UCCode, target) {
		return m.reject(req, models.ReasonTimeConflict)
	}

	if target.HasRoom() {
		m.move(student, current, target.Key)
		return m.approve(req, nil)
	}

	partnerReq, partner := m.findSwapPartner(req, current, target)
	if partnerReq == nil {
		return m.reject(req, models.ReasonSectionFull)
	}
	m.move(student, current, target.Key)
	m.move(partner, target.Key, current)
	decided := m.approve(req, &partnerReq.StudentID)
	return append(decided, m.approve(partnerReq, &req.StudentID)...)
}

// findSwapPartner scans pending requests in submission order for a student
// holding the target section who wants the requester's current one. The
// partner's own move must also be free of time conflicts.
func (m *ScheduleManager) findSwapPartner(req *models.ChangeRequest, current models.SectionKey, target *models.Section) (*models.ChangeRequest, *models.Student) {
	leaving, ok := m.sections[current]
	if !ok {
		return nil, nil
	}
	for _, other := range m.queue {
		if other == req || !other.Pending() {
			continue
		}
		if other.UCCode != req.UCCode || other.TargetSection != current.SectionCode {
			continue
		}
		if !target.Contains(other.StudentID) {
			continue
		}
		partner, ok := m.students[other.StudentID]
		if !ok {
			continue
		}
		held, ok := partner.SectionFor(other.UCCode)
		if !ok || held != target.Key || held.SectionCode != other.FromSection {
			continue
		}
		if m.conflicts(partner, other.UCCode, leaving) {
			continue
		}
		return other, partner
	}
	return nil, nil
}

// conflicts reports whether any slot of target overlaps a slot of a section
// the student holds for another UC. The UC being changed is excluded.
func (m *ScheduleManager) conflicts(student *models.Student, ucCode string, target *models.Section) bool {
	for uc, key := range student.Enrollments {
		if uc == ucCode {
			continue
		}
		held, ok := m.sections[key]
		if !ok {
			continue
		}
		if slotsOverlap(target.Slots, held.Slots) {
			return true
		}
	}
	return false
}

func slotsOverlap(a, b []models.TimeSlot) bool {
	for _, t := range a {
		for _, o := range b {
			if t.Overlaps(o) {
				return true
			}
		}
	}
	return false
}

func (m *ScheduleManager) move(student *models.Student, from, to models.SectionKey) {
	delete(m.sections[from].Roster, student.ID)
	m.sections[to].Roster[student.ID] = struct{}{}
	student.Enrollments[to.UCCode] = to
}

func (m *ScheduleManager) approve(req *models.ChangeRequest, partnerID *string) []*models.ChangeRequest {
	now := m.now()
	req.Status = models.ChangeRequestApproved
	req.ProcessedAt = &now
	if partnerID != nil {
		id := *partnerID
		req.SwapPartnerID = &id
	}
	return []*models.ChangeRequest{req}
}

func (m *ScheduleManager) reject(req *models.ChangeRequest, reason models.RejectReason) []*models.ChangeRequest {
	now := m.now()
	req.Status = models.ChangeRequestRejected
	req.Reason = reason
	req.ProcessedAt = &now
	return []*models.ChangeRequest{req}
}

// PendingRequests returns pending requests in submission order.
func (m *ScheduleManager) PendingRequests() []models.ChangeRequest {
	return m.Requests(models.ChangeRequestFilter{Status: []models.ChangeRequestStatus{models.ChangeRequestPending}})
}

// Requests returns every request passing the filter in submission order.
func (m *ScheduleManager) Requests(filter models.ChangeRequestFilter) []models.ChangeRequest {
	result := make([]models.ChangeRequest, 0, len(m.queue))
	for _, req := range m.queue {
		if filter.Matches(req) {
			result = append(result, *cloneRequest(req))
		}
	}
	return result
}

// Request looks up a single request by id.
func (m *ScheduleManager) Request(id string) (*models.ChangeRequest, bool) {
	for _, req := range m.queue {
		if req.ID == id {
			return cloneRequest(req), true
		}
	}
	return nil, false
}

// Snapshot copies the entity set for persistence, students ordered by id and
// sections by key.
func (m *ScheduleManager) Snapshot() models.Snapshot {
	snapshot := models.Snapshot{
		Students: make([]*models.Student, 0, len(m.students)),
		Sections: make([]*models.Section, 0, len(m.sections)),
	}
	for _, student := range m.students {
		snapshot.Students = append(snapshot.Students, student.Clone())
	}
	for _, section := range m.sections {
		snapshot.Sections = append(snapshot.Sections, section.Clone())
	}
	sort.Slice(snapshot.Students, func(i, j int) bool {
		return models.CompareStudentIDs(snapshot.Students[i].ID, snapshot.Students[j].ID) < 0
	})
	sort.Slice(snapshot.Sections, func(i, j int) bool { return snapshot.Sections[i].Key.Less(snapshot.Sections[j].Key) })
	return snapshot
}

// Counts returns the number of students, sections and pending requests.
func (m *ScheduleManager) Counts() (students, sections, pending int) {
	for _, req := range m.queue {
		if req.Pending() {
			pending++
		}
	}
	return len(m.students), len(m.sections), pending
}

// CheckInvariants verifies enrollment consistency in both directions,
// capacity bounds and that no student holds two overlapping sections.
func (m *ScheduleManager) CheckInvariants() error {
	var errs []error
	for _, student := range m.students {
		for uc, key := range student.Enrollments {
			section, ok := m.sections[key]
			switch {
			case key.UCCode != uc:
				errs = append(errs, fmt.Errorf("student %s maps uc %s to %s", student.ID, uc, key))
			case !ok:
				errs = append(errs, fmt.Errorf("student %s enrolled in missing section %s", student.ID, key))
			case !section.Contains(student.ID):
				errs = append(errs, fmt.Errorf("section %s roster misses student %s", key, student.ID))
			}
		}
		codes := student.UCCodes()
		for i := 0; i < len(codes); i++ {
			for j := i + 1; j < len(codes); j++ {
				a, okA := m.sections[student.Enrollments[codes[i]]]
				b, okB := m.sections[student.Enrollments[codes[j]]]
				if okA && okB && slotsOverlap(a.Slots, b.Slots) {
					errs = append(errs, fmt.Errorf("student %s double-booked in %s and %s", student.ID, a.Key, b.Key))
				}
			}
		}
	}
	for key, section := range m.sections {
		if section.Size() > section.Capacity {
			errs = append(errs, fmt.Errorf("section %s over capacity: %d > %d", key, section.Size(), section.Capacity))
		}
		for id := range section.Roster {
			student, ok := m.students[id]
			if !ok {
				errs = append(errs, fmt.Errorf("section %s lists unknown student %s", key, id))
				continue
			}
			if held, ok := student.SectionFor(key.UCCode); !ok || held != key {
				errs = append(errs, fmt.Errorf("student %s on roster of %s but holds %v", id, key, held))
			}
		}
	}
	return errors.Join(errs...)
}

func cloneRequest(req *models.ChangeRequest) *models.ChangeRequest {
	clone := *req
	if req.SwapPartnerID != nil {
		id := *req.SwapPartnerID
		clone.SwapPartnerID = &id
	}
	if req.ProcessedAt != nil {
		ts := *req.ProcessedAt
		clone.ProcessedAt = &ts
	}
	return &clone
}
