package dto

import (
	"github.com/noah-isme/uc-timetable-api/internal/models"
)

// SubmitChangeRequest is the payload accepted by POST /change-requests.
type SubmitChangeRequest struct {
	StudentID     string `json:"student_id" validate:"required,max=64"`
	UCCode        string `json:"uc_code" validate:"required,max=32"`
	TargetSection string `json:"target_section" validate:"required,max=32"`
}

// StudentSummary is the roster line shown for a student.
type StudentSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StudentView exposes a student with its enrollments ordered by UC code.
type StudentView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Enrollments []models.SectionKey `json:"enrollments"`
}

// SectionView exposes a section without its roster.
type SectionView struct {
	UCCode      string            `json:"uc_code"`
	SectionCode string            `json:"section_code"`
	Capacity    int               `json:"capacity"`
	Enrolled    int               `json:"enrolled"`
	Vacancies   int               `json:"vacancies"`
	Slots       []models.TimeSlot `json:"slots"`
}

// ScheduleEntryView is one slot of a schedule listing.
type ScheduleEntryView struct {
	UCCode      string         `json:"uc_code"`
	SectionCode string         `json:"section_code"`
	Weekday     models.Weekday `json:"weekday"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Kind        string         `json:"kind,omitempty"`
}

// ProcessReportResponse summarises one processing pass.
type ProcessReportResponse struct {
	Approved  int                    `json:"approved"`
	Rejected  int                    `json:"rejected"`
	Swaps     int                    `json:"swaps"`
	Remaining int                    `json:"remaining"`
	Decisions []models.ChangeRequest `json:"decisions"`
}

// ExportRequest queues a roster or schedule export.
type ExportRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=roster student-schedule uc-students"`
	Format      string `json:"format" validate:"required,oneof=csv pdf"`
	UCCode      string `json:"uc_code" validate:"required_if=Kind roster,required_if=Kind uc-students"`
	SectionCode string `json:"section_code" validate:"required_if=Kind roster"`
	StudentID   string `json:"student_id" validate:"required_if=Kind student-schedule"`
	Order       string `json:"order" validate:"omitempty,oneof=name-asc name-desc id-asc id-desc"`
}

// ExportResponse describes a queued export and its download link.
type ExportResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Kind      string `json:"kind"`
	Format    string `json:"format"`
	URL       string `json:"url,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewStudentView projects a model student.
func NewStudentView(student *models.Student) StudentView {
	view := StudentView{ID: student.ID, Name: student.Name}
	for _, uc := range student.UCCodes() {
		view.Enrollments = append(view.Enrollments, student.Enrollments[uc])
	}
	if view.Enrollments == nil {
		view.Enrollments = []models.SectionKey{}
	}
	return view
}

// NewSectionView projects a model section.
func NewSectionView(section *models.Section) SectionView {
	slots := append([]models.TimeSlot(nil), section.Slots...)
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	return SectionView{
		UCCode:      section.Key.UCCode,
		SectionCode: section.Key.SectionCode,
		Capacity:    section.Capacity,
		Enrolled:    section.Size(),
		Vacancies:   section.Capacity - section.Size(),
		Slots:       slots,
	}
}

// NewStudentSummaries projects an ordered roster.
func NewStudentSummaries(students []models.Student) []StudentSummary {
	out := make([]StudentSummary, 0, len(students))
	for _, s := range students {
		out = append(out, StudentSummary{ID: s.ID, Name: s.Name})
	}
	return out
}

// NewScheduleEntryViews projects a sorted schedule.
func NewScheduleEntryViews(entries []models.ScheduleEntry) []ScheduleEntryView {
	out := make([]ScheduleEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, ScheduleEntryView{
			UCCode:      e.Key.UCCode,
			SectionCode: e.Key.SectionCode,
			Weekday:     e.Slot.Weekday,
			Start:       models.Clock(e.Slot.Begin),
			End:         models.Clock(e.Slot.End()),
			Kind:        e.Slot.Kind,
		})
	}
	return out
}
