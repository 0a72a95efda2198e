package models

import "time"

// ChangeRequestStatus captures workflow states for class-change requests.
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "PENDING"
	ChangeRequestApproved ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected ChangeRequestStatus = "REJECTED"
)

// RejectReason names why a change request was refused.
type RejectReason string

const (
	ReasonStaleRequest RejectReason = "STALE_REQUEST"
	ReasonNoChange     RejectReason = "NO_CHANGE"
	ReasonTimeConflict RejectReason = "TIME_CONFLICT"
	ReasonSectionFull  RejectReason = "SECTION_FULL"
)

// ChangeRequest asks to move a student to another section of the same UC.
// Once Status leaves PENDING the request is never modified again.
type ChangeRequest struct {
	ID            string              `json:"id"`
	StudentID     string              `json:"student_id"`
	UCCode        string              `json:"uc_code"`
	FromSection   string              `json:"from_section"`
	TargetSection string              `json:"target_section"`
	Status        ChangeRequestStatus `json:"status"`
	Reason        RejectReason        `json:"reason,omitempty"`
	SwapPartnerID *string             `json:"swap_partner_id,omitempty"`
	SubmittedAt   time.Time           `json:"submitted_at"`
	ProcessedAt   *time.Time          `json:"processed_at,omitempty"`
}

// Target returns the key of the requested section.
func (r *ChangeRequest) Target() SectionKey {
	return SectionKey{UCCode: r.UCCode, SectionCode: r.TargetSection}
}

// Pending reports whether the request still awaits processing.
func (r *ChangeRequest) Pending() bool {
	return r.Status == ChangeRequestPending
}

// ChangeRequestFilter constrains request listings.
type ChangeRequestFilter struct {
	Status    []ChangeRequestStatus
	StudentID string
	UCCode    string
}

// Matches reports whether the request passes the filter.
func (f ChangeRequestFilter) Matches(r *ChangeRequest) bool {
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	if f.UCCode != "" && r.UCCode != f.UCCode {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, status := range f.Status {
		if r.Status == status {
			return true
		}
	}
	return false
}

// ProcessReport summarises one processing pass.
type ProcessReport struct {
	Processed []ChangeRequest `json:"processed"`
	Approved  int             `json:"approved"`
	Rejected  int             `json:"rejected"`
	Swaps     int             `json:"swaps"`
}
