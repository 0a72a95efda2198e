package models

import "time"

// ExportKind names the dataset an export renders.
type ExportKind string

const (
	ExportKindRoster          ExportKind = "roster"
	ExportKindStudentSchedule ExportKind = "student-schedule"
	ExportKindUCStudents      ExportKind = "uc-students"
)

// ExportFormat is the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus tracks an export job through the worker queue.
type ExportStatus string

const (
	ExportStatusQueued   ExportStatus = "QUEUED"
	ExportStatusRunning  ExportStatus = "RUNNING"
	ExportStatusFinished ExportStatus = "FINISHED"
	ExportStatusFailed   ExportStatus = "FAILED"
)

// ExportJob is a queued roster or schedule export.
type ExportJob struct {
	ID          string       `json:"id"`
	Kind        ExportKind   `json:"kind"`
	Format      ExportFormat `json:"format"`
	UCCode      string       `json:"uc_code,omitempty"`
	SectionCode string       `json:"section_code,omitempty"`
	StudentID   string       `json:"student_id,omitempty"`
	Order       RosterOrder  `json:"order,omitempty"`
	Status      ExportStatus `json:"status"`
	RequestedBy string       `json:"requested_by"`
	URL         string       `json:"url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	File        string       `json:"-"`
}
