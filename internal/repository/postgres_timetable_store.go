package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uc-timetable-api/internal/models"
)

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

type studentRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type sectionRow struct {
	UCCode      string `db:"uc_code"`
	SectionCode string `db:"section_code"`
	Capacity    int    `db:"capacity"`
}

type slotRow struct {
	UCCode      string  `db:"uc_code"`
	SectionCode string  `db:"section_code"`
	Weekday     int     `db:"weekday"`
	Begin       float64 `db:"begin_time"`
	Duration    float64 `db:"duration"`
	Kind        string  `db:"kind"`
}

type enrollmentRow struct {
	StudentID   string `db:"student_id"`
	UCCode      string `db:"uc_code"`
	SectionCode string `db:"section_code"`
}

// PostgresTimetableStore reads and writes the timetable in PostgreSQL.
type PostgresTimetableStore struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewPostgresTimetableStore constructs the store. metrics may be nil.
func NewPostgresTimetableStore(db *sqlx.DB, metrics queryObserver) *PostgresTimetableStore {
	return &PostgresTimetableStore{db: db, metrics: metrics}
}

// LoadAll reads students, sections, slots and enrollments.
func (r *PostgresTimetableStore) LoadAll(ctx context.Context) (models.Snapshot, error) {
	start := time.Now()
	defer r.observe("load_all", start)

	var students []studentRow
	if err := r.db.SelectContext(ctx, &students, `SELECT id, name FROM students ORDER BY id`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load students: %w", err)
	}
	var sections []sectionRow
	if err := r.db.SelectContext(ctx, &sections, `SELECT uc_code, section_code, capacity FROM sections ORDER BY uc_code, section_code`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load sections: %w", err)
	}
	var slots []slotRow
	if err := r.db.SelectContext(ctx, &slots, `SELECT uc_code, section_code, weekday, begin_time, duration, kind FROM section_slots ORDER BY uc_code, section_code, weekday, begin_time`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load section slots: %w", err)
	}
	var enrollments []enrollmentRow
	if err := r.db.SelectContext(ctx, &enrollments, `SELECT student_id, uc_code, section_code FROM enrollments ORDER BY student_id, uc_code`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load enrollments: %w", err)
	}

	sectionIndex := make(map[models.SectionKey]*models.Section, len(sections))
	snapshot := models.Snapshot{
		Students: make([]*models.Student, 0, len(students)),
		Sections: make([]*models.Section, 0, len(sections)),
	}
	for _, row := range sections {
		section := models.NewSection(models.SectionKey{UCCode: row.UCCode, SectionCode: row.SectionCode}, row.Capacity)
		sectionIndex[section.Key] = section
		snapshot.Sections = append(snapshot.Sections, section)
	}
	for _, row := range slots {
		key := models.SectionKey{UCCode: row.UCCode, SectionCode: row.SectionCode}
		section, ok := sectionIndex[key]
		if !ok {
			return models.Snapshot{}, fmt.Errorf("slot references unknown section %s", key)
		}
		section.Slots = append(section.Slots, models.TimeSlot{
			Weekday:  models.Weekday(row.Weekday),
			Begin:    row.Begin,
			Duration: row.Duration,
			Kind:     row.Kind,
		})
	}

	studentIndex := make(map[string]*models.Student, len(students))
	for _, row := range students {
		student := models.NewStudent(row.ID, row.Name)
		studentIndex[row.ID] = student
		snapshot.Students = append(snapshot.Students, student)
	}
	for _, row := range enrollments {
		student, ok := studentIndex[row.StudentID]
		if !ok {
			return models.Snapshot{}, fmt.Errorf("enrollment references unknown student %s", row.StudentID)
		}
		student.Enrollments[row.UCCode] = models.SectionKey{UCCode: row.UCCode, SectionCode: row.SectionCode}
	}
	return snapshot, nil
}

// SaveAll replaces every enrollment with the snapshot's in one transaction.
// Students, sections and slots are reference data and left untouched.
func (r *PostgresTimetableStore) SaveAll(ctx context.Context, snapshot models.Snapshot) (err error) {
	start := time.Now()
	defer r.observe("save_all", start)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM enrollments`); err != nil {
		return fmt.Errorf("clear enrollments: %w", err)
	}
	const insert = `INSERT INTO enrollments (student_id, uc_code, section_code) VALUES ($1, $2, $3)`
	for _, student := range snapshot.Students {
		for _, uc := range student.UCCodes() {
			key := student.Enrollments[uc]
			if _, err = tx.ExecContext(ctx, insert, student.ID, key.UCCode, key.SectionCode); err != nil {
				return fmt.Errorf("insert enrollment %s %s: %w", student.ID, key, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save timetable: %w", err)
	}
	return nil
}

func (r *PostgresTimetableStore) observe(label string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
}
