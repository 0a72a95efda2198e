package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/noah-isme/uc-timetable-api/internal/models"
)

// File names read from the CSV data directory.
const (
	SectionsFile    = "classes_per_uc.csv"
	SlotsFile       = "classes.csv"
	EnrollmentsFile = "students_classes.csv"
)

var enrollmentsHeader = []string{"StudentCode", "StudentName", "UcCode", "ClassCode"}

// CSVTimetableStore keeps the timetable in three CSV files:
//
//	classes_per_uc.csv    UcCode,ClassCode[,Capacity]
//	classes.csv           ClassCode,UcCode,Weekday,StartHour,Duration,Type
//	students_classes.csv  StudentCode,StudentName,UcCode,ClassCode
//
// Each file starts with a header row.
type CSVTimetableStore struct {
	dir             string
	defaultCapacity int
	mu              sync.Mutex
}

// NewCSVTimetableStore constructs a store rooted at dir. defaultCapacity is
// used for sections whose row carries no capacity column.
func NewCSVTimetableStore(dir string, defaultCapacity int) *CSVTimetableStore {
	return &CSVTimetableStore{dir: dir, defaultCapacity: defaultCapacity}
}

// LoadAll parses the three files into a snapshot.
func (s *CSVTimetableStore) LoadAll(ctx context.Context) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := models.Snapshot{}
	sections := make(map[models.SectionKey]*models.Section)

	sectionRows, err := s.read(SectionsFile)
	if err != nil {
		return snapshot, err
	}
	for i, row := range sectionRows {
		if len(row) < 2 {
			return snapshot, rowError(SectionsFile, i, "expected UcCode,ClassCode[,Capacity]")
		}
		key := models.SectionKey{UCCode: row[0], SectionCode: row[1]}
		capacity := s.defaultCapacity
		if len(row) > 2 && row[2] != "" {
			capacity, err = strconv.Atoi(row[2])
			if err != nil {
				return snapshot, rowError(SectionsFile, i, fmt.Sprintf("invalid capacity %q", row[2]))
			}
		}
		if _, dup := sections[key]; dup {
			return snapshot, rowError(SectionsFile, i, fmt.Sprintf("duplicate section %s", key))
		}
		section := models.NewSection(key, capacity)
		sections[key] = section
		snapshot.Sections = append(snapshot.Sections, section)
	}

	if err := ctx.Err(); err != nil {
		return snapshot, err
	}

	slotRows, err := s.read(SlotsFile)
	if err != nil {
		return snapshot, err
	}
	for i, row := range slotRows {
		if len(row) < 6 {
			return snapshot, rowError(SlotsFile, i, "expected ClassCode,UcCode,Weekday,StartHour,Duration,Type")
		}
		key := models.SectionKey{UCCode: row[1], SectionCode: row[0]}
		section, ok := sections[key]
		if !ok {
			return snapshot, rowError(SlotsFile, i, fmt.Sprintf("unknown section %s", key))
		}
		slot, err := parseSlot(row[2], row[3], row[4], row[5])
		if err != nil {
			return snapshot, rowError(SlotsFile, i, err.Error())
		}
		section.Slots = append(section.Slots, slot)
	}

	if err := ctx.Err(); err != nil {
		return snapshot, err
	}

	enrollmentRows, err := s.read(EnrollmentsFile)
	if err != nil {
		return snapshot, err
	}
	students := make(map[string]*models.Student)
	for i, row := range enrollmentRows {
		if len(row) < 4 {
			return snapshot, rowError(EnrollmentsFile, i, "expected StudentCode,StudentName,UcCode,ClassCode")
		}
		student, ok := students[row[0]]
		if !ok {
			student = models.NewStudent(row[0], row[1])
			students[row[0]] = student
			snapshot.Students = append(snapshot.Students, student)
		}
		if existing, dup := student.Enrollments[row[2]]; dup {
			return snapshot, rowError(EnrollmentsFile, i, fmt.Sprintf("student %s already in %s", student.ID, existing))
		}
		student.Enrollments[row[2]] = models.SectionKey{UCCode: row[2], SectionCode: row[3]}
	}
	return snapshot, nil
}

// SaveAll rewrites students_classes.csv from the snapshot. The file is
// replaced atomically.
func (s *CSVTimetableStore) SaveAll(ctx context.Context, snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	students := append([]*models.Student(nil), snapshot.Students...)
	sort.Slice(students, func(i, j int) bool {
		return models.CompareStudentIDs(students[i].ID, students[j].ID) < 0
	})

	tmp, err := os.CreateTemp(s.dir, EnrollmentsFile+".*")
	if err != nil {
		return fmt.Errorf("create temp enrollments file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	writer := csv.NewWriter(tmp)
	if err := writer.Write(enrollmentsHeader); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write enrollments header: %w", err)
	}
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			tmp.Close() //nolint:errcheck
			return err
		}
		for _, uc := range student.UCCodes() {
			key := student.Enrollments[uc]
			if err := writer.Write([]string{student.ID, student.Name, key.UCCode, key.SectionCode}); err != nil {
				tmp.Close() //nolint:errcheck
				return fmt.Errorf("write enrollment row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("flush enrollments: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close enrollments file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, EnrollmentsFile)); err != nil {
		return fmt.Errorf("replace enrollments file: %w", err)
	}
	return nil
}

// read returns the data rows of a file with the header removed and every
// field trimmed.
func (s *CSVTimetableStore) read(name string) ([][]string, error) {
	file, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close() //nolint:errcheck

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if header {
			header = false
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func parseSlot(weekday, start, duration, kind string) (models.TimeSlot, error) {
	day, err := models.ParseWeekday(weekday)
	if err != nil {
		return models.TimeSlot{}, err
	}
	begin, err := strconv.ParseFloat(start, 64)
	if err != nil {
		return models.TimeSlot{}, fmt.Errorf("invalid start hour %q", start)
	}
	length, err := strconv.ParseFloat(duration, 64)
	if err != nil {
		return models.TimeSlot{}, fmt.Errorf("invalid duration %q", duration)
	}
	slot := models.TimeSlot{Weekday: day, Begin: begin, Duration: length, Kind: kind}
	if err := slot.Validate(); err != nil {
		return models.TimeSlot{}, err
	}
	return slot, nil
}

// rowError reports a 1-based line number counting the header.
func rowError(file string, index int, msg string) error {
	return fmt.Errorf("%s line %d: %s", file, index+2, msg)
}
