package models

import "sort"

// Student is identified by an institutional number and holds one section per
// enrolled curricular unit.
type Student struct {
	ID          string                `db:"id" json:"id"`
	Name        string                `db:"name" json:"name"`
	Enrollments map[string]SectionKey `json:"enrollments"`
}

// NewStudent returns a student without enrollments.
func NewStudent(id, name string) *Student {
	return &Student{ID: id, Name: name, Enrollments: make(map[string]SectionKey)}
}

// SectionFor returns the section held for the UC.
func (s *Student) SectionFor(ucCode string) (SectionKey, bool) {
	key, ok := s.Enrollments[ucCode]
	return key, ok
}

// UCCodes lists enrolled UC codes in order.
func (s *Student) UCCodes() []string {
	codes := make([]string, 0, len(s.Enrollments))
	for code := range s.Enrollments {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Clone returns a deep copy.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	clone := &Student{ID: s.ID, Name: s.Name, Enrollments: make(map[string]SectionKey, len(s.Enrollments))}
	for uc, key := range s.Enrollments {
		clone.Enrollments[uc] = key
	}
	return clone
}
