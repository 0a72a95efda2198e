package models

import "strings"

// SectionKey identifies a section of a curricular unit.
type SectionKey struct {
	UCCode      string `db:"uc_code" json:"uc_code"`
	SectionCode string `db:"section_code" json:"section_code"`
}

// Compare orders keys by UC code, then section code.
func (k SectionKey) Compare(o SectionKey) int {
	if c := strings.Compare(k.UCCode, o.UCCode); c != 0 {
		return c
	}
	return strings.Compare(k.SectionCode, o.SectionCode)
}

// Less reports whether k sorts before o.
func (k SectionKey) Less(o SectionKey) bool {
	return k.Compare(o) < 0
}

// String renders the key as UC/SECTION.
func (k SectionKey) String() string {
	return k.UCCode + "/" + k.SectionCode
}

// Section is a scheduled offering of a UC with its roster and weekly slots.
type Section struct {
	Key      SectionKey          `json:"key"`
	Capacity int                 `json:"capacity"`
	Roster   map[string]struct{} `json:"-"`
	Slots    []TimeSlot          `json:"slots"`
}

// NewSection returns an empty section.
func NewSection(key SectionKey, capacity int, slots ...TimeSlot) *Section {
	return &Section{Key: key, Capacity: capacity, Roster: make(map[string]struct{}), Slots: slots}
}

// Size returns the number of enrolled students.
func (s *Section) Size() int {
	return len(s.Roster)
}

// HasRoom reports whether another student fits.
func (s *Section) HasRoom() bool {
	return len(s.Roster) < s.Capacity
}

// Contains reports whether the student is on the roster.
func (s *Section) Contains(studentID string) bool {
	_, ok := s.Roster[studentID]
	return ok
}

// Clone returns a deep copy.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	clone := &Section{Key: s.Key, Capacity: s.Capacity, Roster: make(map[string]struct{}, len(s.Roster))}
	for id := range s.Roster {
		clone.Roster[id] = struct{}{}
	}
	clone.Slots = append([]TimeSlot(nil), s.Slots...)
	return clone
}
