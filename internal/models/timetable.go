package models

import "sort"

// ScheduleEntry is one slot of a section in a schedule listing.
type ScheduleEntry struct {
	Key  SectionKey `json:"key"`
	Slot TimeSlot   `json:"slot"`
}

// SortScheduleEntries orders entries by weekday, begin time, then key.
func SortScheduleEntries(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Slot.Weekday != b.Slot.Weekday {
			return a.Slot.Weekday < b.Slot.Weekday
		}
		if a.Slot.Begin != b.Slot.Begin {
			return a.Slot.Begin < b.Slot.Begin
		}
		return a.Key.Less(b.Key)
	})
}

// Snapshot is the full entity set exchanged with persistence collaborators.
type Snapshot struct {
	Students []*Student
	Sections []*Section
}
