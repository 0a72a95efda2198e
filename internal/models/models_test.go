package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	cases := map[string]Weekday{
		"Monday":   Monday,
		"wed":      Wednesday,
		" Friday ": Friday,
		"SUN":      Sunday,
	}
	for raw, want := range cases {
		got, err := ParseWeekday(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "Someday", "mo"} {
		_, err := ParseWeekday(raw)
		assert.Error(t, err, raw)
	}
}

func TestWeekdayTextRoundTrip(t *testing.T) {
	slot := TimeSlot{Weekday: Thursday, Begin: 9.5, Duration: 1.5, Kind: "TP"}
	raw, err := json.Marshal(slot)
	require.NoError(t, err)
	assert.JSONEq(t, `{"weekday":"Thursday","begin":9.5,"duration":1.5,"kind":"TP"}`, string(raw))

	var decoded TimeSlot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, slot, decoded)

	_, err = Weekday(0).MarshalText()
	assert.Error(t, err)
	assert.Error(t, json.Unmarshal([]byte(`{"weekday":"Caturday"}`), &decoded))
}

func TestTimeSlotValidate(t *testing.T) {
	cases := []struct {
		name  string
		slot  TimeSlot
		valid bool
	}{
		{"regular", TimeSlot{Weekday: Monday, Begin: 8, Duration: 2}, true},
		{"ends at midnight", TimeSlot{Weekday: Monday, Begin: 22, Duration: 2}, true},
		{"starts at midnight", TimeSlot{Weekday: Monday, Begin: 0, Duration: 0.5}, true},
		{"begin at 24", TimeSlot{Weekday: Monday, Begin: 24, Duration: 1}, false},
		{"negative begin", TimeSlot{Weekday: Monday, Begin: -1, Duration: 1}, false},
		{"past midnight", TimeSlot{Weekday: Monday, Begin: 23, Duration: 1.5}, false},
		{"zero duration", TimeSlot{Weekday: Monday, Begin: 8, Duration: 0}, false},
		{"bad weekday", TimeSlot{Weekday: 8, Begin: 8, Duration: 1}, false},
		{"nan begin and duration", TimeSlot{Weekday: Monday, Begin: math.NaN(), Duration: math.NaN()}, false},
		{"nan begin", TimeSlot{Weekday: Monday, Begin: math.NaN(), Duration: 1}, false},
		{"nan duration", TimeSlot{Weekday: Monday, Begin: 8, Duration: math.NaN()}, false},
		{"infinite duration", TimeSlot{Weekday: Monday, Begin: 8, Duration: math.Inf(1)}, false},
		{"negative infinite begin", TimeSlot{Weekday: Monday, Begin: math.Inf(-1), Duration: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.slot.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTimeSlotOverlapsIsHalfOpen(t *testing.T) {
	morning := TimeSlot{Weekday: Monday, Begin: 9, Duration: 2}
	assert.True(t, morning.Overlaps(TimeSlot{Weekday: Monday, Begin: 10.5, Duration: 1}))
	assert.False(t, morning.Overlaps(TimeSlot{Weekday: Monday, Begin: 11, Duration: 1}))
	assert.False(t, morning.Overlaps(TimeSlot{Weekday: Tuesday, Begin: 9, Duration: 2}))
	assert.Equal(t, "Monday 09:00-11:00 ()", morning.String())
}

func TestParseRosterOrder(t *testing.T) {
	order, err := ParseRosterOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderNameAsc, order)

	order, err = ParseRosterOrder(" ID-DESC ")
	require.NoError(t, err)
	assert.Equal(t, OrderIDDesc, order)

	_, err = ParseRosterOrder("random")
	assert.Error(t, err)
}

func TestCompareStudentIDsIsTotal(t *testing.T) {
	ids := []string{"10", "9", "1a", "007", "7", "b", "A"}
	for _, a := range ids {
		assert.Zero(t, CompareStudentIDs(a, a), a)
		for _, b := range ids {
			assert.Equal(t, -CompareStudentIDs(b, a), CompareStudentIDs(a, b), "%s vs %s", a, b)
			for _, c := range ids {
				if CompareStudentIDs(a, b) < 0 && CompareStudentIDs(b, c) < 0 {
					assert.Negative(t, CompareStudentIDs(a, c), "%s < %s < %s", a, b, c)
				}
			}
		}
	}
}

func TestSortStudentsByIDIndependentOfInputOrder(t *testing.T) {
	want := []string{"007", "7", "9", "10", "1a", "A", "b"}
	inputs := [][]string{
		{"10", "9", "1a", "007", "7", "b", "A"},
		{"1a", "10", "9", "A", "b", "7", "007"},
		{"b", "A", "1a", "10", "9", "7", "007"},
		{"007", "7", "9", "10", "1a", "A", "b"},
	}
	for _, input := range inputs {
		students := make([]Student, 0, len(input))
		for _, id := range input {
			students = append(students, Student{ID: id, Name: "Same"})
		}

		SortStudents(students, OrderIDAsc)
		assert.Equal(t, want, studentIDs(students), "id-asc from %v", input)

		SortStudents(students, OrderIDDesc)
		assert.Equal(t, reversed(want), studentIDs(students), "id-desc from %v", input)

		SortStudents(students, OrderNameAsc)
		assert.Equal(t, want, studentIDs(students), "name tie from %v", input)
	}
}

func studentIDs(students []Student) []string {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	return ids
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
