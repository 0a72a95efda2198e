package models

import (
	"fmt"
	"math"
	"strings"
)

// Weekday identifies a day of the teaching week. Monday is 1, Sunday is 7.
type Weekday int

// Supported weekdays.
const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// String returns the English day name.
func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// Valid reports whether d is one of Monday..Sunday.
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

// ParseWeekday accepts full English day names and three-letter abbreviations.
func ParseWeekday(raw string) (Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("weekday is required")
	}
	for i := Monday; i <= Sunday; i++ {
		name := strings.ToLower(weekdayNames[i])
		if value == name || value == name[:3] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}

// MarshalText encodes the weekday as its name.
func (d Weekday) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes a weekday name.
func (d *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeSlot is a weekly time interval of a section. Begin and Duration are in
// hours; fractional values are allowed (9.5 is 09:30).
type TimeSlot struct {
	Weekday  Weekday `db:"weekday" json:"weekday"`
	Begin    float64 `db:"begin_time" json:"begin"`
	Duration float64 `db:"duration" json:"duration"`
	Kind     string  `db:"kind" json:"kind"`
}

// End returns Begin + Duration.
func (t TimeSlot) End() float64 {
	return t.Begin + t.Duration
}

// Validate checks the slot fits inside a single day.
func (t TimeSlot) Validate() error {
	if !t.Weekday.Valid() {
		return fmt.Errorf("invalid weekday %d", int(t.Weekday))
	}
	if !(t.Duration > 0) || math.IsInf(t.Duration, 0) {
		return fmt.Errorf("duration must be positive")
	}
	if !(t.Begin >= 0 && t.Begin < 24) {
		return fmt.Errorf("begin time %.2f outside of day", t.Begin)
	}
	if !(t.End() <= 24) {
		return fmt.Errorf("slot ends after midnight")
	}
	return nil
}

// Overlaps reports whether both slots fall on the same weekday and their
// [begin, end) ranges intersect.
func (t TimeSlot) Overlaps(o TimeSlot) bool {
	if t.Weekday != o.Weekday {
		return false
	}
	return t.Begin < o.End() && o.Begin < t.End()
}

// Clock renders an hour value as HH:MM.
func Clock(hours float64) string {
	minutes := int(hours*60 + 0.5)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// String renders the slot as "Monday 09:00-10:30 (T)".
func (t TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s (%s)", t.Weekday, Clock(t.Begin), Clock(t.End()), t.Kind)
}
