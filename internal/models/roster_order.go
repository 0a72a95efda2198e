package models

import (
	"fmt"
	"sort"
	"strings"
)

// RosterOrder is the display order of a roster listing.
type RosterOrder string

const (
	OrderNameAsc  RosterOrder = "name-asc"
	OrderNameDesc RosterOrder = "name-desc"
	OrderIDAsc    RosterOrder = "id-asc"
	OrderIDDesc   RosterOrder = "id-desc"
)

// DefaultRosterOrder is used when the caller does not pick one.
const DefaultRosterOrder = OrderNameAsc

// ParseRosterOrder validates an order token. An empty token yields the default.
func ParseRosterOrder(raw string) (RosterOrder, error) {
	switch order := RosterOrder(strings.ToLower(strings.TrimSpace(raw))); order {
	case "":
		return DefaultRosterOrder, nil
	case OrderNameAsc, OrderNameDesc, OrderIDAsc, OrderIDDesc:
		return order, nil
	default:
		return "", fmt.Errorf("unsupported roster order %q", raw)
	}
}

// SortStudents orders students in place. Ties are broken by id.
func SortStudents(students []Student, order RosterOrder) {
	byName := func(a, b Student) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return CompareStudentIDs(a.ID, b.ID)
	}
	byID := func(a, b Student) int {
		return CompareStudentIDs(a.ID, b.ID)
	}
	cmp := byName
	desc := false
	switch order {
	case OrderNameDesc:
		desc = true
	case OrderIDAsc:
		cmp = byID
	case OrderIDDesc:
		cmp = byID
		desc = true
	}
	sort.SliceStable(students, func(i, j int) bool {
		c := cmp(students[i], students[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// CompareStudentIDs orders institutional numbers before any other id. Two
// all-digit ids compare numerically, other pairs compare lexically. Equal
// numbers written with different leading zeros fall back to lexical order so
// the result is a total order.
func CompareStudentIDs(a, b string) int {
	digitsA, digitsB := allDigits(a), allDigits(b)
	switch {
	case digitsA && !digitsB:
		return -1
	case !digitsA && digitsB:
		return 1
	case digitsA && digitsB:
		na, nb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(na) != len(nb) {
			if len(na) < len(nb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(na, nb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
