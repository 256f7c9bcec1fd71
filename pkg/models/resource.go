package models

import (
	"fmt"
	"regexp"
	"time"
)

// TeamKind distinguishes the three resource pool types.
type TeamKind string

const (
	TeamKindMechanic TeamKind = "mechanic"
	TeamKindQuality  TeamKind = "quality"
	TeamKindCustomer TeamKind = "customer"
)

// ShiftDefinition is a daily working window. Start and End are minutes from
// midnight; a shift with End <= Start wraps past midnight into the next
// calendar day.
type ShiftDefinition struct {
	Name  string
	Start int
	End   int
}

// Wraps reports whether the shift crosses midnight.
func (s ShiftDefinition) Wraps() bool {
	return s.End <= s.Start
}

// Contains reports whether the minute-of-day falls inside the shift window.
func (s ShiftDefinition) Contains(minuteOfDay int) bool {
	if s.Wraps() {
		return minuteOfDay >= s.Start || minuteOfDay < s.End
	}
	return minuteOfDay >= s.Start && minuteOfDay < s.End
}

// DefaultShifts returns the standard three-shift pattern:
// 06:00-14:30, 14:30-23:00 and the wrapping 23:00-06:00 night shift.
func DefaultShifts() []ShiftDefinition {
	return []ShiftDefinition{
		{Name: "1st Shift", Start: 6 * 60, End: 14*60 + 30},
		{Name: "2nd Shift", Start: 14*60 + 30, End: 23 * 60},
		{Name: "3rd Shift", Start: 23 * 60, End: 6 * 60},
	}
}

// Team is a resource pool with a fixed headcount and a set of working shifts.
type Team struct {
	Name     string
	Kind     TeamKind
	Capacity int
	Shifts   []string
}

// CapacityConfig maps team name to headcount for one scheduling run. Values
// are never mutated by the engine; optimizers clone before perturbing.
type CapacityConfig map[string]int

// Clone returns an independent copy.
func (c CapacityConfig) Clone() CapacityConfig {
	out := make(CapacityConfig, len(c))
	for team, n := range c {
		out[team] = n
	}
	return out
}

// Total returns the summed headcount across all teams.
func (c CapacityConfig) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

var teamNumberPattern = regexp.MustCompile(`(\d+)\s*$`)

// MapInspectionTeam derives the inspection pool paired with a mechanic team
// by its trailing number: "Mechanic Team 3" selects "Quality Team 3" or
// "Customer Team 3". Returns false when the mechanic team carries no number.
func MapInspectionTeam(mechanicTeam string, kind TeamKind) (string, bool) {
	m := teamNumberPattern.FindStringSubmatch(mechanicTeam)
	if m == nil {
		return "", false
	}
	switch kind {
	case TeamKindQuality:
		return fmt.Sprintf("Quality Team %s", m[1]), true
	case TeamKindCustomer:
		return fmt.Sprintf("Customer Team %s", m[1]), true
	default:
		return "", false
	}
}

// Product is a deliverable unit with its own task range and deadline.
type Product struct {
	Name         string
	DeliveryDate time.Time

	// FirstTaskID and LastTaskID bound the baseline task ids still to be
	// performed for this unit.
	FirstTaskID int
	LastTaskID  int
}

// InRange reports whether a baseline task id belongs to this product's
// remaining work.
func (p Product) InRange(baseID int) bool {
	return baseID >= p.FirstTaskID && baseID <= p.LastTaskID
}
