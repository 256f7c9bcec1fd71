// Package allocator finds the next feasible working window for a task,
// honoring shifts, weekends, per-product holidays and team capacity.
package allocator

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

const (
	// DefaultMaxIterations bounds how many candidate start instants one
	// allocation may probe before giving up.
	DefaultMaxIterations = 5000

	// calendarScanLimit bounds boundary jumps while searching for the next
	// working minute. Three boundaries per day keeps this above a year.
	calendarScanLimit = 4000
)

// workingDayOffset shifts an instant back so minutes served by the wrapping
// night shift attribute to the day the shift started on.
const workingDayOffset = 6 * time.Hour

// ExhaustedError is returned when no feasible slot was found within the
// iteration bound.
type ExhaustedError struct {
	Team       string
	Iterations int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("allocation search exhausted after %d iterations for team %q", e.Iterations, e.Team)
}

// Request describes one slot search.
type Request struct {
	Team            string
	Product         string
	DurationMinutes int
	Headcount       int
	Capacity        int
	Earliest        time.Time
}

// Allocation is a feasible placement. Minutes holds every occupied working
// minute (unix minutes) so the ledger can commit the exact footprint; Shift
// names the shift window the start instant landed in.
type Allocation struct {
	Start   time.Time
	End     time.Time
	Shift   string
	Minutes []int64
}

// Ledger tracks concurrent headcount per team per minute within one run.
type Ledger struct {
	usage map[string]map[int64]int
}

// NewLedger creates an empty usage ledger.
func NewLedger() *Ledger {
	return &Ledger{usage: make(map[string]map[int64]int)}
}

// Used returns the committed headcount for a team at a minute.
func (l *Ledger) Used(team string, minute int64) int {
	return l.usage[team][minute]
}

// Commit reserves the allocation's footprint.
func (l *Ledger) Commit(team string, alloc Allocation, headcount int) {
	if l.usage[team] == nil {
		l.usage[team] = make(map[int64]int)
	}
	for _, m := range alloc.Minutes {
		l.usage[team][m] += headcount
	}
}

// Allocator performs capacity-aware slot searches against a registry's
// calendar.
type Allocator struct {
	reg           *registry.Registry
	logger        ectologger.Logger
	maxIterations int
}

// New creates an allocator. maxIterations <= 0 selects the default bound.
func New(reg *registry.Registry, logger ectologger.Logger, maxIterations int) *Allocator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Allocator{reg: reg, logger: logger, maxIterations: maxIterations}
}

// NextFeasible returns the earliest placement at or after req.Earliest where
// every occupied working minute keeps the team at or under capacity. The
// ledger is read-only here; callers commit accepted allocations.
func (a *Allocator) NextFeasible(req Request, ledger *Ledger) (Allocation, error) {
	shifts := a.reg.TeamShifts(req.Team)
	candidate := req.Earliest.Truncate(time.Minute)

	for iter := 1; iter <= a.maxIterations; iter++ {
		start, ok := a.nextWorkingMinute(shifts, req.Product, candidate)
		if !ok {
			break
		}

		alloc, conflict := a.trySpan(shifts, req, ledger, start)
		if conflict == nil {
			metrics.ObserveAllocatorIterations(float64(iter))
			return alloc, nil
		}
		candidate = conflict.Add(time.Minute)
	}

	return Allocation{}, &ExhaustedError{Team: req.Team, Iterations: a.maxIterations}
}

// trySpan walks the task's working minutes from start. It returns the first
// capacity-conflicting minute, or the completed allocation.
func (a *Allocator) trySpan(shifts []models.ShiftDefinition, req Request, ledger *Ledger, start time.Time) (Allocation, *time.Time) {
	alloc := Allocation{Start: start, Minutes: make([]int64, 0, req.DurationMinutes)}

	t := start
	for consumed := 0; consumed < req.DurationMinutes; consumed++ {
		next, ok := a.nextWorkingMinute(shifts, req.Product, t)
		if !ok {
			far := t
			return Allocation{}, &far
		}
		t = next

		key := t.Unix() / 60
		if ledger.Used(req.Team, key)+req.Headcount > req.Capacity {
			conflict := t
			return Allocation{}, &conflict
		}
		alloc.Minutes = append(alloc.Minutes, key)
		t = t.Add(time.Minute)
	}

	alloc.End = t
	alloc.Shift = shiftName(shifts, alloc.Start)
	return alloc, nil
}

// shiftName resolves which shift window contains the instant.
func shiftName(shifts []models.ShiftDefinition, t time.Time) string {
	minuteOfDay := t.Hour()*60 + t.Minute()
	for _, s := range shifts {
		if s.Contains(minuteOfDay) {
			return s.Name
		}
	}
	return ""
}

// IsWorkingMinute reports whether the team works the minute containing t for
// the given product's calendar.
func (a *Allocator) IsWorkingMinute(team, product string, t time.Time) bool {
	return isWorking(a.reg, a.reg.TeamShifts(team), product, t)
}

func (a *Allocator) nextWorkingMinute(shifts []models.ShiftDefinition, product string, t time.Time) (time.Time, bool) {
	t = t.Truncate(time.Minute)
	for i := 0; i < calendarScanLimit; i++ {
		if isWorking(a.reg, shifts, product, t) {
			return t, true
		}
		t = nextShiftBoundary(shifts, t)
	}
	return time.Time{}, false
}

func isWorking(reg *registry.Registry, shifts []models.ShiftDefinition, product string, t time.Time) bool {
	day := t.Add(-workingDayOffset)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if reg.IsHoliday(product, day) {
		return false
	}

	minuteOfDay := t.Hour()*60 + t.Minute()
	for _, s := range shifts {
		if s.Contains(minuteOfDay) {
			return true
		}
	}
	return false
}

// nextShiftBoundary jumps to the nearest upcoming shift start, today or
// tomorrow.
func nextShiftBoundary(shifts []models.ShiftDefinition, t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	best := time.Time{}
	for _, s := range shifts {
		for _, dayStart := range []time.Time{midnight, midnight.Add(24 * time.Hour)} {
			boundary := dayStart.Add(time.Duration(s.Start) * time.Minute)
			if boundary.After(t) && (best.IsZero() || boundary.Before(best)) {
				best = boundary
			}
		}
	}
	if best.IsZero() {
		return t.Add(24 * time.Hour)
	}
	return best
}
