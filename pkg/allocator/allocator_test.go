package allocator

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

// 2025-08-22 is a Friday.
var friday = time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)

func testLogger(t *testing.T) ectologger.Logger {
	t.Helper()
	zapLogger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func dayShiftRegistry() *registry.Registry {
	reg := registry.New()
	reg.AddTeam(models.Team{Name: "Mechanic Team 1", Kind: models.TeamKindMechanic, Capacity: 2, Shifts: []string{"1st Shift"}})
	return reg
}

func TestNextFeasiblePausesAcrossShiftGap(t *testing.T) {
	reg := dayShiftRegistry()
	a := New(reg, testLogger(t), 0)

	// 45 working minutes remain on Friday's first shift; the rest lands on
	// Monday morning.
	alloc, err := a.NextFeasible(Request{
		Team:            "Mechanic Team 1",
		Product:         "UNIT1",
		DurationMinutes: 60,
		Headcount:       1,
		Capacity:        2,
		Earliest:        time.Date(2025, 8, 22, 13, 45, 0, 0, time.UTC),
	}, NewLedger())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 8, 22, 13, 45, 0, 0, time.UTC), alloc.Start)
	assert.Equal(t, time.Date(2025, 8, 25, 6, 15, 0, 0, time.UTC), alloc.End)
	assert.Equal(t, "1st Shift", alloc.Shift)
	assert.Len(t, alloc.Minutes, 60)
}

func TestNextFeasibleSkipsWeekend(t *testing.T) {
	reg := dayShiftRegistry()
	a := New(reg, testLogger(t), 0)

	saturday := time.Date(2025, 8, 23, 10, 0, 0, 0, time.UTC)
	alloc, err := a.NextFeasible(Request{
		Team:            "Mechanic Team 1",
		Product:         "UNIT1",
		DurationMinutes: 60,
		Headcount:       1,
		Capacity:        2,
		Earliest:        saturday,
	}, NewLedger())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 8, 25, 6, 0, 0, 0, time.UTC), alloc.Start)
	assert.Equal(t, time.Date(2025, 8, 25, 7, 0, 0, 0, time.UTC), alloc.End)
}

func TestNextFeasibleSkipsProductHoliday(t *testing.T) {
	reg := dayShiftRegistry()
	monday := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	reg.AddHoliday("UNIT1", monday)
	a := New(reg, testLogger(t), 0)

	req := Request{
		Team:            "Mechanic Team 1",
		DurationMinutes: 60,
		Headcount:       1,
		Capacity:        2,
		Earliest:        time.Date(2025, 8, 23, 0, 0, 0, 0, time.UTC),
	}

	req.Product = "UNIT1"
	alloc, err := a.NextFeasible(req, NewLedger())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 26, 6, 0, 0, 0, time.UTC), alloc.Start)

	// Holidays are per product; UNIT2 works Monday.
	req.Product = "UNIT2"
	alloc, err = a.NextFeasible(req, NewLedger())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 25, 6, 0, 0, 0, time.UTC), alloc.Start)
}

func TestNightShiftMinutesAttributeToPreviousDay(t *testing.T) {
	reg := registry.New()
	reg.AddTeam(models.Team{Name: "Mechanic Team 1", Kind: models.TeamKindMechanic, Capacity: 2})
	a := New(reg, testLogger(t), 0)

	// Friday's night shift crosses midnight into Saturday; those minutes
	// belong to Friday's working day and stay available.
	alloc, err := a.NextFeasible(Request{
		Team:            "Mechanic Team 1",
		Product:         "UNIT1",
		DurationMinutes: 60,
		Headcount:       1,
		Capacity:        2,
		Earliest:        time.Date(2025, 8, 22, 23, 30, 0, 0, time.UTC),
	}, NewLedger())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 8, 22, 23, 30, 0, 0, time.UTC), alloc.Start)
	assert.Equal(t, time.Date(2025, 8, 23, 0, 30, 0, 0, time.UTC), alloc.End)
	assert.Equal(t, "3rd Shift", alloc.Shift)
}

func TestNextFeasiblePushesPastCapacityConflict(t *testing.T) {
	reg := dayShiftRegistry()
	a := New(reg, testLogger(t), 0)
	ledger := NewLedger()

	req := Request{
		Team:            "Mechanic Team 1",
		Product:         "UNIT1",
		DurationMinutes: 60,
		Headcount:       1,
		Capacity:        1,
		Earliest:        friday,
	}

	first, err := a.NextFeasible(req, ledger)
	require.NoError(t, err)
	assert.Equal(t, friday, first.Start)
	ledger.Commit(req.Team, first, req.Headcount)

	second, err := a.NextFeasible(req, ledger)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 22, 7, 0, 0, 0, time.UTC), second.Start)
}

func TestNextFeasibleConcurrentWithinCapacity(t *testing.T) {
	reg := dayShiftRegistry()
	a := New(reg, testLogger(t), 0)
	ledger := NewLedger()

	req := Request{
		Team:            "Mechanic Team 1",
		Product:         "UNIT1",
		DurationMinutes: 60,
		Headcount:       1,
		Capacity:        2,
		Earliest:        friday,
	}

	first, err := a.NextFeasible(req, ledger)
	require.NoError(t, err)
	ledger.Commit(req.Team, first, req.Headcount)

	// Capacity 2 fits both tasks side by side.
	second, err := a.NextFeasible(req, ledger)
	require.NoError(t, err)
	assert.Equal(t, friday, second.Start)
}

func TestNextFeasibleExhausts(t *testing.T) {
	reg := dayShiftRegistry()
	a := New(reg, testLogger(t), 10)

	// Headcount above capacity can never fit.
	_, err := a.NextFeasible(Request{
		Team:            "Mechanic Team 1",
		Product:         "UNIT1",
		DurationMinutes: 60,
		Headcount:       3,
		Capacity:        2,
		Earliest:        friday,
	}, NewLedger())
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "Mechanic Team 1", exhausted.Team)
	assert.Equal(t, 10, exhausted.Iterations)
}

func TestIsWorkingMinute(t *testing.T) {
	reg := dayShiftRegistry()
	a := New(reg, testLogger(t), 0)

	assert.True(t, a.IsWorkingMinute("Mechanic Team 1", "UNIT1", friday))
	assert.True(t, a.IsWorkingMinute("Mechanic Team 1", "UNIT1", time.Date(2025, 8, 22, 14, 29, 0, 0, time.UTC)))
	assert.False(t, a.IsWorkingMinute("Mechanic Team 1", "UNIT1", time.Date(2025, 8, 22, 14, 30, 0, 0, time.UTC)))
	assert.False(t, a.IsWorkingMinute("Mechanic Team 1", "UNIT1", time.Date(2025, 8, 23, 10, 0, 0, 0, time.UTC)))
}
