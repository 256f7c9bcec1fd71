package optimize

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

func testLogger(t *testing.T) ectologger.Logger {
	t.Helper()
	zapLogger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeRunner models a workload of 8 independent one-day task slots on the
// mechanic pool delivered on working day 4: makespan is
// ceil(8 / mechanic headcount) and the product's lateness is makespan - 4.
type fakeRunner struct {
	mu   sync.Mutex
	runs int

	// eval overrides the default model when set.
	eval func(capacity models.CapacityConfig) *models.ScheduleResult
}

func (f *fakeRunner) Run(_ context.Context, capacity models.CapacityConfig) (*models.ScheduleResult, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.eval != nil {
		return f.eval(capacity), nil
	}
	mech := capacity["Mechanic Team 1"]
	if mech < 1 {
		mech = 1
	}
	makespan := math.Ceil(8 / float64(mech))
	return &models.ScheduleResult{
		MakespanDays: makespan,
		LatenessDays: map[string]float64{"UNIT1": makespan - 4},
		Capacity:     capacity,
	}, nil
}

func (f *fakeRunner) Start() time.Time {
	return time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC)
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	reg.AddTeam(models.Team{Name: "Mechanic Team 1", Kind: models.TeamKindMechanic, Capacity: 6})
	reg.AddTeam(models.Team{Name: "Quality Team 1", Kind: models.TeamKindQuality, Capacity: 2})
	for i := 1; i <= 8; i++ {
		reg.AddTask(&models.TaskInstance{
			ID:              models.InstanceID("UNIT1", i),
			BaseID:          i,
			Product:         "UNIT1",
			Kind:            models.TaskKindBaseline,
			DurationMinutes: 480,
			Team:            "Mechanic Team 1",
			Headcount:       1,
		})
	}
	return reg
}

func newTestOptimizer(t *testing.T, reg *registry.Registry, runner Runner, cfg Config) *Optimizer {
	t.Helper()
	logger := testLogger(t)
	return New(runner, reg, graph.NewBuilder(reg, logger), cfg, logger)
}

func TestBaseline(t *testing.T) {
	reg := testRegistry()
	runner := &fakeRunner{}
	o := newTestOptimizer(t, reg, runner, Config{})

	result, err := o.Baseline(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyBaseline, result.Strategy)
	assert.Equal(t, 1, result.Trials)
	assert.Equal(t, reg.BaseCapacity(), result.Capacity)

	// 8 slots over 6 mechanics take two working days, two days early.
	assert.Equal(t, 2.0, result.Schedule.MakespanDays)
	assert.Equal(t, -2.0, result.AchievedLatenessDays)
	assert.Equal(t, 1, runner.runs)
}

func TestUniformMinimizesMakespan(t *testing.T) {
	reg := testRegistry()
	runner := &fakeRunner{}
	o := newTestOptimizer(t, reg, runner, Config{})

	result, err := o.Uniform(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyUniform, result.Strategy)

	// The ceiling run finishes in one day; 8 mechanics is the smallest level
	// that does not worsen that, ceil(8/7) = 2 does.
	assert.Equal(t, 8, result.Capacity["Mechanic Team 1"])
	assert.Equal(t, 1.0, result.Schedule.MakespanDays)

	// Inspection pools do not gate this workload and settle at the floor.
	assert.Equal(t, 1, result.Capacity["Quality Team 1"])

	assert.True(t, result.Schedule.Complete())
	assert.Equal(t, -3.0, result.AchievedLatenessDays)
	assert.Equal(t, runner.runs, result.Trials)
}

func TestUniformInfeasibleWhenNothingSchedules(t *testing.T) {
	reg := testRegistry()
	runner := &fakeRunner{
		eval: func(capacity models.CapacityConfig) *models.ScheduleResult {
			// Even the ceiling leaves work unscheduled.
			return &models.ScheduleResult{
				MakespanDays: models.SentinelIncomplete,
				Unscheduled:  []models.UnscheduledTask{{TaskID: "UNIT1_1", Reason: "allocation_exhausted"}},
				Capacity:     capacity,
			}
		},
	}
	o := newTestOptimizer(t, reg, runner, Config{})

	_, err := o.Uniform(context.Background())
	require.Error(t, err)

	var infeasible *InfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Contains(t, err.Error(), "scheduled")
}

func TestTargetedMeetsNegativeLatenessTarget(t *testing.T) {
	reg := testRegistry()
	runner := &fakeRunner{}
	o := newTestOptimizer(t, reg, runner, Config{MaxTrials: 8, Neighbors: 2, Seed: 1})

	result, err := o.Targeted(context.Background(), -1)
	require.NoError(t, err)

	assert.Equal(t, StrategyTargeted, result.Strategy)
	assert.Equal(t, -1.0, result.TargetLatenessDays)
	assert.True(t, result.Schedule.Complete())

	// Delivering a day early needs a three-day makespan: ceil(8/3) = 3 holds
	// the slip at -1, ceil(8/2) = 4 lands exactly on delivery. The shrink
	// phase shaves each pool to the smallest level still inside the target.
	assert.Equal(t, 3, result.Capacity["Mechanic Team 1"])
	assert.Equal(t, 1, result.Capacity["Quality Team 1"])
	assert.Equal(t, -1.0, result.AchievedLatenessDays)
	assert.Greater(t, result.Trials, 1)
}

func TestTargetedEarlyDeliveryShrinksToFloor(t *testing.T) {
	reg := testRegistry()
	runner := &fakeRunner{
		eval: func(capacity models.CapacityConfig) *models.ScheduleResult {
			// Every configuration runs five days early.
			return &models.ScheduleResult{
				MakespanDays: 2,
				LatenessDays: map[string]float64{"UNIT1": -5},
				Capacity:     capacity,
			}
		},
	}
	o := newTestOptimizer(t, reg, runner, Config{MaxTrials: 8, Neighbors: 2, Seed: 1})

	result, err := o.Targeted(context.Background(), -1)
	require.NoError(t, err)

	// A negative target that every trial beats is feasible, and the shrink
	// phase walks both pools down to the floor.
	assert.Equal(t, 1, result.Capacity["Mechanic Team 1"])
	assert.Equal(t, 1, result.Capacity["Quality Team 1"])
	assert.Equal(t, -5.0, result.AchievedLatenessDays)
}

func TestTargetedIsDeterministicWithSeed(t *testing.T) {
	cfg := Config{MaxTrials: 8, Neighbors: 2, Seed: 42}

	reg1 := testRegistry()
	first, err := newTestOptimizer(t, reg1, &fakeRunner{}, cfg).Targeted(context.Background(), -1)
	require.NoError(t, err)

	reg2 := testRegistry()
	second, err := newTestOptimizer(t, reg2, &fakeRunner{}, cfg).Targeted(context.Background(), -1)
	require.NoError(t, err)

	assert.Equal(t, first.Capacity, second.Capacity)
	assert.Equal(t, first.Trials, second.Trials)
}

func TestTargetedInfeasible(t *testing.T) {
	reg := testRegistry()
	runner := &fakeRunner{
		eval: func(capacity models.CapacityConfig) *models.ScheduleResult {
			return &models.ScheduleResult{
				MakespanDays: models.SentinelIncomplete,
				Unscheduled:  []models.UnscheduledTask{{TaskID: "UNIT1_1", Reason: "allocation_exhausted"}},
				Capacity:     capacity,
			}
		},
	}
	o := newTestOptimizer(t, reg, runner, Config{MaxTrials: 6, Neighbors: 2, Seed: 1})

	_, err := o.Targeted(context.Background(), -1)
	require.Error(t, err)

	var infeasible *InfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, -1.0, infeasible.TargetLatenessDays)
	assert.NotEmpty(t, infeasible.BestCapacity)
}

func TestMeetsTargetUsesWorstProductLateness(t *testing.T) {
	early := &models.ScheduleResult{
		MakespanDays: 3,
		LatenessDays: map[string]float64{"UNIT1": -3, "UNIT2": -1.5},
	}
	assert.True(t, meetsTarget(early, -1))
	assert.True(t, meetsTarget(early, -1.5))
	assert.False(t, meetsTarget(early, -2))

	// Sentinel entries never count as the worst slip; completeness is what
	// fails the trial.
	incomplete := &models.ScheduleResult{
		MakespanDays: models.SentinelIncomplete,
		LatenessDays: map[string]float64{"UNIT1": models.SentinelIncomplete, "UNIT2": -2},
		Unscheduled:  []models.UnscheduledTask{{TaskID: "UNIT1_1"}},
	}
	assert.False(t, meetsTarget(incomplete, 0))
	assert.Equal(t, -2.0, maxLatenessDays(incomplete))
}

func TestMinimumCapacityFloorsAtLargestHeadcount(t *testing.T) {
	reg := testRegistry()
	reg.AddTask(&models.TaskInstance{
		ID: "UNIT1_99", BaseID: 99, Product: "UNIT1", Kind: models.TaskKindBaseline,
		DurationMinutes: 60, Team: "Mechanic Team 1", Headcount: 3,
	})
	o := newTestOptimizer(t, reg, &fakeRunner{}, Config{})

	floor := o.minimumCapacity()
	assert.Equal(t, 3, floor["Mechanic Team 1"])
	assert.Equal(t, 1, floor["Quality Team 1"])
}

func TestScorePrefersTargetAndSmallerWorkforce(t *testing.T) {
	reg := testRegistry()
	o := newTestOptimizer(t, reg, &fakeRunner{}, Config{})

	onTarget := &models.ScheduleResult{MakespanDays: 2, LatenessDays: map[string]float64{"UNIT1": -1}}
	over := &models.ScheduleResult{MakespanDays: 4, LatenessDays: map[string]float64{"UNIT1": 1}}
	incomplete := &models.ScheduleResult{
		MakespanDays: models.SentinelIncomplete,
		Unscheduled:  []models.UnscheduledTask{{TaskID: "UNIT1_1"}},
	}

	capacity := models.CapacityConfig{"Mechanic Team 1": 4}
	assert.Less(t, o.score(onTarget, -1, capacity), o.score(over, -1, capacity))
	assert.Less(t, o.score(over, -1, capacity), o.score(incomplete, -1, capacity))

	// At the target, a leaner workforce scores better.
	lean := models.CapacityConfig{"Mechanic Team 1": 4}
	heavy := models.CapacityConfig{"Mechanic Team 1": 40}
	assert.Less(t, o.score(onTarget, -1, lean), o.score(onTarget, -1, heavy))
}
