// Package optimize searches capacity configurations with repeated scheduling
// runs: the uniform strategy minimizes makespan, the targeted strategy drives
// every product's delivery slip under a lateness target.
package optimize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
	"github.com/Ramsey-B/aster/pkg/solver"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Strategy names reported on results and metrics.
const (
	StrategyBaseline = "baseline"
	StrategyUniform  = "uniform"
	StrategyTargeted = "targeted"
)

const (
	DefaultMaxTrials          = 60
	DefaultNeighbors          = 4
	DefaultInitialTemperature = 1000.0
	DefaultCooling            = 0.95
	DefaultReheatAfter        = 30

	// capacityCeiling bounds any single team's searched headcount.
	capacityCeiling = 200
)

// Runner produces a schedule for a capacity configuration. The scheduling
// engine satisfies this; tests substitute cheaper fakes.
type Runner interface {
	Run(ctx context.Context, capacity models.CapacityConfig) (*models.ScheduleResult, error)
	Start() time.Time
}

// Config tunes the optimizer.
type Config struct {
	// MaxTrials bounds the targeted search's annealing iterations.
	MaxTrials int

	// Neighbors is how many candidate configurations each annealing
	// iteration evaluates in parallel.
	Neighbors int

	InitialTemperature float64
	Cooling            float64
	ReheatAfter        int

	// Seed fixes the annealing random walk; zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns the standard optimizer configuration.
func DefaultConfig() Config {
	return Config{
		MaxTrials:          DefaultMaxTrials,
		Neighbors:          DefaultNeighbors,
		InitialTemperature: DefaultInitialTemperature,
		Cooling:            DefaultCooling,
		ReheatAfter:        DefaultReheatAfter,
	}
}

// Result is a finished optimization. TargetLatenessDays is set for the
// targeted strategy only; AchievedLatenessDays is the worst per-product
// delivery slip of the returned schedule (negative means every product
// finishes early).
type Result struct {
	Strategy             string                 `json:"strategy"`
	TargetLatenessDays   float64                `json:"target_lateness_days,omitempty"`
	AchievedLatenessDays float64                `json:"achieved_lateness_days"`
	Capacity             models.CapacityConfig  `json:"capacity"`
	Schedule             *models.ScheduleResult `json:"schedule"`
	Trials               int                    `json:"trials"`
}

// InfeasibleError reports that no searched configuration met the lateness
// target within the trial budget, or that no configuration scheduled every
// task.
type InfeasibleError struct {
	TargetLatenessDays float64
	BestDistance       float64
	BestCapacity       models.CapacityConfig
	Trials             int
}

func (e *InfeasibleError) Error() string {
	if e.BestDistance >= models.SentinelIncomplete {
		return fmt.Sprintf("no searched capacity scheduled every task after %d trials", e.Trials)
	}
	return fmt.Sprintf("lateness target of %.1f days infeasible after %d trials (best distance %.1f days)",
		e.TargetLatenessDays, e.Trials, e.BestDistance)
}

// Optimizer evaluates capacity configurations. An exact solver may be
// injected to serve baseline runs; by default every trial goes through the
// heuristic engine.
type Optimizer struct {
	engine  Runner
	reg     *registry.Registry
	builder *graph.Builder
	exact   solver.Solver
	logger  ectologger.Logger
	config  Config
}

// New creates an optimizer.
func New(engine Runner, reg *registry.Registry, builder *graph.Builder, config Config, logger ectologger.Logger) *Optimizer {
	if config.MaxTrials <= 0 {
		config.MaxTrials = DefaultMaxTrials
	}
	if config.Neighbors <= 0 {
		config.Neighbors = DefaultNeighbors
	}
	if config.InitialTemperature <= 0 {
		config.InitialTemperature = DefaultInitialTemperature
	}
	if config.Cooling <= 0 || config.Cooling >= 1 {
		config.Cooling = DefaultCooling
	}
	if config.ReheatAfter <= 0 {
		config.ReheatAfter = DefaultReheatAfter
	}
	return &Optimizer{
		engine:  engine,
		reg:     reg,
		builder: builder,
		config:  config,
		logger:  logger,
	}
}

// WithSolver injects an exact solver for baseline runs.
func (o *Optimizer) WithSolver(s solver.Solver) *Optimizer {
	o.exact = s
	return o
}

// Baseline runs the schedule as-is with registered team capacities.
func (o *Optimizer) Baseline(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "optimize.Optimizer.Baseline")
	defer span.End()

	capacity := o.reg.BaseCapacity()

	if o.exact != nil {
		g, err := o.builder.Build(ctx)
		if err != nil {
			return nil, err
		}
		schedule, err := o.exact.Solve(ctx, g, capacity)
		if err != nil {
			return nil, err
		}
		return &Result{
			Strategy:             StrategyBaseline,
			AchievedLatenessDays: achievedLateness(schedule),
			Capacity:             capacity,
			Schedule:             schedule,
			Trials:               1,
		}, nil
	}

	schedule, err := o.engine.Run(ctx, capacity)
	if err != nil {
		return nil, err
	}
	metrics.RecordOptimizerTrial(StrategyBaseline, trialOutcome(schedule))
	return &Result{
		Strategy:             StrategyBaseline,
		AchievedLatenessDays: achievedLateness(schedule),
		Capacity:             capacity,
		Schedule:             schedule,
		Trials:               1,
	}, nil
}

// score rates a trial: squared distance over the lateness target dominates,
// unscheduled work is penalized heavily, and near the target the workforce
// size and utilization balance tie-break between candidates.
func (o *Optimizer) score(result *models.ScheduleResult, targetLateness float64, capacity models.CapacityConfig) float64 {
	distance := 0.0
	if !result.Complete() {
		distance = float64(len(result.Unscheduled))
	} else if worst := maxLatenessDays(result); worst > targetLateness {
		distance = worst - targetLateness
	}

	score := distance*distance*1000 + float64(len(result.Unscheduled))*5000

	if distance <= 2 {
		score += float64(capacity.Total()) * 10
	}
	if distance <= 1 {
		score += math.Abs(o.utilization(result, capacity)-75) * 5
	}
	return score
}

// utilization approximates worked minutes against offered minutes over the
// schedule span, as a percentage.
func (o *Optimizer) utilization(result *models.ScheduleResult, capacity models.CapacityConfig) float64 {
	if result.MakespanDays <= 0 || result.MakespanDays == models.SentinelIncomplete || capacity.Total() == 0 {
		return 0
	}
	worked := 0.0
	for _, e := range result.Entries {
		worked += float64(e.DurationMinutes * e.Headcount)
	}
	offered := float64(capacity.Total()) * result.MakespanDays * 8 * 60
	if offered == 0 {
		return 0
	}
	return worked / offered * 100
}

// meetsTarget reports whether a trial fully scheduled the work with every
// product's delivery slip at or under the lateness target.
func meetsTarget(result *models.ScheduleResult, targetLateness float64) bool {
	return result.Complete() && maxLatenessDays(result) <= targetLateness
}

// maxLatenessDays returns the worst per-product delivery slip, negative when
// every product runs early. Products reporting the incomplete sentinel are
// skipped; completeness is judged separately.
func maxLatenessDays(result *models.ScheduleResult) float64 {
	worst := math.Inf(-1)
	for _, d := range result.LatenessDays {
		if d == models.SentinelIncomplete {
			continue
		}
		if d > worst {
			worst = d
		}
	}
	return worst
}

// achievedLateness is maxLatenessDays clamped to zero when no product
// reported a finite slip, keeping results JSON-encodable.
func achievedLateness(result *models.ScheduleResult) float64 {
	worst := maxLatenessDays(result)
	if math.IsInf(worst, -1) {
		return 0
	}
	return worst
}

// minimumCapacity is the per-team search floor: no team may shrink below its
// largest single-task headcount.
func (o *Optimizer) minimumCapacity() models.CapacityConfig {
	floor := make(models.CapacityConfig)
	for _, team := range o.reg.Teams() {
		floor[team.Name] = 1
	}
	for _, t := range o.reg.Tasks() {
		if t.Headcount > floor[t.Team] {
			floor[t.Team] = t.Headcount
		}
	}
	return floor
}

func trialOutcome(result *models.ScheduleResult) string {
	if result.Complete() {
		return "complete"
	}
	return "partial"
}
