package optimize

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

type trial struct {
	capacity models.CapacityConfig
	result   *models.ScheduleResult
	score    float64
}

// Targeted anneals team-level capacity adjustments until every product's
// delivery slip sits at or under targetLateness (negative targets demand
// early delivery), then greedily shrinks any headroom the walk left behind.
// Neighbor trials run in parallel; each owns an immutable capacity
// configuration.
func (o *Optimizer) Targeted(ctx context.Context, targetLateness float64) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "optimize.Optimizer.Targeted")
	defer span.End()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{"target_lateness_days": targetLateness})
	log.Info("Starting targeted capacity search")

	seed := o.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	floor := o.minimumCapacity()
	teams := teamNames(floor)

	current, err := o.evaluate(ctx, o.reg.BaseCapacity().Clone(), targetLateness)
	if err != nil {
		return nil, err
	}
	best := current
	trials := 1

	temperature := o.config.InitialTemperature
	stuck := 0

	for trials < o.config.MaxTrials {
		batch := o.config.Neighbors
		if remaining := o.config.MaxTrials - trials; batch > remaining {
			batch = remaining
		}

		neighbors := make([]models.CapacityConfig, batch)
		for i := range neighbors {
			neighbors[i] = o.neighbor(rng, current, floor, teams)
		}

		evaluated, err := o.evaluateParallel(ctx, neighbors, targetLateness)
		if err != nil {
			return nil, err
		}
		trials += len(evaluated)

		candidate := evaluated[0]
		for _, t := range evaluated[1:] {
			if t.score < candidate.score {
				candidate = t
			}
		}

		delta := candidate.score - current.score
		if delta < 0 || rng.Float64() < math.Exp(-delta/temperature) {
			current = candidate
			if candidate.score < best.score {
				best = candidate
				stuck = 0
			} else {
				stuck++
			}
		} else {
			stuck++
		}

		temperature *= o.config.Cooling
		if stuck >= o.config.ReheatAfter {
			temperature = o.config.InitialTemperature / 2
			stuck = 0
		}
	}

	if !meetsTarget(best.result, targetLateness) {
		distance := float64(models.SentinelIncomplete)
		if best.result.Complete() {
			distance = maxLatenessDays(best.result) - targetLateness
		}
		return nil, &InfeasibleError{
			TargetLatenessDays: targetLateness,
			BestDistance:       distance,
			BestCapacity:       best.capacity,
			Trials:             trials,
		}
	}

	// Phase 2: walk teams from largest headcount down and shave while the
	// target still holds.
	best, shrinkTrials, err := o.shrink(ctx, best, floor, targetLateness)
	if err != nil {
		return nil, err
	}
	trials += shrinkTrials

	log.WithFields(map[string]any{
		"trials":    trials,
		"lateness":  achievedLateness(best.result),
		"workforce": best.capacity.Total(),
	}).Info("Targeted capacity search finished")

	return &Result{
		Strategy:             StrategyTargeted,
		TargetLatenessDays:   targetLateness,
		AchievedLatenessDays: achievedLateness(best.result),
		Capacity:             best.capacity,
		Schedule:             best.result,
		Trials:               trials,
	}, nil
}

// neighbor perturbs one random team by one head. While the current trial
// leaves work unscheduled, every move is an increase.
func (o *Optimizer) neighbor(rng *rand.Rand, current trial, floor models.CapacityConfig, teams []string) models.CapacityConfig {
	next := current.capacity.Clone()
	team := teams[rng.Intn(len(teams))]

	delta := 1
	if current.result.Complete() && rng.Intn(2) == 0 {
		delta = -1
	}

	level := next[team] + delta
	if level < floor[team] {
		level = floor[team]
	}
	if level > capacityCeiling {
		level = capacityCeiling
	}
	next[team] = level
	return next
}

func (o *Optimizer) evaluate(ctx context.Context, capacity models.CapacityConfig, targetLateness float64) (trial, error) {
	result, err := o.engine.Run(ctx, capacity)
	if err != nil {
		return trial{}, err
	}
	metrics.RecordOptimizerTrial(StrategyTargeted, trialOutcome(result))
	return trial{
		capacity: capacity,
		result:   result,
		score:    o.score(result, targetLateness, capacity),
	}, nil
}

func (o *Optimizer) evaluateParallel(ctx context.Context, capacities []models.CapacityConfig, targetLateness float64) ([]trial, error) {
	out := make([]trial, len(capacities))
	eg, ctx := errgroup.WithContext(ctx)
	for i, capacity := range capacities {
		eg.Go(func() error {
			t, err := o.evaluate(ctx, capacity, targetLateness)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// shrink repeatedly removes one head from the largest pools while the target
// still holds.
func (o *Optimizer) shrink(ctx context.Context, best trial, floor models.CapacityConfig, targetLateness float64) (trial, int, error) {
	trials := 0
	improved := true
	for improved {
		improved = false

		teams := teamNames(best.capacity)
		sort.Slice(teams, func(i, j int) bool {
			if best.capacity[teams[i]] != best.capacity[teams[j]] {
				return best.capacity[teams[i]] > best.capacity[teams[j]]
			}
			return teams[i] < teams[j]
		})

		for _, team := range teams {
			if best.capacity[team] <= floor[team] {
				continue
			}
			candidate := best.capacity.Clone()
			candidate[team]--

			t, err := o.evaluate(ctx, candidate, targetLateness)
			if err != nil {
				return trial{}, trials, err
			}
			trials++
			if meetsTarget(t.result, targetLateness) {
				best = t
				improved = true
			}
		}
	}
	return best, trials, nil
}

func teamNames(c models.CapacityConfig) []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
