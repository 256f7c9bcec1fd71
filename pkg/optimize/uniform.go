package optimize

import (
	"context"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Uniform minimizes makespan: it binary-searches the smallest uniform
// headcount that still schedules every task without worsening the best
// makespan any larger workforce achieves. Mechanic pools are searched first
// with inspection pools pinned high, then quality pools are searched with
// mechanics fixed; customer pools follow the quality level.
func (o *Optimizer) Uniform(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "optimize.Optimizer.Uniform")
	defer span.End()

	log := o.logger.WithContext(ctx)
	log.Info("Starting uniform capacity search")

	floor := o.minimumCapacity()
	trials := 0

	evaluate := func(capacity models.CapacityConfig) (*models.ScheduleResult, error) {
		trials++
		result, err := o.engine.Run(ctx, capacity)
		if err != nil {
			return nil, err
		}
		metrics.RecordOptimizerTrial(StrategyUniform, trialOutcome(result))
		return result, nil
	}

	build := func(mechanic, quality int) models.CapacityConfig {
		capacity := make(models.CapacityConfig)
		for _, team := range o.reg.Teams() {
			level := mechanic
			if team.Kind != models.TeamKindMechanic {
				level = quality
			}
			if level < floor[team.Name] {
				level = floor[team.Name]
			}
			capacity[team.Name] = level
		}
		return capacity
	}

	// Mechanics first, inspection pools pinned at the ceiling so they never
	// gate the search.
	mechanicLevel, result, err := o.binarySearchMin(maxValue(floor), func(level int) (*models.ScheduleResult, error) {
		return evaluate(build(level, capacityCeiling))
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &InfeasibleError{BestDistance: models.SentinelIncomplete, Trials: trials}
	}
	log.Infof("Uniform mechanic level settled at %d", mechanicLevel)

	// Quality next, mechanics held; customer pools track the quality level.
	qualityLevel, result, err := o.binarySearchMin(maxValue(floor), func(level int) (*models.ScheduleResult, error) {
		return evaluate(build(mechanicLevel, level))
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &InfeasibleError{BestDistance: models.SentinelIncomplete, Trials: trials}
	}
	log.Infof("Uniform quality level settled at %d", qualityLevel)

	log.WithFields(map[string]any{
		"trials":   trials,
		"makespan": result.MakespanDays,
	}).Info("Uniform capacity search finished")

	return &Result{
		Strategy:             StrategyUniform,
		AchievedLatenessDays: achievedLateness(result),
		Capacity:             build(mechanicLevel, qualityLevel),
		Schedule:             result,
		Trials:               trials,
	}, nil
}

// binarySearchMin finds the smallest level in [low, ceiling] that schedules
// every task without worsening the best makespan seen so far. The ceiling
// trial establishes the achievable makespan; a nil result means even the
// ceiling left work unscheduled.
func (o *Optimizer) binarySearchMin(low int, trial func(level int) (*models.ScheduleResult, error)) (int, *models.ScheduleResult, error) {
	high := capacityCeiling

	atCeiling, err := trial(high)
	if err != nil {
		return 0, nil, err
	}
	if !atCeiling.Complete() {
		return 0, nil, nil
	}

	bestLevel := high
	bestResult := atCeiling
	bestMakespan := atCeiling.MakespanDays
	for low < high {
		mid := (low + high) / 2
		r, err := trial(mid)
		if err != nil {
			return 0, nil, err
		}
		if r.Complete() && r.MakespanDays <= bestMakespan {
			if r.MakespanDays < bestMakespan {
				bestMakespan = r.MakespanDays
			}
			bestLevel = mid
			bestResult = r
			high = mid
		} else {
			low = mid + 1
		}
	}
	return bestLevel, bestResult, nil
}

func maxValue(c models.CapacityConfig) int {
	max := 1
	for _, n := range c {
		if n > max {
			max = n
		}
	}
	return max
}
