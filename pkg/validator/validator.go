// Package validator independently checks a produced schedule against the
// dataset: completeness, team capacity, precedence and material availability.
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	// capacitySampleInterval is the spacing of concurrent-usage probes.
	capacitySampleInterval = 15 * time.Minute

	// precedenceTolerance absorbs minute-rounding at shift boundaries when
	// checking equality constraints.
	precedenceTolerance = time.Minute
)

// Validator checks schedules after the fact. It shares no state with the
// engine, so an engine bug cannot hide from it.
type Validator struct {
	reg     *registry.Registry
	builder *graph.Builder
	logger  ectologger.Logger
}

// New creates a validator.
func New(reg *registry.Registry, builder *graph.Builder, logger ectologger.Logger) *Validator {
	return &Validator{reg: reg, builder: builder, logger: logger}
}

// Validate runs all checks against a schedule and the capacity it was built
// under.
func (v *Validator) Validate(ctx context.Context, result *models.ScheduleResult, capacity models.CapacityConfig) (*models.ValidationReport, error) {
	ctx, span := tracing.StartSpan(ctx, "validator.Validator.Validate")
	defer span.End()

	g, err := v.builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.ValidationReport{}
	v.checkCompleteness(result, report)
	v.checkCapacity(result, capacity, report)
	v.checkPrecedence(g, result, report)
	v.checkLateParts(result, report)

	report.IsValid = len(report.MissingTasks) == 0 &&
		len(report.CapacityViolations) == 0 &&
		len(report.PrecedenceViolations) == 0 &&
		len(report.LatePartViolations) == 0

	v.recordMetrics(report)
	v.logger.WithContext(ctx).WithFields(map[string]any{
		"valid":      report.IsValid,
		"missing":    len(report.MissingTasks),
		"capacity":   len(report.CapacityViolations),
		"precedence": len(report.PrecedenceViolations),
		"late_parts": len(report.LatePartViolations),
	}).Info("Schedule validated")

	return report, nil
}

// checkCompleteness verifies every registered task is either placed or
// accounted for as unscheduled.
func (v *Validator) checkCompleteness(result *models.ScheduleResult, report *models.ValidationReport) {
	placed := make(map[string]struct{}, len(result.Entries))
	for _, e := range result.Entries {
		placed[e.TaskID] = struct{}{}
	}
	for _, u := range result.Unscheduled {
		placed[u.TaskID] = struct{}{}
	}
	for _, t := range v.reg.Tasks() {
		if _, ok := placed[t.ID]; !ok {
			report.MissingTasks = append(report.MissingTasks, t.ID)
		}
	}
}

// checkCapacity samples concurrent headcount per team every 15 minutes
// across the schedule span.
func (v *Validator) checkCapacity(result *models.ScheduleResult, capacity models.CapacityConfig, report *models.ValidationReport) {
	if len(result.Entries) == 0 {
		return
	}

	var first, last time.Time
	for _, e := range result.Entries {
		if first.IsZero() || e.Start.Before(first) {
			first = e.Start
		}
		if e.End.After(last) {
			last = e.End
		}
	}

	for at := first; at.Before(last); at = at.Add(capacitySampleInterval) {
		used := make(map[string]int)
		for _, e := range result.Entries {
			if !e.Start.After(at) && e.End.After(at) {
				used[e.Team] += e.Headcount
			}
		}
		for team, n := range used {
			limit, ok := capacity[team]
			if !ok {
				continue
			}
			if n > limit {
				report.CapacityViolations = append(report.CapacityViolations, models.CapacityViolation{
					Team:     team,
					At:       at,
					Used:     n,
					Capacity: limit,
				})
			}
		}
	}
}

// checkPrecedence verifies every expanded constraint whose endpoints were
// both placed, with a one-minute tolerance on equality pins.
func (v *Validator) checkPrecedence(g *graph.Graph, result *models.ScheduleResult, report *models.ValidationReport) {
	for _, c := range g.Constraints {
		first, ok1 := result.Entry(c.First)
		second, ok2 := result.Entry(c.Second)
		if !ok1 || !ok2 {
			continue
		}

		var detail string
		switch c.Kind {
		case models.RelationFinishStart:
			if second.Start.Before(first.End.Add(-precedenceTolerance)) {
				detail = fmt.Sprintf("successor starts %s before predecessor finishes", first.End.Sub(second.Start))
			}
		case models.RelationFinishEqualsStart:
			if gap := absDuration(second.Start.Sub(first.End)); gap > precedenceTolerance {
				detail = fmt.Sprintf("start is %s away from predecessor finish", gap)
			}
		case models.RelationFinishFinish:
			if second.End.Before(first.End.Add(-precedenceTolerance)) {
				detail = fmt.Sprintf("successor finishes %s before predecessor finishes", first.End.Sub(second.End))
			}
		case models.RelationStartStart:
			if second.Start.Before(first.Start.Add(-precedenceTolerance)) {
				detail = fmt.Sprintf("successor starts %s before predecessor starts", first.Start.Sub(second.Start))
			}
		case models.RelationStartEqualsStart:
			if gap := absDuration(second.Start.Sub(first.Start)); gap > precedenceTolerance {
				detail = fmt.Sprintf("start is %s away from predecessor start", gap)
			}
		case models.RelationStartFinish:
			if second.End.Before(first.Start.Add(-precedenceTolerance)) {
				detail = fmt.Sprintf("successor finishes %s before predecessor starts", first.Start.Sub(second.End))
			}
		}

		if detail != "" {
			report.PrecedenceViolations = append(report.PrecedenceViolations, models.PrecedenceViolation{
				First:   c.First,
				Second:  c.Second,
				Kind:    c.Kind,
				Detail:  detail,
				Product: c.Product,
			})
		}
	}
}

// checkLateParts verifies no late-part task starts before its material
// availability.
func (v *Validator) checkLateParts(result *models.ScheduleResult, report *models.ValidationReport) {
	for _, t := range v.reg.LateParts() {
		entry, ok := result.Entry(t.ID)
		if !ok || t.EarliestStart.IsZero() {
			continue
		}
		if entry.Start.Before(t.EarliestStart) {
			report.LatePartViolations = append(report.LatePartViolations, models.LatePartViolation{
				TaskID:        t.ID,
				Start:         entry.Start,
				EarliestStart: t.EarliestStart,
			})
		}
	}
}

func (v *Validator) recordMetrics(report *models.ValidationReport) {
	record := func(kind string, n int) {
		if n > 0 {
			metrics.ValidationFailures.WithLabelValues(kind).Add(float64(n))
		}
	}
	record("missing_task", len(report.MissingTasks))
	record("capacity", len(report.CapacityViolations))
	record("precedence", len(report.PrecedenceViolations))
	record("late_part", len(report.LatePartViolations))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
