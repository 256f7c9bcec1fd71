// Package scheduler implements the greedy, priority-ordered list scheduler.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/allocator"
	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var (
	// ErrNoTasks is returned when a run starts against an empty dataset.
	ErrNoTasks = errors.New("no tasks to schedule")
)

const (
	// DefaultMaxAttempts is how many times a task is retried after a failed
	// allocation before it is reported unscheduled.
	DefaultMaxAttempts = 3

	// DefaultPriorityPenalty is added to a task's priority on each retry so
	// repeated failures sink in the ready queue.
	DefaultPriorityPenalty = 0.1

	// DefaultCriticalSlackHours classifies entries as critical when their
	// slack falls below it.
	DefaultCriticalSlackHours = 24
)

// Unscheduled reasons reported on ScheduleResult entries.
const (
	ReasonAllocationExhausted = "allocation_exhausted"
	ReasonBlocked             = "blocked_by_unscheduled_predecessor"
	ReasonNoCapacity          = "no_capacity_configured_for_team"
)

// RetryPolicy controls requeue behavior after failed allocations.
type RetryPolicy struct {
	MaxAttempts     int
	PriorityPenalty float64
}

// Config holds engine configuration for scheduling runs.
type Config struct {
	// Start is the schedule horizon start.
	Start time.Time

	// Retry controls requeueing after failed allocations.
	Retry RetryPolicy

	// CriticalSlackHours marks entries critical below this slack.
	CriticalSlackHours float64
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Start: time.Date(2025, 8, 22, 6, 0, 0, 0, time.UTC),
		Retry: RetryPolicy{
			MaxAttempts:     DefaultMaxAttempts,
			PriorityPenalty: DefaultPriorityPenalty,
		},
		CriticalSlackHours: DefaultCriticalSlackHours,
	}
}

// Engine runs the greedy list scheduler. Capacity arrives per run and is
// never mutated, so concurrent runs with different configurations are safe.
type Engine struct {
	reg     *registry.Registry
	builder *graph.Builder
	alloc   *allocator.Allocator
	logger  ectologger.Logger
	config  Config

	// Analyzer memo shared across runs for one registry generation.
	mu          sync.Mutex
	analyzerGen uint64
	analyzerG   *graph.Graph
	cachedAn    *analyzer
}

// NewEngine creates a scheduling engine.
func NewEngine(
	reg *registry.Registry,
	builder *graph.Builder,
	alloc *allocator.Allocator,
	config Config,
	logger ectologger.Logger,
) *Engine {
	if config.Start.IsZero() {
		config.Start = DefaultConfig().Start
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if config.Retry.PriorityPenalty <= 0 {
		config.Retry.PriorityPenalty = DefaultPriorityPenalty
	}
	if config.CriticalSlackHours == 0 {
		config.CriticalSlackHours = DefaultCriticalSlackHours
	}

	return &Engine{
		reg:     reg,
		builder: builder,
		alloc:   alloc,
		config:  config,
		logger:  logger,
	}
}

// Start returns the configured horizon start.
func (e *Engine) Start() time.Time {
	return e.config.Start
}

// analyzerFor returns the memoized analyzer for the current generation.
func (e *Engine) analyzerFor(g *graph.Graph) *analyzer {
	gen := e.reg.Generation()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cachedAn == nil || e.analyzerGen != gen || e.analyzerG != g {
		e.cachedAn = newAnalyzer(g, e.reg)
		e.analyzerGen = gen
		e.analyzerG = g
	}
	return e.cachedAn
}

// Run produces a schedule for the dataset under the given capacity
// configuration.
func (e *Engine) Run(ctx context.Context, capacity models.CapacityConfig) (*models.ScheduleResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Engine.Run")
	defer span.End()

	started := time.Now()
	log := e.logger.WithContext(ctx)

	tasks := e.reg.Tasks()
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	g, err := e.builder.Build(ctx)
	if err != nil {
		metrics.RecordScheduleRun("run", "graph_error", time.Since(started).Seconds())
		return nil, err
	}
	an := e.analyzerFor(g)

	result := &models.ScheduleResult{
		RunID:        uuid.New(),
		Capacity:     capacity,
		TotalTasks:   len(tasks),
		LatenessDays: make(map[string]float64),
		GeneratedAt:  time.Now(),
	}

	// Readiness bookkeeping: only Finish-class predecessors gate readiness.
	// Start-class constraints bound the start instant when the predecessor
	// is already placed but never hold a task back from the ready queue.
	indegree := make(map[string]int, len(tasks))
	for _, t := range tasks {
		n := 0
		for _, c := range g.Predecessors(t.ID) {
			if c.Kind.IsFinishClass() {
				n++
			}
		}
		indegree[t.ID] = n
	}

	queue := newReadyQueue()
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			p, hasP := e.reg.Product(t.Product)
			queue.push(readyItem{
				taskID:   t.ID,
				priority: priorityFor(t, e.config.Start, p.DeliveryDate, hasP, an.downstreamMinutes(t.ID)),
			})
		}
	}

	scheduled := make(map[string]*models.ScheduleEntry, len(tasks))
	ledger := allocator.NewLedger()

	for queue.Len() > 0 {
		item := queue.pop()
		task, ok := e.reg.Task(item.taskID)
		if !ok {
			continue
		}

		teamCapacity, ok := capacity[task.Team]
		if !ok {
			result.Unscheduled = append(result.Unscheduled, models.UnscheduledTask{
				TaskID:  task.ID,
				Product: task.Product,
				Reason:  ReasonNoCapacity,
			})
			metrics.TasksUnscheduled.WithLabelValues(ReasonNoCapacity).Inc()
			continue
		}

		earliest := e.earliestStart(ctx, g, task, scheduled)

		alloc, err := e.alloc.NextFeasible(allocator.Request{
			Team:            task.Team,
			Product:         task.Product,
			DurationMinutes: task.DurationMinutes,
			Headcount:       task.Headcount,
			Capacity:        teamCapacity,
			Earliest:        earliest,
		}, ledger)
		if err != nil {
			attempts := item.attempts + 1
			if attempts < e.config.Retry.MaxAttempts {
				item.attempts = attempts
				item.priority += e.config.Retry.PriorityPenalty
				queue.push(item)
				continue
			}
			log.WithError(err).Warnf("Task %s unscheduled after %d attempts", task.ID, attempts)
			result.Unscheduled = append(result.Unscheduled, models.UnscheduledTask{
				TaskID:   task.ID,
				Product:  task.Product,
				Reason:   ReasonAllocationExhausted,
				Attempts: attempts,
			})
			metrics.TasksUnscheduled.WithLabelValues(ReasonAllocationExhausted).Inc()
			continue
		}

		ledger.Commit(task.Team, alloc, task.Headcount)

		slack := an.slackHours(task.ID, task.Product, alloc.Start)
		entry := &models.ScheduleEntry{
			TaskID:          task.ID,
			Product:         task.Product,
			Kind:            task.Kind,
			Team:            task.Team,
			Shift:           alloc.Shift,
			Start:           alloc.Start,
			End:             alloc.End,
			DurationMinutes: task.DurationMinutes,
			Headcount:       task.Headcount,
			Priority:        item.priority,
			SlackHours:      slack,
			IsCritical:      slack < e.config.CriticalSlackHours,
		}
		scheduled[task.ID] = entry

		// Unblock successors.
		for _, c := range g.Successors(task.ID) {
			if !c.Kind.IsFinishClass() {
				continue
			}
			indegree[c.Second]--
			if indegree[c.Second] == 0 {
				succ, ok := e.reg.Task(c.Second)
				if !ok {
					continue
				}
				p, hasP := e.reg.Product(succ.Product)
				queue.push(readyItem{
					taskID:   succ.ID,
					priority: priorityFor(succ, e.config.Start, p.DeliveryDate, hasP, an.downstreamMinutes(succ.ID)),
				})
			}
		}
	}

	// Anything still blocked sits behind an unscheduled predecessor.
	for _, t := range tasks {
		if _, ok := scheduled[t.ID]; ok {
			continue
		}
		if hasUnscheduledReason(result.Unscheduled, t.ID) {
			continue
		}
		result.Unscheduled = append(result.Unscheduled, models.UnscheduledTask{
			TaskID:  t.ID,
			Product: t.Product,
			Reason:  ReasonBlocked,
		})
		metrics.TasksUnscheduled.WithLabelValues(ReasonBlocked).Inc()
	}

	result.Entries = make([]models.ScheduleEntry, 0, len(scheduled))
	for _, entry := range scheduled {
		result.Entries = append(result.Entries, *entry)
	}
	sort.Slice(result.Entries, func(i, j int) bool {
		if !result.Entries[i].Start.Equal(result.Entries[j].Start) {
			return result.Entries[i].Start.Before(result.Entries[j].Start)
		}
		return result.Entries[i].TaskID < result.Entries[j].TaskID
	})

	e.summarize(result)

	outcome := "complete"
	if !result.Complete() {
		outcome = "partial"
	}
	metrics.RecordScheduleRun("run", outcome, time.Since(started).Seconds())
	metrics.TasksScheduled.Add(float64(len(result.Entries)))

	log.WithFields(map[string]any{
		"run_id":      result.RunID,
		"scheduled":   len(result.Entries),
		"unscheduled": len(result.Unscheduled),
		"makespan":    result.MakespanDays,
	}).Info("Scheduling run finished")

	return result, nil
}

// earliestStart folds predecessor constraints into the task's earliest
// feasible start. Equality constraints pin the start and dominate inequality
// bounds; conflicting Start = Start pins warn and keep the latest instant.
func (e *Engine) earliestStart(ctx context.Context, g *graph.Graph, task *models.TaskInstance, scheduled map[string]*models.ScheduleEntry) time.Time {
	earliest := e.config.Start
	if !task.EarliestStart.IsZero() && task.EarliestStart.After(earliest) {
		earliest = task.EarliestStart
	}

	duration := time.Duration(task.DurationMinutes) * time.Minute
	var pin time.Time
	var startPins []time.Time

	for _, c := range g.Predecessors(task.ID) {
		pred, ok := scheduled[c.First]
		if !ok {
			continue
		}

		var bound time.Time
		switch c.Kind {
		case models.RelationFinishStart:
			bound = pred.End
		case models.RelationFinishEqualsStart:
			if pred.End.After(pin) {
				pin = pred.End
			}
			continue
		case models.RelationFinishFinish:
			bound = pred.End.Add(-duration)
		case models.RelationStartStart:
			bound = pred.Start
		case models.RelationStartEqualsStart:
			startPins = append(startPins, pred.Start)
			continue
		case models.RelationStartFinish:
			bound = pred.Start.Add(-duration)
		}
		if bound.After(earliest) {
			earliest = bound
		}
	}

	if len(startPins) > 0 {
		latest := startPins[0]
		conflicting := false
		for _, p := range startPins[1:] {
			if !p.Equal(latest) {
				conflicting = true
			}
			if p.After(latest) {
				latest = p
			}
		}
		if conflicting {
			e.logger.WithContext(ctx).Warnf(
				"Task %s has conflicting Start = Start pins, keeping latest %s",
				task.ID, latest.Format(time.RFC3339))
		}
		if latest.After(pin) {
			pin = latest
		}
	}

	if !pin.IsZero() {
		// Equality dominates; only the horizon start may override.
		if pin.After(e.config.Start) {
			return pin
		}
		return e.config.Start
	}
	return earliest
}

// summarize fills makespan and per-product lateness. Incomplete runs report
// the sentinel.
func (e *Engine) summarize(result *models.ScheduleResult) {
	productEnds := make(map[string]time.Time)
	var lastEnd time.Time
	for _, entry := range result.Entries {
		if entry.End.After(lastEnd) {
			lastEnd = entry.End
		}
		if entry.End.After(productEnds[entry.Product]) {
			productEnds[entry.Product] = entry.End
		}
	}

	incompleteProducts := make(map[string]struct{})
	for _, u := range result.Unscheduled {
		incompleteProducts[u.Product] = struct{}{}
	}

	if !result.Complete() {
		result.MakespanDays = models.SentinelIncomplete
	} else if !lastEnd.IsZero() {
		result.MakespanDays = float64(countWorkingDays(e.config.Start, lastEnd))
	}

	for _, p := range e.reg.Products() {
		if _, bad := incompleteProducts[p.Name]; bad {
			result.LatenessDays[p.Name] = models.SentinelIncomplete
			continue
		}
		end, ok := productEnds[p.Name]
		if !ok {
			continue
		}
		result.LatenessDays[p.Name] = end.Sub(p.DeliveryDate).Hours() / 24
	}
}

// countWorkingDays counts weekdays touched by the [start, end) span.
func countWorkingDays(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := end.Add(-time.Minute)
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location())

	days := 0
	for d := first; !d.After(lastDay); d = d.Add(24 * time.Hour) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

func hasUnscheduledReason(unscheduled []models.UnscheduledTask, taskID string) bool {
	for _, u := range unscheduled {
		if u.TaskID == taskID {
			return true
		}
	}
	return false
}
