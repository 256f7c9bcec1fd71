package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
	"github.com/Ramsey-B/aster/pkg/scheduler"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/validator"
)

// ScheduleHandler handles scheduling API endpoints
type ScheduleHandler struct {
	engine    *scheduler.Engine
	validator *validator.Validator
	reg       *registry.Registry
	logger    ectologger.Logger

	// Latest completed run, served by export and late-part analysis.
	mu      sync.RWMutex
	lastRun *models.ScheduleResult
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(
	engine *scheduler.Engine,
	v *validator.Validator,
	reg *registry.Registry,
	logger ectologger.Logger,
) *ScheduleHandler {
	return &ScheduleHandler{
		engine:    engine,
		validator: v,
		reg:       reg,
		logger:    logger,
	}
}

// RunRequest represents the schedule run request body
type RunRequest struct {
	// CapacityOverrides replaces selected team headcounts for this run.
	CapacityOverrides map[string]int `json:"capacity_overrides,omitempty" validate:"omitempty,dive,gt=0"`
}

// ValidateRequest represents the schedule validation request body
type ValidateRequest struct {
	CapacityOverrides map[string]int `json:"capacity_overrides,omitempty" validate:"omitempty,dive,gt=0"`
}

// ValidateResponse bundles the run summary with its validation report
type ValidateResponse struct {
	RunID        string                   `json:"run_id"`
	MakespanDays float64                  `json:"makespan_days"`
	Report       *models.ValidationReport `json:"report"`
}

// LatePartStatus reports one late part's material release and placement
type LatePartStatus struct {
	TaskID        string     `json:"task_id"`
	Product       string     `json:"product"`
	Team          string     `json:"team"`
	EarliestStart time.Time  `json:"earliest_start"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	HoldDays      *float64   `json:"hold_days,omitempty"`
}

// Register registers schedule routes
func (h *ScheduleHandler) Register(g *echo.Group) {
	g.POST("/run", h.Run)
	g.POST("/validate", h.Validate)
	g.GET("/export", h.Export)
	g.GET("/late-parts", h.LateParts)
}

// Run executes a scheduling run with the registered capacities, optionally
// overridden per team
func (h *ScheduleHandler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ScheduleHandler.Run")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req RunRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	capacity, err := h.capacityFor(req.CapacityOverrides)
	if err != nil {
		return err
	}

	result, err := h.engine.Run(ctx, capacity)
	if err != nil {
		return mapEngineError(err)
	}

	h.mu.Lock()
	h.lastRun = result
	h.mu.Unlock()

	return SuccessResponse(c, result)
}

// Validate executes a run and checks it against the dataset
func (h *ScheduleHandler) Validate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ScheduleHandler.Validate")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req ValidateRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	capacity, err := h.capacityFor(req.CapacityOverrides)
	if err != nil {
		return err
	}

	result, err := h.engine.Run(ctx, capacity)
	if err != nil {
		return mapEngineError(err)
	}

	report, err := h.validator.Validate(ctx, result, capacity)
	if err != nil {
		return mapEngineError(err)
	}

	h.mu.Lock()
	h.lastRun = result
	h.mu.Unlock()

	return SuccessResponse(c, ValidateResponse{
		RunID:        result.RunID.String(),
		MakespanDays: result.MakespanDays,
		Report:       report,
	})
}

// Export streams the latest run as CSV
func (h *ScheduleHandler) Export(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "ScheduleHandler.Export")
	defer span.End()

	h.mu.RLock()
	result := h.lastRun
	h.mu.RUnlock()
	if result == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no schedule has been produced yet")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="schedule.csv"`)
	res.WriteHeader(http.StatusOK)

	return writeScheduleCSV(res.Writer, result)
}

// LateParts reports material release dates and placements for late parts
func (h *ScheduleHandler) LateParts(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "ScheduleHandler.LateParts")
	defer span.End()

	h.mu.RLock()
	result := h.lastRun
	h.mu.RUnlock()

	statuses := make([]LatePartStatus, 0)
	for _, t := range h.reg.LateParts() {
		status := LatePartStatus{
			TaskID:        t.ID,
			Product:       t.Product,
			Team:          t.Team,
			EarliestStart: t.EarliestStart,
		}
		if result != nil {
			if entry, ok := result.Entry(t.ID); ok {
				start := entry.Start
				status.ScheduledAt = &start
				hold := start.Sub(t.EarliestStart).Hours() / 24
				status.HoldDays = &hold
			}
		}
		statuses = append(statuses, status)
	}
	return SuccessResponse(c, statuses)
}

// capacityFor merges request overrides over registered team headcounts.
// Overriding an unknown team is a client error.
func (h *ScheduleHandler) capacityFor(overrides map[string]int) (models.CapacityConfig, error) {
	capacity := h.reg.BaseCapacity()
	for team, n := range overrides {
		if _, ok := capacity[team]; !ok {
			return nil, BadRequest(fmt.Sprintf("unknown team %q in capacity_overrides", team))
		}
		capacity[team] = n
	}
	return capacity, nil
}

func mapEngineError(err error) error {
	var cycleErr *graph.CycleError
	if errors.As(err, &cycleErr) {
		return UnprocessableEntity(cycleErr.Error())
	}
	if errors.Is(err, scheduler.ErrNoTasks) {
		return BadRequest(err.Error())
	}
	return err
}

func writeScheduleCSV(w io.Writer, result *models.ScheduleResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Task ID", "Product", "Kind", "Team", "Shift", "Start", "End", "Duration (min)", "Headcount", "Priority", "Slack (hrs)", "Critical"}); err != nil {
		return err
	}
	for _, e := range result.Entries {
		record := []string{
			e.TaskID,
			e.Product,
			string(e.Kind),
			e.Team,
			e.Shift,
			e.Start.Format(time.RFC3339),
			e.End.Format(time.RFC3339),
			strconv.Itoa(e.DurationMinutes),
			strconv.Itoa(e.Headcount),
			strconv.FormatFloat(e.Priority, 'f', 1, 64),
			formatSlack(e.SlackHours),
			strconv.FormatBool(e.IsCritical),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatSlack(hours float64) string {
	if hours > 1e308 {
		return "inf"
	}
	return strconv.FormatFloat(hours, 'f', 1, 64)
}
