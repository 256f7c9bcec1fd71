package handlers

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/optimize"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// OptimizeHandler handles capacity optimization API endpoints
type OptimizeHandler struct {
	optimizer *optimize.Optimizer
	logger    ectologger.Logger
}

// NewOptimizeHandler creates a new optimize handler
func NewOptimizeHandler(optimizer *optimize.Optimizer, logger ectologger.Logger) *OptimizeHandler {
	return &OptimizeHandler{optimizer: optimizer, logger: logger}
}

// OptimizeRequest represents a targeted optimization request body. The
// target is the worst acceptable per-product delivery slip in days; negative
// values demand early delivery, so a pointer distinguishes an explicit zero
// from a missing field.
type OptimizeRequest struct {
	TargetLatenessDays *float64 `json:"target_lateness_days" validate:"required"`
}

// Register registers optimization routes
func (h *OptimizeHandler) Register(g *echo.Group) {
	g.POST("/baseline", h.Baseline)
	g.POST("/uniform", h.Uniform)
	g.POST("/targeted", h.Targeted)
}

// Baseline runs the schedule with registered capacities untouched
func (h *OptimizeHandler) Baseline(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OptimizeHandler.Baseline")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	result, err := h.optimizer.Baseline(ctx)
	if err != nil {
		return mapOptimizeError(err)
	}
	return SuccessResponse(c, result)
}

// Uniform binary-searches the smallest uniform capacity preserving the best
// achievable makespan
func (h *OptimizeHandler) Uniform(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OptimizeHandler.Uniform")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	result, err := h.optimizer.Uniform(ctx)
	if err != nil {
		return mapOptimizeError(err)
	}
	return SuccessResponse(c, result)
}

// Targeted anneals per-team capacity adjustments toward the lateness target
func (h *OptimizeHandler) Targeted(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "OptimizeHandler.Targeted")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req OptimizeRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.optimizer.Targeted(ctx, *req.TargetLatenessDays)
	if err != nil {
		return mapOptimizeError(err)
	}
	return SuccessResponse(c, result)
}

func mapOptimizeError(err error) error {
	var infeasible *optimize.InfeasibleError
	if errors.As(err, &infeasible) {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, infeasible.Error())
	}
	return mapEngineError(err)
}
