// Package solver defines the boundary for exact interval-model solvers. The
// heuristic engine serves all runs by default; deployments with access to a
// constraint-programming backend inject an implementation through
// optimize.Optimizer.WithSolver.
package solver

import (
	"context"

	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/models"
)

// Solver builds an interval model from the constraint graph and capacity
// configuration and returns a complete schedule.
type Solver interface {
	Solve(ctx context.Context, g *graph.Graph, capacity models.CapacityConfig) (*models.ScheduleResult, error)
}
