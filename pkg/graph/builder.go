// Package graph expands raw precedence rows into the per-instance constraint
// graph a scheduling run executes against.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

// CycleError reports a dependency cycle over finish-class edges.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is the expanded constraint set for one registry generation.
type Graph struct {
	Constraints []models.Constraint

	preds map[string][]models.Constraint
	succs map[string][]models.Constraint
}

// Predecessors returns the constraints whose second endpoint is the task.
func (g *Graph) Predecessors(taskID string) []models.Constraint {
	return g.preds[taskID]
}

// Successors returns the constraints whose first endpoint is the task.
func (g *Graph) Successors(taskID string) []models.Constraint {
	return g.succs[taskID]
}

// Builder expands and caches the constraint graph. The cache is keyed on the
// registry generation; any dataset mutation forces a rebuild.
type Builder struct {
	reg    *registry.Registry
	logger ectologger.Logger

	mu        sync.Mutex
	cached    *Graph
	cachedGen uint64
}

// NewBuilder creates a graph builder over a registry.
func NewBuilder(reg *registry.Registry, logger ectologger.Logger) *Builder {
	return &Builder{reg: reg, logger: logger}
}

// Build returns the constraint graph for the current registry generation,
// rebuilding only when the dataset changed. The returned graph is shared and
// must not be mutated.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	gen := b.reg.Generation()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil && b.cachedGen == gen {
		return b.cached, nil
	}

	g := b.expand(ctx)
	if err := validateDAG(g); err != nil {
		return nil, err
	}

	b.cached = g
	b.cachedGen = gen
	return g, nil
}

func (b *Builder) expand(ctx context.Context) *Graph {
	g := &Graph{
		preds: make(map[string][]models.Constraint),
		succs: make(map[string][]models.Constraint),
	}

	// covered tracks primaries whose inspections were already spliced into a
	// baseline chain, so the fallback pass only emits standalone pairings.
	covered := make(map[string]struct{})

	// Baseline rows expand per product; both endpoints must exist in the
	// product's remaining range.
	for _, raw := range b.reg.Constraints() {
		for _, p := range b.reg.Products() {
			first, ok1 := b.reg.Task(models.InstanceID(p.Name, raw.FirstBaseID))
			second, ok2 := b.reg.Task(models.InstanceID(p.Name, raw.SecondBaseID))
			if !ok1 || !ok2 {
				continue
			}
			b.splice(g, first, second.ID, raw.Kind, p.Name, covered)
		}
	}

	// Late-part and rework rows carry banded ids and bind to the generated
	// task's own product.
	for _, raw := range b.reg.LatePartConstraints() {
		b.addBandedConstraint(g, raw, covered)
	}
	for _, raw := range b.reg.ReworkConstraints() {
		b.addBandedConstraint(g, raw, covered)
	}

	// Standalone Finish = Start pairings for inspections no chain covered.
	b.addUncoveredInspections(g, covered)

	counts := make(map[models.RelationKind]int)
	for _, c := range g.Constraints {
		counts[c.Kind]++
	}
	b.logger.WithContext(ctx).WithFields(map[string]any{
		"constraints": len(g.Constraints),
		"kinds":       fmt.Sprintf("%v", counts),
	}).Debug("Constraint graph built")

	return g
}

// splice connects first to second, routing through the first task's quality
// and customer inspections when present. Every intermediate link is
// Finish = Start; the final link keeps the original relationship.
func (b *Builder) splice(g *Graph, first *models.TaskInstance, secondID string, kind models.RelationKind, product string, covered map[string]struct{}) {
	qiID, hasQI := b.reg.QualityInspection(first.ID)
	ccID, hasCC := b.reg.CustomerInspection(first.ID)

	switch {
	case hasQI && hasCC:
		b.add(g, first.ID, qiID, models.RelationFinishEqualsStart, product)
		b.add(g, qiID, ccID, models.RelationFinishEqualsStart, product)
		b.add(g, ccID, secondID, kind, product)
		covered[first.ID] = struct{}{}
	case hasQI:
		b.add(g, first.ID, qiID, models.RelationFinishEqualsStart, product)
		b.add(g, qiID, secondID, kind, product)
		covered[first.ID] = struct{}{}
	case hasCC:
		b.add(g, first.ID, ccID, models.RelationFinishEqualsStart, product)
		b.add(g, ccID, secondID, kind, product)
		covered[first.ID] = struct{}{}
	default:
		b.add(g, first.ID, secondID, kind, product)
	}
}

// addBandedConstraint resolves a raw row with at least one endpoint in the
// late-part or rework id bands. The banded endpoint fixes the product scope
// for the baseline side.
func (b *Builder) addBandedConstraint(g *Graph, raw models.RawConstraint, covered map[string]struct{}) {
	var product string
	if t, ok := b.resolveBanded(raw.FirstBaseID); ok {
		product = t.Product
	} else if t, ok := b.resolveBanded(raw.SecondBaseID); ok {
		product = t.Product
	} else {
		return
	}

	first, ok := b.resolveBandedScoped(raw.FirstBaseID, product)
	if !ok {
		return
	}
	second, ok := b.resolveBandedScoped(raw.SecondBaseID, product)
	if !ok {
		return
	}
	b.splice(g, first, second.ID, raw.Kind, product, covered)
}

func (b *Builder) resolveBanded(baseID int) (*models.TaskInstance, bool) {
	switch {
	case baseID >= models.ReworkIDBand:
		return b.reg.Task(models.ReworkID(baseID))
	case baseID >= models.LatePartIDBand:
		return b.reg.Task(models.LatePartID(baseID))
	default:
		return nil, false
	}
}

func (b *Builder) resolveBandedScoped(baseID int, product string) (*models.TaskInstance, bool) {
	switch {
	case baseID >= models.ReworkIDBand:
		return b.reg.Task(models.ReworkID(baseID))
	case baseID >= models.LatePartIDBand:
		return b.reg.Task(models.LatePartID(baseID))
	default:
		return b.reg.Task(models.InstanceID(product, baseID))
	}
}

func (b *Builder) addUncoveredInspections(g *Graph, covered map[string]struct{}) {
	qi := b.reg.QualityInspections()
	cc := b.reg.CustomerInspections()

	primaries := make([]string, 0, len(qi)+len(cc))
	seen := make(map[string]struct{})
	for id := range qi {
		primaries = append(primaries, id)
		seen[id] = struct{}{}
	}
	for id := range cc {
		if _, dup := seen[id]; !dup {
			primaries = append(primaries, id)
		}
	}
	sort.Strings(primaries)

	for _, primaryID := range primaries {
		if _, ok := covered[primaryID]; ok {
			continue
		}
		primary, ok := b.reg.Task(primaryID)
		if !ok {
			continue
		}
		prev := primaryID
		if qiID, has := qi[primaryID]; has {
			b.add(g, prev, qiID, models.RelationFinishEqualsStart, primary.Product)
			prev = qiID
		}
		if ccID, has := cc[primaryID]; has {
			b.add(g, prev, ccID, models.RelationFinishEqualsStart, primary.Product)
		}
	}
}

func (b *Builder) add(g *Graph, first, second string, kind models.RelationKind, product string) {
	c := models.Constraint{First: first, Second: second, Kind: kind, Product: product}
	g.Constraints = append(g.Constraints, c)
	g.succs[first] = append(g.succs[first], c)
	g.preds[second] = append(g.preds[second], c)
}

// validateDAG rejects cycles over finish-class edges. Start-class relations
// permit overlap and cannot deadlock a run, so they are excluded.
func validateDAG(g *Graph) error {
	adj := make(map[string][]string)
	for _, c := range g.Constraints {
		if c.Kind.IsFinishClass() {
			adj[c.First] = append(adj[c.First], c.Second)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string

	var visit func(node string) *CycleError
	visit = func(node string) *CycleError {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range adj[node] {
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				// Trim the stack to the cycle entry point.
				start := 0
				for i, id := range stack {
					if id == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), next)
				return &CycleError{Cycle: cycle}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		return nil
	}

	nodes := make([]string, 0, len(adj))
	for node := range adj {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if color[node] == white {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}
