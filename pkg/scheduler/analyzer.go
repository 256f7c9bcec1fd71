package scheduler

import (
	"math"
	"time"

	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/registry"
)

// deliveryBufferHours is held back from every deadline when computing slack.
const deliveryBufferHours = 48

// workdayMinutes converts downstream minutes of work into working days for
// slack purposes (one 8-hour shift of attention per day).
const workdayMinutes = 8 * 60

// analyzer computes downstream critical-path length and slack against product
// deadlines. Memoized per registry generation; the engine discards it when
// the dataset changes.
type analyzer struct {
	g   *graph.Graph
	reg *registry.Registry

	memo     map[string]int
	visiting map[string]bool
}

func newAnalyzer(g *graph.Graph, reg *registry.Registry) *analyzer {
	return &analyzer{
		g:        g,
		reg:      reg,
		memo:     make(map[string]int),
		visiting: make(map[string]bool),
	}
}

// downstreamMinutes returns the longest chain of successor work after the
// task, in minutes. Revisiting a node already on the walk stack terminates
// that branch, so a cyclic dataset cannot hang the analyzer.
func (a *analyzer) downstreamMinutes(taskID string) int {
	if v, ok := a.memo[taskID]; ok {
		return v
	}
	if a.visiting[taskID] {
		return 0
	}
	a.visiting[taskID] = true

	longest := 0
	for _, c := range a.g.Successors(taskID) {
		succ, ok := a.reg.Task(c.Second)
		if !ok {
			continue
		}
		chain := succ.DurationMinutes + a.downstreamMinutes(c.Second)
		if chain > longest {
			longest = chain
		}
	}

	delete(a.visiting, taskID)
	a.memo[taskID] = longest
	return longest
}

// slackHours measures how much the task can slip before the remaining
// downstream work, plus the delivery buffer, threatens the product deadline.
// Tasks without a product deadline have unbounded slack.
func (a *analyzer) slackHours(taskID string, product string, start time.Time) float64 {
	p, ok := a.reg.Product(product)
	if !ok {
		return math.Inf(1)
	}
	downstreamDays := float64(a.downstreamMinutes(taskID)) / workdayMinutes
	return p.DeliveryDate.Sub(start).Hours() - downstreamDays*24 - deliveryBufferHours
}
