package scheduler

import (
	"container/heap"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Fixed priority classes for generated work. Lower values schedule first.
const (
	PriorityLatePart   = -3000
	PriorityInspection = -2000
	PriorityRework     = -1000
)

// priorityFor computes a task's scheduling priority. Generated work takes a
// fixed class; baseline work blends delivery urgency, downstream critical
// path and duration.
func priorityFor(task *models.TaskInstance, start time.Time, deliveryDate time.Time, hasDelivery bool, downstreamMinutes int) float64 {
	switch task.Kind {
	case models.TaskKindLatePart:
		return PriorityLatePart
	case models.TaskKindQualityInspection, models.TaskKindCustomerInspection:
		return PriorityInspection
	case models.TaskKindRework:
		return PriorityRework
	}

	daysToDelivery := 100.0
	if hasDelivery {
		daysToDelivery = deliveryDate.Sub(start).Hours() / 24
	}
	return (100-daysToDelivery)*20 +
		float64(10000-downstreamMinutes)*5 +
		(100-float64(task.DurationMinutes)/10)*2
}

type readyItem struct {
	taskID   string
	priority float64
	attempts int

	// seq breaks priority ties by insertion order for determinism.
	seq int
}

type readyQueue struct {
	items []readyItem
	next  int
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	heap.Init(q)
	return q
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool {
	if q.items[i].priority != q.items[j].priority {
		return q.items[i].priority < q.items[j].priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *readyQueue) Push(x any) {
	q.items = append(q.items, x.(readyItem))
}

func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func (q *readyQueue) push(item readyItem) {
	item.seq = q.next
	q.next++
	heap.Push(q, item)
}

func (q *readyQueue) pop() readyItem {
	return heap.Pop(q).(readyItem)
}
