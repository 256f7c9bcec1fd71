// Package registry holds the loaded scheduling dataset: task instances,
// products, resource teams, calendars and inspection requirements.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

const holidayDateFormat = "2006-01-02"

// Registry is the in-memory dataset a scheduling run reads from. All
// mutations bump a generation counter so derived caches (constraint graph,
// critical-path memo) know when to rebuild.
type Registry struct {
	mu         sync.RWMutex
	generation uint64

	tasks       map[string]*models.TaskInstance
	taskOrder   []string
	products    map[string]models.Product
	teams       map[string]models.Team
	shifts      []models.ShiftDefinition
	constraints []models.RawConstraint

	// holidays maps product -> set of non-working dates (keyed YYYY-MM-DD).
	holidays map[string]map[string]struct{}

	// qualityReqs / customerReqs map primary instance id -> inspection
	// instance id.
	qualityReqs  map[string]string
	customerReqs map[string]string

	// lateConstraints and reworkConstraints attach generated work to
	// baseline successors, keyed by base id bands.
	lateConstraints   []models.RawConstraint
	reworkConstraints []models.RawConstraint
}

// New returns an empty registry with the default three-shift pattern.
func New() *Registry {
	return &Registry{
		tasks:        make(map[string]*models.TaskInstance),
		products:     make(map[string]models.Product),
		teams:        make(map[string]models.Team),
		shifts:       models.DefaultShifts(),
		holidays:     make(map[string]map[string]struct{}),
		qualityReqs:  make(map[string]string),
		customerReqs: make(map[string]string),
	}
}

// Generation returns the current mutation counter.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registry) bump() {
	r.generation++
}

// AddTask registers a task instance. Re-adding an id overwrites the previous
// instance.
func (r *Registry) AddTask(task *models.TaskInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; !exists {
		r.taskOrder = append(r.taskOrder, task.ID)
	}
	r.tasks[task.ID] = task
	r.bump()
}

// Task returns the instance for an id.
func (r *Registry) Task(id string) (*models.TaskInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Tasks returns all instances in insertion order.
func (r *Registry) Tasks() []*models.TaskInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.TaskInstance, 0, len(r.taskOrder))
	for _, id := range r.taskOrder {
		out = append(out, r.tasks[id])
	}
	return out
}

// TaskCount returns the number of registered instances.
func (r *Registry) TaskCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// SetProduct registers a product.
func (r *Registry) SetProduct(p models.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.Name] = p
	r.bump()
}

// Product returns a product by name.
func (r *Registry) Product(name string) (models.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[name]
	return p, ok
}

// Products returns all products sorted by name for deterministic iteration.
func (r *Registry) Products() []models.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddTeam registers a resource team.
func (r *Registry) AddTeam(t models.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[t.Name] = t
	r.bump()
}

// Team returns a team by name.
func (r *Registry) Team(name string) (models.Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[name]
	return t, ok
}

// Teams returns all teams sorted by name.
func (r *Registry) Teams() []models.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Team, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BaseCapacity builds the capacity configuration from registered team
// headcounts.
func (r *Registry) BaseCapacity() models.CapacityConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(models.CapacityConfig, len(r.teams))
	for name, t := range r.teams {
		out[name] = t.Capacity
	}
	return out
}

// SetShifts replaces the shift pattern.
func (r *Registry) SetShifts(shifts []models.ShiftDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shifts = shifts
	r.bump()
}

// Shifts returns the shift pattern.
func (r *Registry) Shifts() []models.ShiftDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shifts
}

// TeamShifts returns the shift windows a team works. A team with no explicit
// shift list works all shifts.
func (r *Registry) TeamShifts(team string) []models.ShiftDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[team]
	if !ok || len(t.Shifts) == 0 {
		return r.shifts
	}
	named := make(map[string]struct{}, len(t.Shifts))
	for _, name := range t.Shifts {
		named[name] = struct{}{}
	}
	out := make([]models.ShiftDefinition, 0, len(t.Shifts))
	for _, s := range r.shifts {
		if _, ok := named[s.Name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AddConstraint appends a baseline precedence row.
func (r *Registry) AddConstraint(c models.RawConstraint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constraints = append(r.constraints, c)
	r.bump()
}

// Constraints returns the baseline precedence rows.
func (r *Registry) Constraints() []models.RawConstraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.constraints
}

// AddLatePartConstraint appends a precedence row whose first endpoint lives
// in the late-part id band.
func (r *Registry) AddLatePartConstraint(c models.RawConstraint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lateConstraints = append(r.lateConstraints, c)
	r.bump()
}

// LatePartConstraints returns the late-part precedence rows.
func (r *Registry) LatePartConstraints() []models.RawConstraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lateConstraints
}

// AddReworkConstraint appends a precedence row whose first endpoint lives in
// the rework id band.
func (r *Registry) AddReworkConstraint(c models.RawConstraint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reworkConstraints = append(r.reworkConstraints, c)
	r.bump()
}

// ReworkConstraints returns the rework precedence rows.
func (r *Registry) ReworkConstraints() []models.RawConstraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reworkConstraints
}

// AddHoliday marks a date non-working for one product.
func (r *Registry) AddHoliday(product string, day time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holidays[product] == nil {
		r.holidays[product] = make(map[string]struct{})
	}
	r.holidays[product][day.Format(holidayDateFormat)] = struct{}{}
	r.bump()
}

// IsHoliday reports whether the date is a holiday for the product.
func (r *Registry) IsHoliday(product string, day time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.holidays[product]
	if !ok {
		return false
	}
	_, hit := set[day.Format(holidayDateFormat)]
	return hit
}

// RequireQualityInspection pairs a primary instance with its quality
// inspection instance.
func (r *Registry) RequireQualityInspection(primaryID, inspectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qualityReqs[primaryID] = inspectionID
	r.bump()
}

// QualityInspection returns the quality inspection paired with a primary
// instance.
func (r *Registry) QualityInspection(primaryID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.qualityReqs[primaryID]
	return id, ok
}

// QualityInspections returns the full primary -> inspection pairing.
func (r *Registry) QualityInspections() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.qualityReqs))
	for k, v := range r.qualityReqs {
		out[k] = v
	}
	return out
}

// RequireCustomerInspection pairs a primary instance with its customer
// inspection instance.
func (r *Registry) RequireCustomerInspection(primaryID, inspectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customerReqs[primaryID] = inspectionID
	r.bump()
}

// CustomerInspection returns the customer inspection paired with a primary
// instance.
func (r *Registry) CustomerInspection(primaryID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.customerReqs[primaryID]
	return id, ok
}

// CustomerInspections returns the full primary -> inspection pairing.
func (r *Registry) CustomerInspections() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.customerReqs))
	for k, v := range r.customerReqs {
		out[k] = v
	}
	return out
}

// LateParts returns all late-part task instances in insertion order.
func (r *Registry) LateParts() []*models.TaskInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.TaskInstance, 0)
	for _, id := range r.taskOrder {
		if r.tasks[id].Kind == models.TaskKindLatePart {
			out = append(out, r.tasks[id])
		}
	}
	return out
}
