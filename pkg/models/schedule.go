package models

import (
	"time"

	"github.com/google/uuid"
)

// SentinelIncomplete is reported for makespan and lateness when the run left
// work unscheduled.
const SentinelIncomplete = 999999

// ScheduleEntry is one placed task in a schedule.
type ScheduleEntry struct {
	TaskID  string   `json:"task_id"`
	Product string   `json:"product"`
	Kind    TaskKind `json:"kind"`
	Team    string   `json:"team"`

	// Shift is the shift window the placement starts in.
	Shift string `json:"shift"`

	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration"`
	Headcount       int       `json:"headcount"`
	Priority        float64   `json:"priority"`
	SlackHours      float64   `json:"slack_hours"`
	IsCritical      bool      `json:"is_critical"`
}

// UnscheduledTask records work the run could not place.
type UnscheduledTask struct {
	TaskID   string `json:"task_id"`
	Product  string `json:"product"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// ScheduleResult is the outcome of one scheduling run.
type ScheduleResult struct {
	RunID       uuid.UUID         `json:"run_id"`
	Entries     []ScheduleEntry   `json:"entries"`
	Unscheduled []UnscheduledTask `json:"unscheduled"`

	// MakespanDays counts the working days spanned by the schedule.
	// SentinelIncomplete when any task is unscheduled.
	MakespanDays float64 `json:"makespan_days"`

	// LatenessDays maps product to delivery slip in days; negative means
	// the product finishes early.
	LatenessDays map[string]float64 `json:"per_product_lateness"`

	Capacity    CapacityConfig `json:"capacity"`
	TotalTasks  int            `json:"total_tasks"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Complete reports whether every task was placed.
func (r *ScheduleResult) Complete() bool {
	return len(r.Unscheduled) == 0
}

// Entry returns the placed entry for a task id, if any.
func (r *ScheduleResult) Entry(taskID string) (*ScheduleEntry, bool) {
	for i := range r.Entries {
		if r.Entries[i].TaskID == taskID {
			return &r.Entries[i], true
		}
	}
	return nil, false
}
