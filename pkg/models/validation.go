package models

import "time"

// CapacityViolation records a sampled instant where a team's concurrent
// headcount exceeded its capacity.
type CapacityViolation struct {
	Team     string    `json:"team"`
	At       time.Time `json:"at"`
	Used     int       `json:"used"`
	Capacity int       `json:"capacity"`
}

// PrecedenceViolation records a constraint the placed schedule does not
// satisfy.
type PrecedenceViolation struct {
	First   string       `json:"first"`
	Second  string       `json:"second"`
	Kind    RelationKind `json:"kind"`
	Detail  string       `json:"detail"`
	Product string       `json:"product"`
}

// LatePartViolation records a late-part task placed before its material was
// available.
type LatePartViolation struct {
	TaskID        string    `json:"task_id"`
	Start         time.Time `json:"start"`
	EarliestStart time.Time `json:"earliest_start"`
}

// ValidationReport is the structured outcome of schedule validation.
type ValidationReport struct {
	IsValid              bool                  `json:"is_valid"`
	MissingTasks         []string              `json:"missing_tasks"`
	CapacityViolations   []CapacityViolation   `json:"capacity_violations"`
	PrecedenceViolations []PrecedenceViolation `json:"precedence_violations"`
	LatePartViolations   []LatePartViolation   `json:"late_part_violations"`
}
