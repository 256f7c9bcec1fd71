// Package models defines the core scheduling domain types.
package models

import (
	"fmt"
	"time"
)

// TaskKind classifies a task instance.
type TaskKind string

const (
	TaskKindBaseline           TaskKind = "baseline"
	TaskKindLatePart           TaskKind = "late_part"
	TaskKindRework             TaskKind = "rework"
	TaskKindQualityInspection  TaskKind = "quality_inspection"
	TaskKindCustomerInspection TaskKind = "customer_inspection"
)

// Base task id bands for generated work.
const (
	LatePartIDBand = 1000
	ReworkIDBand   = 2000
)

// TaskInstance is a single unit of schedulable work, scoped to a product.
type TaskInstance struct {
	// ID is the product-scoped instance id, e.g. "UNIT1_42", "LP_1042",
	// "RW_2042", "UNIT1_QI_42", "RW_QI_2042", "UNIT1_CC_42".
	ID string

	// BaseID is the numeric task id the instance was derived from.
	BaseID int

	Product         string
	Kind            TaskKind
	Name            string
	DurationMinutes int
	Team            string

	// Headcount is the number of people the task occupies for its full duration.
	Headcount int

	// EarliestStart constrains the task to start no earlier than this
	// instant. Zero means unconstrained. Set for late parts (on-dock date
	// plus the configured delay, floored to the working-day start).
	EarliestStart time.Time
}

// IsInspection reports whether the task is a quality or customer inspection.
func (t *TaskInstance) IsInspection() bool {
	return t.Kind == TaskKindQualityInspection || t.Kind == TaskKindCustomerInspection
}

// InstanceID returns the product-scoped id for a baseline task.
func InstanceID(product string, baseID int) string {
	return fmt.Sprintf("%s_%d", product, baseID)
}

// LatePartID returns the instance id for a late-part task.
func LatePartID(baseID int) string {
	return fmt.Sprintf("LP_%d", baseID)
}

// ReworkID returns the instance id for a rework task.
func ReworkID(baseID int) string {
	return fmt.Sprintf("RW_%d", baseID)
}

// QualityInspectionID returns the instance id for the quality inspection of a
// primary task instance. Rework primaries use the RW_QI namespace.
func QualityInspectionID(primary *TaskInstance) string {
	if primary.Kind == TaskKindRework {
		return fmt.Sprintf("RW_QI_%d", primary.BaseID)
	}
	return fmt.Sprintf("%s_QI_%d", primary.Product, primary.BaseID)
}

// CustomerInspectionID returns the instance id for the customer inspection of
// a primary task instance.
func CustomerInspectionID(primary *TaskInstance) string {
	return fmt.Sprintf("%s_CC_%d", primary.Product, primary.BaseID)
}
