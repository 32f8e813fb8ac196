// Package scheduler implements the scheduled jobs of the entitlement engine.
//
// EventBridge sends a MaintenancePayload to the tier-sweeper Lambda. The Task
// selects the job; ReferenceTime lets an operator replay a sweep at a fixed
// "now".
package scheduler

import "time"

// TaskType identifies which scheduled job should handle an EventBridge event.
type TaskType string

const (
	// TaskApplyDueTierChanges applies pending tier transitions whose
	// effective time has passed.
	TaskApplyDueTierChanges TaskType = "apply_due_tier_changes"
)

// MaintenancePayload is the JSON payload sent by EventBridge:
//
//	{
//	  "task": "apply_due_tier_changes",
//	  "reference_time": "2026-11-01T00:05:00Z",  // optional
//	  "batch_size": 200                          // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now". If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	// BatchSize caps the shops handled in one run. Zero means the default.
	BatchSize int `json:"batch_size,omitempty"`
}
