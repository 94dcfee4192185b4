/*
 * @module service/meta/alert
 * @description Alert kinds, subject types and trigger conditions
 * @architecture Constants layer - metadata definitions
 * @rules at most one unresolved alert per (kind, subject_id, trigger_condition)
 * @dependencies none
 * @refs service/alerting/generator.go
 */

package meta

import (
	"fmt"
	"time"
)

// Alert kinds
const (
	AlertKindDeadline = "deadline"
	AlertKindStalled  = "stalled"
)

// Alert subject types
const (
	AlertSubjectOnboardingTask = "onboarding_task"
)

// TriggerDueDatePassed condition of a deadline alert
const TriggerDueDatePassed = "due_date_passed"

// StalledTriggerCondition builds the stalled condition name from the configured threshold,
// e.g. 168h -> no_activity_7d, 36h -> no_activity_36h
func StalledTriggerCondition(threshold time.Duration) string {
	if threshold > 0 && threshold%(24*time.Hour) == 0 {
		return fmt.Sprintf("no_activity_%dd", int(threshold/(24*time.Hour)))
	}
	hours := int(threshold / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf("no_activity_%dh", hours)
}

// IsValidAlertKind validates an alert kind filter
func IsValidAlertKind(kind string) bool {
	return kind == AlertKindDeadline || kind == AlertKindStalled
}

// Onboarding task statuses
const (
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"
)

// Provider statuses
const (
	ProviderStatusActive   = "active"
	ProviderStatusInactive = "inactive"
	ProviderStatusMerged   = "merged"
)

// AlertKinds catalog served by GET /meta/alert-kinds
var AlertKinds = []MetaField{
	{
		Name:        AlertKindDeadline,
		DisplayName: "Deadline passed",
		Type:        TriggerDueDatePassed,
		Description: "Pending onboarding task whose due date has passed",
	},
	{
		Name:        AlertKindStalled,
		DisplayName: "Stalled task",
		Type:        "no_activity",
		Description: "Pending onboarding task without activity for longer than the configured threshold",
	},
}
