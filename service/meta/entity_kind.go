/*
 * @module service/meta/entity_kind
 * @description Entity kinds pulled from the external system of record and their sync shape
 * @architecture Constants layer - metadata definitions
 * @stateFlow constant definition -> validation -> sync pipeline
 * @rules a kind is either date-bounded (synced per date window) or full-table
 * @dependencies none
 * @refs service/mapper, service/sync_engine, api/controllers/sync_controller.go
 */

package meta

import "strings"

// Entity kinds
const (
	EntityKindServiceRequest = "service_request"
	EntityKindBillingProcess = "billing_process"
	EntityKindClient         = "client"
	EntityKindRecurrence     = "recurrence"
	EntityKindTask           = "task"
)

// EntityKindDisplayNames display names shown on the sync status badge
var EntityKindDisplayNames = map[string]string{
	EntityKindServiceRequest: "Service requests",
	EntityKindBillingProcess: "Billing processes",
	EntityKindClient:         "Clients",
	EntityKindRecurrence:     "Recurrences",
	EntityKindTask:           "Tasks",
}

// dateBoundedKinds kinds fetched per dd-mm-yyyy window; the rest are fetched as a full table
var dateBoundedKinds = map[string]bool{
	EntityKindServiceRequest: true,
	EntityKindBillingProcess: true,
	EntityKindTask:           true,
}

// EntityKinds catalog served by GET /meta/entity-kinds
var EntityKinds = []MetaField{
	{
		Name:        EntityKindServiceRequest,
		DisplayName: EntityKindDisplayNames[EntityKindServiceRequest],
		Type:        "date_bounded",
		Required:    true,
		Description: "Service requests opened in the external system; synced by date window",
	},
	{
		Name:        EntityKindBillingProcess,
		DisplayName: EntityKindDisplayNames[EntityKindBillingProcess],
		Type:        "date_bounded",
		Required:    true,
		Description: "Billing processes; synced by date window",
	},
	{
		Name:        EntityKindClient,
		DisplayName: EntityKindDisplayNames[EntityKindClient],
		Type:        "full_table",
		Description: "Clients; always synced as a full table",
	},
	{
		Name:        EntityKindRecurrence,
		DisplayName: EntityKindDisplayNames[EntityKindRecurrence],
		Type:        "full_table",
		Description: "Recurring service schedules; always synced as a full table",
	},
	{
		Name:        EntityKindTask,
		DisplayName: EntityKindDisplayNames[EntityKindTask],
		Type:        "date_bounded",
		Required:    true,
		Description: "Tasks attached to service requests; synced by date window",
	},
}

// IsValidEntityKind reports whether kind is one of the five synced kinds
func IsValidEntityKind(kind string) bool {
	_, ok := EntityKindDisplayNames[kind]
	return ok
}

// ParseEntityKind accepts the canonical name or its URL form (service-request)
func ParseEntityKind(raw string) (string, bool) {
	kind := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	if !IsValidEntityKind(kind) {
		return "", false
	}
	return kind, true
}

// IsDateBoundedKind reports whether a sync of kind requires a dateFrom/dateTo window
func IsDateBoundedKind(kind string) bool {
	return dateBoundedKinds[kind]
}

// GetAllEntityKinds returns the kinds in a stable order
func GetAllEntityKinds() []string {
	return []string{
		EntityKindServiceRequest,
		EntityKindBillingProcess,
		EntityKindClient,
		EntityKindRecurrence,
		EntityKindTask,
	}
}
