package meta

// Sync run statuses
const (
	SyncRunStatusPending    = "pending"
	SyncRunStatusInProgress = "in_progress"
	SyncRunStatusSuccess    = "success"
	SyncRunStatusError      = "error"
)

var SyncRunStatuses = []MetaField{
	{
		Name:        SyncRunStatusPending,
		DisplayName: "Pending",
		Type:        "string",
		Required:    true,
	},
	{
		Name:        SyncRunStatusInProgress,
		DisplayName: "In progress",
		Type:        "string",
		Required:    true,
	},
	{
		Name:        SyncRunStatusSuccess,
		DisplayName: "Success",
		Type:        "string",
		Required:    true,
	},
	{
		Name:        SyncRunStatusError,
		DisplayName: "Error",
		Type:        "string",
		Required:    true,
	},
}

// IsTerminalSyncRunStatus success and error are final; a run in either is never mutated again
func IsTerminalSyncRunStatus(status string) bool {
	return status == SyncRunStatusSuccess || status == SyncRunStatusError
}

// Sync run trigger sources recorded as triggered_by when there is no user
const (
	SyncTriggeredByScheduler = "scheduler"
	SyncTriggeredBySystem    = "system"
)

// Per-record mapping failure codes stored on sync_run_errors
const (
	SyncErrorMissingField = "missing_field"
	SyncErrorInvalidDate  = "invalid_date"
	SyncErrorInvalidEnum  = "invalid_enum"
	SyncErrorInvalidValue = "invalid_value"
)

// ExternalDateLayout date format used by the external system (dd-mm-yyyy)
const ExternalDateLayout = "02-01-2006"

// CanonicalDateLayout date format used in stored payloads
const CanonicalDateLayout = "2006-01-02"
