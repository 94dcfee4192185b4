/*
 * @module service/models/sync_run
 * @description Sync run ledger rows: one row per fetch-map-reconcile execution for a kind and window
 * @architecture DDD - entity models
 * @stateFlow pending -> in_progress -> success/error
 * @rules a run is immutable once success or error; last success is materialized on SyncKindStatus
 * @dependencies gorm.io/gorm, github.com/google/uuid, service/meta
 * @refs service/sync_engine/ledger.go
 */

package models

import (
	"time"

	"backoffice-service/service/meta"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncRun one execution of the sync pipeline
type SyncRun struct {
	ID               string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EntityKind       string     `json:"entity_kind" gorm:"not null;size:32;index"`
	DateFrom         *time.Time `json:"date_from,omitempty"`
	DateTo           *time.Time `json:"date_to,omitempty"`
	TriggeredBy      string     `json:"triggered_by" gorm:"not null;size:100;default:'system'"`
	Status           string     `json:"status" gorm:"not null;size:20;index"`
	RecordsProcessed int        `json:"records_processed" gorm:"default:0"`
	RecordsInserted  int        `json:"records_inserted" gorm:"default:0"`
	RecordsUpdated   int        `json:"records_updated" gorm:"default:0"`
	RecordsSkipped   int        `json:"records_skipped" gorm:"default:0"`
	RecordsFailed    int        `json:"records_failed" gorm:"default:0"`
	StartedAt        time.Time  `json:"started_at" gorm:"not null"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty" gorm:"type:text"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"not null;autoUpdateTime:false"`

	Errors []SyncRunError `json:"errors,omitempty" gorm:"foreignKey:RunID"`
}

// BeforeCreate assigns the run id
func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.TriggeredBy == "" {
		r.TriggeredBy = meta.SyncTriggeredBySystem
	}
	return nil
}

// IsTerminal success or error
func (r *SyncRun) IsTerminal() bool {
	return meta.IsTerminalSyncRunStatus(r.Status)
}

// GetDuration run duration once finished
func (r *SyncRun) GetDuration() *time.Duration {
	if r.FinishedAt == nil {
		return nil
	}
	d := r.FinishedAt.Sub(r.StartedAt)
	return &d
}

// SyncRunError a record skipped because it could not be mapped
type SyncRunError struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RunID      string    `json:"run_id" gorm:"not null;type:varchar(36);index"`
	EntityKind string    `json:"entity_kind" gorm:"not null;size:32"`
	SourceID   string    `json:"source_id" gorm:"size:128"`
	Code       string    `json:"code" gorm:"not null;size:32"`
	Field      string    `json:"field,omitempty" gorm:"size:64"`
	Message    string    `json:"message" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;autoCreateTime:false"`
}

func (e *SyncRunError) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// SyncKindStatus materialized per-kind sync state read by the status badge
type SyncKindStatus struct {
	EntityKind       string     `json:"entity_kind" gorm:"primaryKey;size:32"`
	LastRunID        string     `json:"last_run_id" gorm:"type:varchar(36)"`
	LastRunStatus    string     `json:"last_run_status" gorm:"size:20"`
	LastRunAt        time.Time  `json:"last_run_at"`
	LastSuccessRunID *string    `json:"last_success_run_id,omitempty" gorm:"type:varchar(36)"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
}
