/*
 * @module service/models/entity
 * @description Canonical records reconciled from the external system of record
 * @architecture DDD - entity models
 * @stateFlow raw record -> mapper -> entity -> reconcile (insert/update/no-op)
 * @rules (kind, source_id) is unique; id never changes across re-syncs of the same source_id
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/shopspring/decimal
 * @refs service/mapper, service/sync_engine/engine.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayloadProviderIDKey payload key mirroring the provider_id column
const PayloadProviderIDKey = "providerId"

// Entity one reconciled record of any kind
type Entity struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Kind       string    `json:"kind" gorm:"not null;size:32;uniqueIndex:idx_entities_kind_source,priority:1"`
	SourceID   string    `json:"source_id" gorm:"not null;size:128;uniqueIndex:idx_entities_kind_source,priority:2"`
	Payload    JSONB     `json:"payload" gorm:"type:jsonb"`
	ProviderID *string   `json:"provider_id,omitempty" gorm:"type:varchar(36);index"`
	LastRunID  string    `json:"last_run_id,omitempty" gorm:"type:varchar(36)"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"not null;autoUpdateTime:false"`
	SyncedAt   time.Time `json:"synced_at" gorm:"not null"`
}

// TableName pins the table name
func (Entity) TableName() string {
	return "entities"
}

// SetProviderID points the entity at id, in the column and in the payload when it carries the reference
func (e *Entity) SetProviderID(id string) {
	e.ProviderID = &id
	if _, ok := e.Payload[PayloadProviderIDKey]; ok {
		e.Payload[PayloadProviderIDKey] = id
	}
}

// BeforeCreate assigns the stable local id
func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// ServiceRequestPayload typed fields of a service request
type ServiceRequestPayload struct {
	Status         string `json:"status"`
	DueDate        *Date  `json:"dueDate,omitempty"`
	OpenedAt       *Date  `json:"openedAt,omitempty"`
	ClientSourceID string `json:"clientSourceId,omitempty"`
	ProviderID     string `json:"providerId,omitempty"`
	Description    string `json:"description,omitempty"`
	Priority       int64  `json:"priority,omitempty"`
}

// BillingProcessPayload typed fields of a billing process
type BillingProcessPayload struct {
	Status                 string          `json:"status"`
	Amount                 decimal.Decimal `json:"amount"`
	IssueDate              *Date           `json:"issueDate,omitempty"`
	DueDate                *Date           `json:"dueDate,omitempty"`
	ClientSourceID         string          `json:"clientSourceId,omitempty"`
	ServiceRequestSourceID string          `json:"serviceRequestSourceId,omitempty"`
}

// ClientPayload typed fields of a client
type ClientPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	FiscalID string `json:"fiscalId,omitempty"`
	City     string `json:"city,omitempty"`
}

// RecurrencePayload typed fields of a recurrence
type RecurrencePayload struct {
	Frequency              string `json:"frequency"`
	StartDate              Date   `json:"startDate"`
	EndDate                *Date  `json:"endDate,omitempty"`
	ServiceRequestSourceID string `json:"serviceRequestSourceId,omitempty"`
	ProviderID             string `json:"providerId,omitempty"`
}

// TaskPayload typed fields of a synced task
type TaskPayload struct {
	Title                  string `json:"title"`
	Status                 string `json:"status"`
	DueDate                *Date  `json:"dueDate,omitempty"`
	ServiceRequestSourceID string `json:"serviceRequestSourceId,omitempty"`
	ProviderID             string `json:"providerId,omitempty"`
}
