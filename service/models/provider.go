/*
 * @module service/models/provider
 * @description Service providers and the tables that reference them
 * @architecture DDD - entity models
 * @stateFlow active/inactive -> merged (soft-archived into a canonical provider)
 * @rules a merged provider keeps its row; merged_into_id points at the canonical record
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/dedup
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Provider a service provider managed by the back-office
type Provider struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string     `json:"name" gorm:"not null;size:255"`
	Email        string     `json:"email" gorm:"size:255;index"`
	Phone        string     `json:"phone" gorm:"size:50"`
	FiscalID     string     `json:"fiscal_id" gorm:"size:32;index"`
	Status       string     `json:"status" gorm:"not null;size:20;default:'active';index"`
	MergedIntoID *string    `json:"merged_into_id,omitempty" gorm:"type:varchar(36);index"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// ProviderNote free-text note attached to a provider
type ProviderNote struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProviderID string    `json:"provider_id" gorm:"not null;type:varchar(36);index"`
	Body       string    `json:"body" gorm:"type:text"`
	CreatedBy  string    `json:"created_by" gorm:"size:100"`
	CreatedAt  time.Time `json:"created_at"`
}

func (n *ProviderNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// PriorityAssignment a priority level assigned to a provider
type PriorityAssignment struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProviderID string    `json:"provider_id" gorm:"not null;type:varchar(36);index"`
	Priority   string    `json:"priority" gorm:"not null;size:32"`
	AssignedBy string    `json:"assigned_by" gorm:"size:100"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *PriorityAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// ProviderMergeLog history of one duplicate merge
type ProviderMergeLog struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	GroupID     string           `json:"group_id" gorm:"size:64;index"`
	KeepID      string           `json:"keep_id" gorm:"not null;type:varchar(36);index"`
	MergedIDs   JSONBStringArray `json:"merged_ids" gorm:"type:jsonb"`
	Resolutions JSONB            `json:"resolutions,omitempty" gorm:"type:jsonb"`
	Snapshot    JSONBArray       `json:"snapshot" gorm:"type:jsonb"`
	Reassigned  JSONB            `json:"reassigned" gorm:"type:jsonb"`
	MergedBy    string           `json:"merged_by" gorm:"size:100"`
	CreatedAt   time.Time        `json:"created_at" gorm:"not null;autoCreateTime:false"`
}

func (l *ProviderMergeLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
