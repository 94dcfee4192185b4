/*
 * @module service/models/alert
 * @description Time-based alerts derived from onboarding task state
 * @architecture DDD - entity models
 * @stateFlow created (open) -> resolved on a later scan
 * @rules partial unique index keeps at most one open alert per (kind, subject_id, trigger_condition)
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/alerting/generator.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert one deadline or stalled condition raised on a subject
type Alert struct {
	ID               string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Kind             string     `json:"kind" gorm:"not null;size:20;uniqueIndex:idx_alerts_open,where:resolved_at IS NULL"`
	SubjectType      string     `json:"subject_type" gorm:"not null;size:50"`
	SubjectID        string     `json:"subject_id" gorm:"not null;type:varchar(36);index;uniqueIndex:idx_alerts_open"`
	TriggerCondition string     `json:"trigger_condition" gorm:"not null;size:64;uniqueIndex:idx_alerts_open"`
	CreatedAt        time.Time  `json:"created_at" gorm:"not null;autoCreateTime:false"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty" gorm:"index"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// IsOpen reports whether the alert is still unresolved
func (a *Alert) IsOpen() bool {
	return a.ResolvedAt == nil
}
