/*
 * @module service/models/onboarding
 * @description Onboarding Kanban stages and tasks; written by the Kanban UI, read by the alert generator
 * @architecture DDD - entity models
 * @rules the alert generator only reads due_at, last_activity_at and status
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/alerting/generator.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OnboardingStage a Kanban column
type OnboardingStage struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name     string `json:"name" gorm:"not null;size:100"`
	Position int    `json:"position" gorm:"not null;default:0"`
}

func (s *OnboardingStage) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// OnboardingTask a card on the onboarding Kanban
type OnboardingTask struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StageID        string     `json:"stage_id" gorm:"not null;type:varchar(36);index"`
	ProviderID     *string    `json:"provider_id,omitempty" gorm:"type:varchar(36);index"`
	Title          string     `json:"title" gorm:"not null;size:255"`
	DueAt          *time.Time `json:"due_at,omitempty" gorm:"index"`
	LastActivityAt time.Time  `json:"last_activity_at" gorm:"not null;index"`
	Status         string     `json:"status" gorm:"not null;size:20;default:'pending';index"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (t *OnboardingTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
