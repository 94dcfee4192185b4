/*
 * @module service/database/migrate
 * @description Database migration: creates and updates the tables of the reconciliation engine
 * @architecture Data access layer - migrations
 * @stateFlow run at startup before any service is wired
 * @rules table structure follows the gorm model definitions
 * @dependencies backoffice-service/service/models, gorm.io/gorm
 * @refs service/init.go, testutil/test_helper.go
 */

package database

import (
	"log/slog"

	"backoffice-service/service/models"

	"gorm.io/gorm"
)

// AllModels every table owned by the service, in creation order
func AllModels() []interface{} {
	return []interface{}{
		// reconciled entities and the sync ledger
		&models.Entity{},
		&models.SyncRun{},
		&models.SyncRunError{},
		&models.SyncKindStatus{},

		// onboarding and alerts
		&models.OnboardingStage{},
		&models.OnboardingTask{},
		&models.Alert{},

		// providers and their references
		&models.Provider{},
		&models.ProviderNote{},
		&models.PriorityAssignment{},
		&models.ProviderMergeLog{},
	}
}

// AutoMigrate creates or updates all tables
func AutoMigrate(db *gorm.DB) error {
	slog.Info("starting database migration")

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return err
	}

	slog.Info("database migration finished")
	return nil
}
