/*
 * @module service/sync_engine/ledger
 * @description Sync run ledger: lifecycle of sync runs and the materialized per-kind status
 * @architecture Layered architecture - core service layer
 * @stateFlow Start: pending -> in_progress; Complete: in_progress -> success; Fail: pending/in_progress -> error
 * @rules transitions are conditional updates on a non-terminal status; a terminal run is never mutated;
 *        sync_kind_statuses is written in the same transaction as the terminal transition
 * @dependencies gorm.io/gorm, service/models
 * @refs engine.go, sync_service.go, api/controllers/sync_controller.go
 */

package sync_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-service/service/mapper"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Ledger sync run ledger
type Ledger struct {
	db    *gorm.DB
	clock utils.Clock
}

// NewLedger creates a ledger
func NewLedger(db *gorm.DB, clock utils.Clock) *Ledger {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Ledger{db: db, clock: clock}
}

// Start opens a run: it is persisted as pending and then moved to in_progress
func (l *Ledger) Start(ctx context.Context, kind string, dateFrom, dateTo *time.Time, triggeredBy string) (*models.SyncRun, error) {
	if !meta.IsValidEntityKind(kind) {
		return nil, &ValidationError{Field: "entityKind", Message: fmt.Sprintf("unknown entity kind %q", kind)}
	}

	now := l.clock.Now()
	run := &models.SyncRun{
		EntityKind:  kind,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
		TriggeredBy: triggeredBy,
		Status:      meta.SyncRunStatusPending,
		StartedAt:   now,
		UpdatedAt:   now,
	}

	db := l.db.WithContext(ctx)
	if err := db.Create(run).Error; err != nil {
		return nil, newPersistenceError("create sync run", err)
	}

	res := db.Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", run.ID, meta.SyncRunStatusPending).
		Updates(map[string]interface{}{
			"status":     meta.SyncRunStatusInProgress,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, newPersistenceError("start sync run", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRunTerminal
	}
	run.Status = meta.SyncRunStatusInProgress
	return run, nil
}

// RecordFailures stores per-record mapping failures and counts them as processed and failed
func (l *Ledger) RecordFailures(ctx context.Context, run *models.SyncRun, failures []mapper.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	now := l.clock.Now()

	rows := make([]models.SyncRunError, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, models.SyncRunError{
			RunID:      run.ID,
			EntityKind: run.EntityKind,
			SourceID:   f.SourceID,
			Code:       f.Err.Code,
			Field:      f.Err.Field,
			Message:    f.Err.Error(),
			CreatedAt:  now,
		})
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SyncRun{}).
			Where("id = ? AND status = ?", run.ID, meta.SyncRunStatusInProgress).
			Updates(map[string]interface{}{
				"records_processed": gorm.Expr("records_processed + ?", len(failures)),
				"records_failed":    gorm.Expr("records_failed + ?", len(failures)),
				"updated_at":        now,
			})
		if res.Error != nil {
			return newPersistenceError("update run failure counters", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRunTerminal
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return newPersistenceError("store sync run errors", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	run.RecordsProcessed += len(failures)
	run.RecordsFailed += len(failures)
	return nil
}

// Complete marks the run successful; its counters are the ones accumulated by the engine
func (l *Ledger) Complete(ctx context.Context, run *models.SyncRun) error {
	return l.finish(ctx, run, meta.SyncRunStatusSuccess, nil)
}

// Fail marks the run as error with cause as message. It runs on a context
// detached from ctx so a cancelled trigger still closes its run.
func (l *Ledger) Fail(ctx context.Context, run *models.SyncRun, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	return l.finish(context.WithoutCancel(ctx), run, meta.SyncRunStatusError, &message)
}

func (l *Ledger) finish(ctx context.Context, run *models.SyncRun, status string, message *string) error {
	now := l.clock.Now()

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":      status,
			"finished_at": now,
			"updated_at":  now,
		}
		if message != nil {
			updates["error_message"] = *message
		}

		res := tx.Model(&models.SyncRun{}).
			Where("id = ? AND status IN ?", run.ID, []string{meta.SyncRunStatusPending, meta.SyncRunStatusInProgress}).
			Updates(updates)
		if res.Error != nil {
			return newPersistenceError("finish sync run", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.SyncRun{}).Where("id = ?", run.ID).Count(&count).Error; err != nil {
				return newPersistenceError("finish sync run", err)
			}
			if count == 0 {
				return ErrRunNotFound
			}
			return ErrRunTerminal
		}

		kindStatus := models.SyncKindStatus{
			EntityKind:    run.EntityKind,
			LastRunID:     run.ID,
			LastRunStatus: status,
			LastRunAt:     now,
		}
		columns := []string{"last_run_id", "last_run_status", "last_run_at"}
		if status == meta.SyncRunStatusSuccess {
			kindStatus.LastSuccessRunID = &run.ID
			kindStatus.LastSuccessAt = &now
			columns = append(columns, "last_success_run_id", "last_success_at")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_kind"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&kindStatus).Error; err != nil {
			return newPersistenceError("update kind status", err)
		}

		return tx.First(run, "id = ?", run.ID).Error
	})
}

// LastSuccessful most recent successful run of kind; nil when there is none
func (l *Ledger) LastSuccessful(ctx context.Context, kind string) (*models.SyncRun, error) {
	status, err := l.KindStatus(ctx, kind)
	if err != nil || status == nil || status.LastSuccessRunID == nil {
		return nil, err
	}

	var run models.SyncRun
	if err := l.db.WithContext(ctx).First(&run, "id = ?", *status.LastSuccessRunID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, newPersistenceError("load last successful run", err)
	}
	return &run, nil
}

// KindStatus materialized status row of kind; nil before the first terminal run
func (l *Ledger) KindStatus(ctx context.Context, kind string) (*models.SyncKindStatus, error) {
	var status models.SyncKindStatus
	err := l.db.WithContext(ctx).First(&status, "entity_kind = ?", kind).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newPersistenceError("load kind status", err)
	}
	return &status, nil
}

// Get run with its per-record errors
func (l *Ledger) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := l.db.WithContext(ctx).
		Preload("Errors", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, source_id ASC")
		}).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, newPersistenceError("load sync run", err)
	}
	return &run, nil
}

// List most recent runs, optionally filtered by kind
func (l *Ledger) List(ctx context.Context, kind string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := l.db.WithContext(ctx).Model(&models.SyncRun{})
	if kind != "" {
		query = query.Where("entity_kind = ?", kind)
	}

	var runs []models.SyncRun
	if err := query.Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, newPersistenceError("list sync runs", err)
	}
	return runs, nil
}
