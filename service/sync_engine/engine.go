/*
 * @module service/sync_engine/engine
 * @description Reconciliation engine: idempotent insert/update/no-op of mapped entities keyed by (kind, source_id)
 * @architecture Layered architecture - core service layer
 * @stateFlow collapse batch -> prefetch existing rows -> insert new / update changed / skip identical -> bump run counters -> commit
 * @rules one transaction per batch; entity ids never change; absent entities are never deleted; skipped rows are not touched
 * @dependencies gorm.io/gorm, service/models, service/utils
 * @refs ledger.go, sync_service.go
 */

package sync_engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/utils"

	"gorm.io/gorm"
)

// prefetchChunk bound on the size of source_id IN (...) lists
const prefetchChunk = 500

// maxMergeDepth bound when following merged_into_id chains
const maxMergeDepth = 8

// ReconcileResult outcome counts of one batch
type ReconcileResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Engine reconciliation engine
type Engine struct {
	db    *gorm.DB
	clock utils.Clock
}

// NewEngine creates an engine
func NewEngine(db *gorm.DB, clock utils.Clock) *Engine {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Engine{db: db, clock: clock}
}

// Reconcile applies entities of kind in one transaction. When run is not nil its
// counters are incremented in that same transaction, and the batch is refused
// once the run is terminal.
func (e *Engine) Reconcile(ctx context.Context, kind string, entities []*models.Entity, run *models.SyncRun) (*ReconcileResult, error) {
	if !meta.IsValidEntityKind(kind) {
		return nil, &ValidationError{Field: "entityKind", Message: fmt.Sprintf("unknown entity kind %q", kind)}
	}
	for _, entity := range entities {
		if entity.Kind != kind {
			return nil, &ValidationError{Field: "entityKind", Message: fmt.Sprintf("entity %s has kind %q, batch kind is %q", entity.SourceID, entity.Kind, kind)}
		}
		if entity.SourceID == "" {
			return nil, &ValidationError{Field: "sourceId", Message: "entity without source id"}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch, collapsed := collapseBatch(entities)
	result := &ReconcileResult{Skipped: collapsed}
	now := e.clock.Now()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := loadExisting(tx, kind, batch)
		if err != nil {
			return newPersistenceError("load existing entities", err)
		}
		if err := resolveMergedProviders(tx, batch); err != nil {
			return newPersistenceError("resolve merged providers", err)
		}

		var inserts []*models.Entity
		for _, entity := range batch {
			current, found := existing[entity.SourceID]
			if !found {
				entity.ID = ""
				entity.UpdatedAt = now
				entity.SyncedAt = now
				if run != nil {
					entity.LastRunID = run.ID
				}
				inserts = append(inserts, entity)
				continue
			}

			if sameContent(current, entity) {
				entity.ID = current.ID
				result.Skipped++
				continue
			}

			updates := map[string]interface{}{
				"payload":     entity.Payload,
				"provider_id": entity.ProviderID,
				"updated_at":  now,
				"synced_at":   now,
			}
			if run != nil {
				updates["last_run_id"] = run.ID
			}
			if err := tx.Model(&models.Entity{}).Where("id = ?", current.ID).Updates(updates).Error; err != nil {
				return newPersistenceError("update entity "+entity.SourceID, err)
			}
			entity.ID = current.ID
			result.Updated++
		}

		if len(inserts) > 0 {
			if err := tx.CreateInBatches(inserts, 100).Error; err != nil {
				return newPersistenceError("insert entities", err)
			}
			result.Inserted = len(inserts)
		}

		if run != nil {
			return bumpRunCounters(tx, run.ID, len(entities), result, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if run != nil {
		run.RecordsProcessed += len(entities)
		run.RecordsInserted += result.Inserted
		run.RecordsUpdated += result.Updated
		run.RecordsSkipped += result.Skipped
		run.UpdatedAt = now
	}
	return result, nil
}

// collapseBatch keeps the last occurrence of each source id, in first-seen order
func collapseBatch(entities []*models.Entity) ([]*models.Entity, int) {
	index := make(map[string]int, len(entities))
	batch := make([]*models.Entity, 0, len(entities))
	for _, entity := range entities {
		if i, ok := index[entity.SourceID]; ok {
			batch[i] = entity
			continue
		}
		index[entity.SourceID] = len(batch)
		batch = append(batch, entity)
	}
	return batch, len(entities) - len(batch)
}

func loadExisting(tx *gorm.DB, kind string, batch []*models.Entity) (map[string]*models.Entity, error) {
	existing := make(map[string]*models.Entity, len(batch))
	for start := 0; start < len(batch); start += prefetchChunk {
		end := start + prefetchChunk
		if end > len(batch) {
			end = len(batch)
		}
		ids := make([]string, 0, end-start)
		for _, entity := range batch[start:end] {
			ids = append(ids, entity.SourceID)
		}

		var rows []*models.Entity
		if err := tx.Where("kind = ? AND source_id IN ?", kind, ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			existing[row.SourceID] = row
		}
	}
	return existing, nil
}

// resolveMergedProviders rewrites provider references that point at a merged
// provider to the provider it was merged into, in the column and the payload
func resolveMergedProviders(tx *gorm.DB, batch []*models.Entity) error {
	pending := make(map[string]struct{})
	for _, entity := range batch {
		if entity.ProviderID != nil && *entity.ProviderID != "" {
			pending[*entity.ProviderID] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	resolved := make(map[string]string)
	for depth := 0; depth < maxMergeDepth && len(pending) > 0; depth++ {
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}

		var merged []models.Provider
		if err := tx.Select("id", "merged_into_id").
			Where("id IN ? AND merged_into_id IS NOT NULL", ids).
			Find(&merged).Error; err != nil {
			return err
		}

		pending = make(map[string]struct{})
		for _, p := range merged {
			target := *p.MergedIntoID
			resolved[p.ID] = target
			pending[target] = struct{}{}
		}
	}

	for _, entity := range batch {
		if entity.ProviderID == nil {
			continue
		}
		id := *entity.ProviderID
		for i := 0; i < maxMergeDepth; i++ {
			next, ok := resolved[id]
			if !ok {
				break
			}
			id = next
		}
		if id != *entity.ProviderID {
			entity.SetProviderID(id)
		}
	}
	return nil
}

// sameContent compares the reconciled fields; bookkeeping columns are ignored
func sameContent(current, fresh *models.Entity) bool {
	if !equalStringPtr(current.ProviderID, fresh.ProviderID) {
		return false
	}
	if len(current.Payload) == 0 && len(fresh.Payload) == 0 {
		return true
	}
	return reflect.DeepEqual(current.Payload, fresh.Payload)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func bumpRunCounters(tx *gorm.DB, runID string, processed int, result *ReconcileResult, now time.Time) error {
	res := tx.Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", runID, meta.SyncRunStatusInProgress).
		Updates(map[string]interface{}{
			"records_processed": gorm.Expr("records_processed + ?", processed),
			"records_inserted":  gorm.Expr("records_inserted + ?", result.Inserted),
			"records_updated":   gorm.Expr("records_updated + ?", result.Updated),
			"records_skipped":   gorm.Expr("records_skipped + ?", result.Skipped),
			"updated_at":        now,
		})
	if res.Error != nil {
		return newPersistenceError("update run counters", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunTerminal
	}
	return nil
}
