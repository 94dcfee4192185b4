/*
 * @module service/dedup/merger
 * @description Merges a duplicate group into one canonical provider
 * @architecture Layered architecture - business service layer
 * @stateFlow re-scan -> locate group -> check conflicts -> reassign references -> archive members -> update kept record -> merge log
 * @rules everything after the conflict check happens in one transaction; merged providers are archived, never deleted
 * @dependencies gorm.io/gorm, service/monitoring
 * @refs scanner.go, api/controllers/provider_controller.go
 */

package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/monitoring"
	"backoffice-service/service/utils"

	"gorm.io/gorm"
)

var (
	// ErrGroupNotFound the group id does not match any current duplicate group
	ErrGroupNotFound = errors.New("duplicate group not found")
	// ErrKeepNotInGroup the provider to keep is not a member of the group
	ErrKeepNotInGroup = errors.New("provider to keep is not a member of the group")
)

// Mergeable fields
const (
	FieldName     = "name"
	FieldFiscalID = "fiscalId"
	FieldEmail    = "email"
	FieldPhone    = "phone"
)

// requiredFields must agree across members or be resolved explicitly
var requiredFields = []string{FieldName, FieldFiscalID}

const entitiesTable = "entities"

// referenceTables tables besides entities whose provider_id follows a merge
var referenceTables = []string{"onboarding_tasks", "provider_notes", "priority_assignments"}

// MergeConflict required fields whose members disagree, with the distinct values found
type MergeConflict struct {
	Fields map[string][]string `json:"fields"`
}

func (e *MergeConflict) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("merge conflict on %s", strings.Join(names, ", "))
}

// InvalidResolutionError a resolution for a field that cannot be resolved
type InvalidResolutionError struct {
	Field string
}

func (e *InvalidResolutionError) Error() string {
	return fmt.Sprintf("field %q cannot be resolved", e.Field)
}

// MergeRequest merge input
type MergeRequest struct {
	GroupID     string
	KeepID      string
	Resolutions map[string]string
	MergedBy    string
}

// MergeResult merge outcome
type MergeResult struct {
	GroupID    string           `json:"groupId"`
	KeepID     string           `json:"keepId"`
	MergedIDs  []string         `json:"mergedIds"`
	Provider   models.Provider  `json:"provider"`
	Reassigned map[string]int64 `json:"reassigned"`
	LogID      string           `json:"logId"`
}

// Merger duplicate merger
type Merger struct {
	db         *gorm.DB
	scanner    *Scanner
	normalizer *Normalizer
	clock      utils.Clock
	metrics    *monitoring.Metrics
}

// NewMerger creates a merger sharing scanner's normalization
func NewMerger(db *gorm.DB, scanner *Scanner, clock utils.Clock, metrics *monitoring.Metrics) *Merger {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Merger{
		db:         db,
		scanner:    scanner,
		normalizer: scanner.normalizer,
		clock:      clock,
		metrics:    metrics,
	}
}

// Merge merges the group req.GroupID into req.KeepID
func (m *Merger) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	for field := range req.Resolutions {
		if !isMergeableField(field) {
			return nil, &InvalidResolutionError{Field: field}
		}
	}

	var result *MergeResult
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups, err := m.scanner.scanTx(tx)
		if err != nil {
			return err
		}
		group := findGroup(groups, req.GroupID)
		if group == nil {
			return ErrGroupNotFound
		}

		var keep *models.Provider
		var others []models.Provider
		for i := range group.Members {
			if group.Members[i].ID == req.KeepID {
				keep = &group.Members[i]
			} else {
				others = append(others, group.Members[i])
			}
		}
		if keep == nil {
			return ErrKeepNotInGroup
		}

		if conflict := m.conflicts(group.Members, req.Resolutions); conflict != nil {
			return conflict
		}

		merged := m.mergedProvider(*keep, others, req.Resolutions)
		mergedIDs := make([]string, len(others))
		for i, p := range others {
			mergedIDs[i] = p.ID
		}
		now := m.clock.Now()

		reassigned := make(map[string]int64, len(referenceTables)+1)
		moved, err := reassignEntities(tx, mergedIDs, keep.ID)
		if err != nil {
			return err
		}
		reassigned[entitiesTable] = moved
		for _, table := range referenceTables {
			res := tx.Table(table).Where("provider_id IN ?", mergedIDs).Update("provider_id", keep.ID)
			if res.Error != nil {
				return fmt.Errorf("reassign %s: %w", table, res.Error)
			}
			reassigned[table] = res.RowsAffected
		}

		// earlier merges into an archived member now point at the kept record
		if err := tx.Model(&models.Provider{}).
			Where("merged_into_id IN ?", mergedIDs).
			Update("merged_into_id", keep.ID).Error; err != nil {
			return fmt.Errorf("repoint merged providers: %w", err)
		}

		if err := tx.Model(&models.Provider{}).
			Where("id IN ?", mergedIDs).
			Updates(map[string]interface{}{
				"status":         meta.ProviderStatusMerged,
				"merged_into_id": keep.ID,
				"archived_at":    now,
				"updated_at":     now,
			}).Error; err != nil {
			return fmt.Errorf("archive merged providers: %w", err)
		}

		merged.UpdatedAt = now
		if err := tx.Model(&models.Provider{}).
			Where("id = ?", keep.ID).
			Updates(map[string]interface{}{
				"name":       merged.Name,
				"email":      merged.Email,
				"phone":      merged.Phone,
				"fiscal_id":  merged.FiscalID,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("update kept provider: %w", err)
		}

		entry, err := newMergeLog(group, keep.ID, mergedIDs, req, reassigned, now)
		if err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("write merge log: %w", err)
		}

		result = &MergeResult{
			GroupID:    group.ID,
			KeepID:     keep.ID,
			MergedIDs:  mergedIDs,
			Provider:   merged,
			Reassigned: reassigned,
			LogID:      entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveMerge()
	slog.Info("providers merged",
		"group_id", result.GroupID,
		"keep_id", result.KeepID,
		"merged_ids", result.MergedIDs,
		"merged_by", req.MergedBy)
	return result, nil
}

// reassignEntities moves entities of the merged providers to keepID. The payload
// copy of the reference is rewritten with the column so a re-sync compares equal.
func reassignEntities(tx *gorm.DB, mergedIDs []string, keepID string) (int64, error) {
	var rows []models.Entity
	if err := tx.Where("provider_id IN ?", mergedIDs).Order("id").Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("load entities to reassign: %w", err)
	}
	for i := range rows {
		entity := &rows[i]
		entity.SetProviderID(keepID)
		if err := tx.Model(&models.Entity{}).
			Where("id = ?", entity.ID).
			Updates(map[string]interface{}{
				"provider_id": keepID,
				"payload":     entity.Payload,
			}).Error; err != nil {
			return 0, fmt.Errorf("reassign entity %s: %w", entity.ID, err)
		}
	}
	return int64(len(rows)), nil
}

// conflicts required fields with several distinct normalized values and no resolution
func (m *Merger) conflicts(members []models.Provider, resolutions map[string]string) *MergeConflict {
	fields := make(map[string][]string)
	for _, field := range requiredFields {
		if _, ok := resolutions[field]; ok {
			continue
		}
		seen := make(map[string]bool)
		var values []string
		for _, p := range members {
			raw := providerField(p, field)
			key := m.normalizeField(field, raw)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			values = append(values, strings.TrimSpace(raw))
		}
		if len(values) > 1 && !(field == FieldName && m.namesAgree(values)) {
			fields[field] = values
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &MergeConflict{Fields: fields}
}

// namesAgree every pair of names agrees up to initials
func (m *Merger) namesAgree(names []string) bool {
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			if !m.normalizer.SameName(names[i], names[j]) {
				return false
			}
		}
	}
	return true
}

// fullestName longest name among the members; the kept name wins ties
func (m *Merger) fullestName(keep models.Provider, others []models.Provider) string {
	best := strings.TrimSpace(keep.Name)
	for _, p := range others {
		name := strings.TrimSpace(p.Name)
		if len(m.normalizer.Name(name)) > len(m.normalizer.Name(best)) {
			best = name
		}
	}
	return best
}

// mergedProvider kept record after resolutions; empty fields are filled from the other members in id order
func (m *Merger) mergedProvider(keep models.Provider, others []models.Provider, resolutions map[string]string) models.Provider {
	merged := keep
	for _, field := range []string{FieldName, FieldFiscalID, FieldEmail, FieldPhone} {
		if value, ok := resolutions[field]; ok {
			setProviderField(&merged, field, strings.TrimSpace(value))
			continue
		}
		if field == FieldName {
			merged.Name = m.fullestName(keep, others)
			continue
		}
		if strings.TrimSpace(providerField(merged, field)) != "" {
			continue
		}
		for _, p := range others {
			if value := strings.TrimSpace(providerField(p, field)); value != "" {
				setProviderField(&merged, field, value)
				break
			}
		}
	}
	return merged
}

func (m *Merger) normalizeField(field, value string) string {
	switch field {
	case FieldName:
		return m.normalizer.Name(value)
	case FieldFiscalID:
		return m.normalizer.FiscalID(value)
	case FieldEmail:
		return m.normalizer.Email(value)
	case FieldPhone:
		return m.normalizer.Phone(value)
	}
	return value
}

func newMergeLog(group *DuplicateGroup, keepID string, mergedIDs []string, req MergeRequest, reassigned map[string]int64, now time.Time) (*models.ProviderMergeLog, error) {
	snapshot := make(models.JSONBArray, 0, len(group.Members))
	for _, p := range group.Members {
		row, err := models.ToJSONB(p)
		if err != nil {
			return nil, fmt.Errorf("snapshot provider %s: %w", p.ID, err)
		}
		snapshot = append(snapshot, row)
	}
	counts, err := models.ToJSONB(reassigned)
	if err != nil {
		return nil, fmt.Errorf("encode reassigned counts: %w", err)
	}
	var resolutions models.JSONB
	if len(req.Resolutions) > 0 {
		if resolutions, err = models.ToJSONB(req.Resolutions); err != nil {
			return nil, fmt.Errorf("encode resolutions: %w", err)
		}
	}
	return &models.ProviderMergeLog{
		GroupID:     group.ID,
		KeepID:      keepID,
		MergedIDs:   models.JSONBStringArray(mergedIDs),
		Resolutions: resolutions,
		Snapshot:    snapshot,
		Reassigned:  counts,
		MergedBy:    req.MergedBy,
		CreatedAt:   now,
	}, nil
}

func findGroup(groups []DuplicateGroup, id string) *DuplicateGroup {
	for i := range groups {
		if groups[i].ID == id {
			return &groups[i]
		}
	}
	return nil
}

func isMergeableField(field string) bool {
	switch field {
	case FieldName, FieldFiscalID, FieldEmail, FieldPhone:
		return true
	}
	return false
}

func providerField(p models.Provider, field string) string {
	switch field {
	case FieldName:
		return p.Name
	case FieldFiscalID:
		return p.FiscalID
	case FieldEmail:
		return p.Email
	case FieldPhone:
		return p.Phone
	}
	return ""
}

func setProviderField(p *models.Provider, field, value string) {
	switch field {
	case FieldName:
		p.Name = value
	case FieldFiscalID:
		p.FiscalID = value
	case FieldEmail:
		p.Email = value
	case FieldPhone:
		p.Phone = value
	}
}
