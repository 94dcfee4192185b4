/*
 * @module service/alerting/generator
 * @description Derives deadline and stalled alerts for onboarding tasks from current task state
 * @architecture Layered architecture - business service layer
 * @stateFlow scan tasks -> create missing open alerts -> resolve open alerts that no longer match -> commit -> publish events
 * @rules at most one open alert per (kind, subject, trigger condition); scans are idempotent; resolution is lazy (next scan);
 *        each scan runs in one transaction; event publishing never rolls a scan back
 * @dependencies gorm.io/gorm, service/event, service/monitoring
 * @refs service/scheduler, api/controllers/alert_controller.go
 */

package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backoffice-service/service/event"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/monitoring"
	"backoffice-service/service/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultStalledThreshold inactivity after which a pending task is stalled
const DefaultStalledThreshold = 7 * 24 * time.Hour

// ScanResult counts of one scan
type ScanResult struct {
	Created  int `json:"created"`
	Resolved int `json:"resolved"`
}

// RunResult counts of a full generation pass
type RunResult struct {
	Deadline ScanResult `json:"deadline"`
	Stalled  ScanResult `json:"stalled"`
}

// Generator alert generator
type Generator struct {
	db        *gorm.DB
	clock     utils.Clock
	threshold time.Duration
	publisher event.AlertPublisher
	metrics   *monitoring.Metrics
}

// NewGenerator creates a generator; a zero threshold uses DefaultStalledThreshold
func NewGenerator(db *gorm.DB, clock utils.Clock, threshold time.Duration, publisher event.AlertPublisher, metrics *monitoring.Metrics) *Generator {
	if clock == nil {
		clock = utils.RealClock{}
	}
	if threshold <= 0 {
		threshold = DefaultStalledThreshold
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &Generator{
		db:        db,
		clock:     clock,
		threshold: threshold,
		publisher: publisher,
		metrics:   metrics,
	}
}

// StalledCondition trigger condition used for stalled alerts
func (g *Generator) StalledCondition() string {
	return meta.StalledTriggerCondition(g.threshold)
}

// Run runs the deadline scan and then the stalled scan
func (g *Generator) Run(ctx context.Context) (*RunResult, error) {
	deadline, err := g.DeadlineScan(ctx)
	if err != nil {
		return nil, err
	}
	stalled, err := g.StalledScan(ctx)
	if err != nil {
		return nil, err
	}
	return &RunResult{Deadline: *deadline, Stalled: *stalled}, nil
}

// DeadlineScan pending tasks past their due time get one open deadline alert
func (g *Generator) DeadlineScan(ctx context.Context) (*ScanResult, error) {
	now := g.clock.Now()
	return g.scan(ctx, meta.AlertKindDeadline, meta.TriggerDueDatePassed, now, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND due_at IS NOT NULL AND due_at < ?", meta.TaskStatusPending, now)
	})
}

// StalledScan pending tasks without activity for longer than the threshold get one open stalled alert
func (g *Generator) StalledScan(ctx context.Context) (*ScanResult, error) {
	now := g.clock.Now()
	cutoff := now.Add(-g.threshold)
	return g.scan(ctx, meta.AlertKindStalled, g.StalledCondition(), now, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND last_activity_at < ?", meta.TaskStatusPending, cutoff)
	})
}

// scan reconciles the open alerts of kind with the tasks selected by matching.
// Open alerts of kind with a different condition (e.g. after a threshold change) are resolved.
func (g *Generator) scan(ctx context.Context, kind, condition string, now time.Time, matching func(*gorm.DB) *gorm.DB) (*ScanResult, error) {
	result := &ScanResult{}
	var events []event.AlertEvent

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subjectIDs []string
		if err := matching(tx.Model(&models.OnboardingTask{})).Order("id").Pluck("id", &subjectIDs).Error; err != nil {
			return fmt.Errorf("select %s candidates: %w", kind, err)
		}
		wanted := make(map[string]bool, len(subjectIDs))
		for _, id := range subjectIDs {
			wanted[id] = true
		}

		var open []models.Alert
		if err := tx.Where("kind = ? AND subject_type = ? AND resolved_at IS NULL", kind, meta.AlertSubjectOnboardingTask).
			Order("created_at, id").
			Find(&open).Error; err != nil {
			return fmt.Errorf("load open %s alerts: %w", kind, err)
		}

		covered := make(map[string]bool, len(open))
		for i := range open {
			alert := &open[i]
			if alert.TriggerCondition == condition && wanted[alert.SubjectID] && !covered[alert.SubjectID] {
				covered[alert.SubjectID] = true
				continue
			}
			res := tx.Model(&models.Alert{}).
				Where("id = ? AND resolved_at IS NULL", alert.ID).
				Update("resolved_at", now)
			if res.Error != nil {
				return fmt.Errorf("resolve alert %s: %w", alert.ID, res.Error)
			}
			if res.RowsAffected == 1 {
				result.Resolved++
				events = append(events, newEvent(event.AlertActionResolved, alert, now))
			}
		}

		for _, subjectID := range subjectIDs {
			if covered[subjectID] {
				continue
			}
			alert := &models.Alert{
				Kind:             kind,
				SubjectType:      meta.AlertSubjectOnboardingTask,
				SubjectID:        subjectID,
				TriggerCondition: condition,
				CreatedAt:        now,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
			if res.Error != nil {
				return fmt.Errorf("create %s alert for %s: %w", kind, subjectID, res.Error)
			}
			if res.RowsAffected == 1 {
				result.Created++
				events = append(events, newEvent(event.AlertActionCreated, alert, now))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.metrics.ObserveAlerts(kind, result.Created, result.Resolved)
	if len(events) > 0 {
		if err := g.publisher.PublishAlerts(ctx, events); err != nil {
			slog.Warn("failed to publish alert events",
				"kind", kind,
				"count", len(events),
				"error", err)
		}
	}
	slog.Info("alert scan finished",
		"kind", kind,
		"condition", condition,
		"created", result.Created,
		"resolved", result.Resolved)
	return result, nil
}

func newEvent(action string, alert *models.Alert, at time.Time) event.AlertEvent {
	return event.AlertEvent{
		Action:           action,
		AlertID:          alert.ID,
		Kind:             alert.Kind,
		SubjectType:      alert.SubjectType,
		SubjectID:        alert.SubjectID,
		TriggerCondition: alert.TriggerCondition,
		OccurredAt:       at,
	}
}

// ListFilter filter of List
type ListFilter struct {
	Kind     string
	OpenOnly bool
	Limit    int
}

// List alerts, newest first
func (g *Generator) List(ctx context.Context, filter ListFilter) ([]models.Alert, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := g.db.WithContext(ctx).Model(&models.Alert{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.OpenOnly {
		query = query.Where("resolved_at IS NULL")
	}

	var alerts []models.Alert
	if err := query.Order("created_at DESC, id").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}
