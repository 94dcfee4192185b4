/*
 * @module service/sync_engine/sync_service
 * @description Sync pipeline: validates a trigger, serializes it per kind, and drives fetch -> map -> reconcile under a ledger run
 * @architecture Layered architecture - application service
 * @stateFlow validate -> lock kind -> Start run -> for each date chunk: fetch, map, record failures, reconcile -> Complete / Fail -> unlock
 * @rules one run per kind at a time (ErrSyncInProgress otherwise); every opened run ends success or error,
 *        including on cancellation; mapping failures never abort the run
 * @dependencies service/fetcher, service/mapper, service/distributed_lock, service/monitoring
 * @refs engine.go, ledger.go, api/controllers/sync_controller.go, service/scheduler
 */

package sync_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"backoffice-service/service/distributed_lock"
	"backoffice-service/service/fetcher"
	"backoffice-service/service/mapper"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/monitoring"
	"backoffice-service/service/utils"

	"gorm.io/gorm"
)

// Options pipeline tuning
type Options struct {
	ChunkDays     int           // date-bounded windows are fetched in chunks of this many days
	MaxWindowDays int           // largest accepted date range
	LockTTL       time.Duration // ttl of the per-kind lock
	LockRefresh   time.Duration // lock refresh interval for long runs
}

// DefaultOptions defaults used when a field is zero
func DefaultOptions() Options {
	return Options{
		ChunkDays:     31,
		MaxWindowDays: 366,
		LockTTL:       10 * time.Minute,
		LockRefresh:   time.Minute,
	}
}

// SyncRequest trigger input; dates use dd-mm-yyyy
type SyncRequest struct {
	Kind        string
	DateFrom    string
	DateTo      string
	TriggeredBy string
}

// SyncResult counters of a run
type SyncResult struct {
	RunID            string `json:"runId"`
	EntityKind       string `json:"entityKind"`
	Status           string `json:"status"`
	RecordsProcessed int    `json:"recordsProcessed"`
	RecordsInserted  int    `json:"recordsInserted"`
	RecordsUpdated   int    `json:"recordsUpdated"`
	RecordsSkipped   int    `json:"recordsSkipped"`
	RecordsFailed    int    `json:"recordsFailed"`
}

// SyncService sync pipeline
type SyncService struct {
	engine  *Engine
	ledger  *Ledger
	fetcher fetcher.Fetcher
	locks   *distributed_lock.LockExecutor
	metrics *monitoring.Metrics
	clock   utils.Clock
	opts    Options
}

// NewSyncService wires the pipeline
func NewSyncService(db *gorm.DB, f fetcher.Fetcher, locker distributed_lock.Locker, metrics *monitoring.Metrics, clock utils.Clock, opts Options) *SyncService {
	if clock == nil {
		clock = utils.RealClock{}
	}
	defaults := DefaultOptions()
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = defaults.ChunkDays
	}
	if opts.MaxWindowDays <= 0 {
		opts.MaxWindowDays = defaults.MaxWindowDays
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.LockRefresh <= 0 {
		opts.LockRefresh = defaults.LockRefresh
	}

	return &SyncService{
		engine:  NewEngine(db, clock),
		ledger:  NewLedger(db, clock),
		fetcher: f,
		locks:   distributed_lock.NewLockExecutor(locker),
		metrics: metrics,
		clock:   clock,
		opts:    opts,
	}
}

// Ledger run ledger used by the pipeline
func (s *SyncService) Ledger() *Ledger {
	return s.ledger
}

// Engine reconciliation engine used by the pipeline
func (s *SyncService) Engine() *Engine {
	return s.engine
}

// Trigger runs one sync to completion. Errors raised after the run was opened
// are returned together with the result so callers can report the run id.
func (s *SyncService) Trigger(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	kind, window, err := s.Validate(req)
	if err != nil {
		return nil, err
	}
	triggeredBy := strings.TrimSpace(req.TriggeredBy)
	if triggeredBy == "" {
		triggeredBy = meta.SyncTriggeredBySystem
	}

	var result *SyncResult
	var runErr error
	lockErr := s.locks.ExecuteWithLockAndRefresh(ctx, "sync:"+kind, s.opts.LockTTL, s.opts.LockRefresh, func() error {
		result, runErr = s.run(ctx, kind, window, triggeredBy)
		return nil
	})
	if errors.Is(lockErr, distributed_lock.ErrLockHeld) {
		return nil, ErrSyncInProgress
	}
	if lockErr != nil {
		return nil, fmt.Errorf("acquire sync lock for %s: %w", kind, lockErr)
	}
	return result, runErr
}

// Validate checks kind and date range of req
func (s *SyncService) Validate(req SyncRequest) (string, fetcher.Window, error) {
	kind, ok := meta.ParseEntityKind(req.Kind)
	if !ok {
		return "", fetcher.Window{}, &ValidationError{Field: "entityKind", Message: fmt.Sprintf("unknown entity kind %q", req.Kind)}
	}

	from, to := strings.TrimSpace(req.DateFrom), strings.TrimSpace(req.DateTo)
	if !meta.IsDateBoundedKind(kind) {
		if from != "" || to != "" {
			return "", fetcher.Window{}, &ValidationError{Field: "dateFrom", Message: fmt.Sprintf("%s is synced as a full table and takes no date range", kind)}
		}
		return kind, fetcher.Window{}, nil
	}

	if from == "" {
		return "", fetcher.Window{}, &ValidationError{Field: "dateFrom", Message: "required"}
	}
	if to == "" {
		return "", fetcher.Window{}, &ValidationError{Field: "dateTo", Message: "required"}
	}
	fromDate, err := time.Parse(meta.ExternalDateLayout, from)
	if err != nil {
		return "", fetcher.Window{}, &ValidationError{Field: "dateFrom", Message: fmt.Sprintf("invalid date %q, expected dd-mm-yyyy", from)}
	}
	toDate, err := time.Parse(meta.ExternalDateLayout, to)
	if err != nil {
		return "", fetcher.Window{}, &ValidationError{Field: "dateTo", Message: fmt.Sprintf("invalid date %q, expected dd-mm-yyyy", to)}
	}
	if toDate.Before(fromDate) {
		return "", fetcher.Window{}, &ValidationError{Field: "dateTo", Message: "must not be before dateFrom"}
	}
	if days := int(toDate.Sub(fromDate).Hours()/24) + 1; days > s.opts.MaxWindowDays {
		return "", fetcher.Window{}, &ValidationError{Field: "dateTo", Message: fmt.Sprintf("range of %d days exceeds the limit of %d", days, s.opts.MaxWindowDays)}
	}
	return kind, fetcher.Window{From: fromDate, To: toDate}, nil
}

func (s *SyncService) run(ctx context.Context, kind string, window fetcher.Window, triggeredBy string) (*SyncResult, error) {
	var dateFrom, dateTo *time.Time
	if !window.IsZero() {
		dateFrom, dateTo = &window.From, &window.To
	}

	run, err := s.ledger.Start(ctx, kind, dateFrom, dateTo, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("open sync run: %w", err)
	}
	started := s.clock.Now()
	slog.Info("sync run started",
		"kind", kind,
		"run_id", run.ID,
		"window", window.String(),
		"triggered_by", triggeredBy)

	runErr := s.execute(ctx, run, kind, window)
	if runErr == nil {
		runErr = s.ledger.Complete(ctx, run)
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(runErr, ctxErr) {
			runErr = fmt.Errorf("%w: %w", ctxErr, runErr)
		}
		if failErr := s.ledger.Fail(ctx, run, runErr); failErr != nil {
			slog.Error("failed to mark sync run as error",
				"kind", kind,
				"run_id", run.ID,
				"error", failErr)
		}
		run.Status = meta.SyncRunStatusError
		slog.Error("sync run failed",
			"kind", kind,
			"run_id", run.ID,
			"error", runErr)
	} else {
		slog.Info("sync run finished",
			"kind", kind,
			"run_id", run.ID,
			"processed", run.RecordsProcessed,
			"inserted", run.RecordsInserted,
			"updated", run.RecordsUpdated,
			"skipped", run.RecordsSkipped,
			"failed", run.RecordsFailed)
	}

	result := toSyncResult(run)
	s.metrics.ObserveSyncRun(monitoring.SyncRunOutcome{
		Kind:     kind,
		Status:   result.Status,
		Duration: s.clock.Now().Sub(started),
		Inserted: result.RecordsInserted,
		Updated:  result.RecordsUpdated,
		Skipped:  result.RecordsSkipped,
		Failed:   result.RecordsFailed,
	})
	return result, runErr
}

func (s *SyncService) execute(ctx context.Context, run *models.SyncRun, kind string, window fetcher.Window) error {
	for _, chunk := range chunkWindow(window, s.opts.ChunkDays) {
		if err := ctx.Err(); err != nil {
			return err
		}

		raws, err := s.fetcher.Fetch(ctx, kind, chunk)
		if err != nil {
			return fmt.Errorf("fetch %s %s: %w", kind, chunk.String(), err)
		}

		entities, failures := mapper.MapBatch(raws, kind)
		if len(failures) > 0 {
			slog.Warn("records rejected by mapper",
				"kind", kind,
				"run_id", run.ID,
				"window", chunk.String(),
				"failed", len(failures))
			if err := s.ledger.RecordFailures(ctx, run, failures); err != nil {
				return err
			}
		}

		if _, err := s.engine.Reconcile(ctx, kind, entities, run); err != nil {
			return err
		}
	}
	return nil
}

// chunkWindow splits an inclusive date range into consecutive chunks of at most days days
func chunkWindow(window fetcher.Window, days int) []fetcher.Window {
	if window.IsZero() || days <= 0 {
		return []fetcher.Window{window}
	}

	var chunks []fetcher.Window
	for from := window.From; !from.After(window.To); from = from.AddDate(0, 0, days) {
		to := from.AddDate(0, 0, days-1)
		if to.After(window.To) {
			to = window.To
		}
		chunks = append(chunks, fetcher.Window{From: from, To: to})
	}
	return chunks
}

func toSyncResult(run *models.SyncRun) *SyncResult {
	return &SyncResult{
		RunID:            run.ID,
		EntityKind:       run.EntityKind,
		Status:           run.Status,
		RecordsProcessed: run.RecordsProcessed,
		RecordsInserted:  run.RecordsInserted,
		RecordsUpdated:   run.RecordsUpdated,
		RecordsSkipped:   run.RecordsSkipped,
		RecordsFailed:    run.RecordsFailed,
	}
}
