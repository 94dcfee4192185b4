/**
 * @module SchedulerService
 * @description Cron scheduler for the periodic alert scan and configured sync jobs
 * @architecture robfig/cron with a seconds field; every job runs under a distributed lock
 * @stateFlow Start -> register jobs -> cron fires -> TryLock -> run -> unlock; Stop waits for running jobs
 * @rules a job whose lock is held by another instance is skipped, not queued; date-bounded sync jobs use a trailing window ending today
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/alerting/generator.go, service/sync_engine/sync_service.go
 */

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backoffice-service/service/alerting"
	"backoffice-service/service/distributed_lock"
	"backoffice-service/service/meta"
	"backoffice-service/service/sync_engine"
	"backoffice-service/service/utils"

	"github.com/robfig/cron/v3"
)

// AlertLockKey lock shared by every instance running the alert job
const AlertLockKey = "alerts"

// AlertRunner runs both alert scans
type AlertRunner interface {
	Run(ctx context.Context) (*alerting.RunResult, error)
}

// SyncTrigger starts a sync run
type SyncTrigger interface {
	Trigger(ctx context.Context, req sync_engine.SyncRequest) (*sync_engine.SyncResult, error)
}

// SyncJob periodic sync of one entity kind
type SyncJob struct {
	Kind         string `yaml:"kind"`
	Cron         string `yaml:"cron"`
	LookbackDays int    `yaml:"lookback_days"` // date-bounded kinds only
}

// Config scheduler configuration; an empty AlertCron disables the alert job
type Config struct {
	AlertCron    string
	AlertLockTTL time.Duration
	SyncJobs     []SyncJob
}

// NewParser cron parser accepting an optional seconds field
func NewParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// SchedulerService scheduler service
type SchedulerService struct {
	cfg    Config
	alerts AlertRunner
	syncs  SyncTrigger
	locks  *distributed_lock.LockExecutor
	clock  utils.Clock
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSchedulerService creates the scheduler; jobs are registered by Start
func NewSchedulerService(cfg Config, alerts AlertRunner, syncs SyncTrigger, locker distributed_lock.Locker, clock utils.Clock) *SchedulerService {
	if clock == nil {
		clock = utils.RealClock{}
	}
	if cfg.AlertLockTTL <= 0 {
		cfg.AlertLockTTL = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &SchedulerService{
		cfg:    cfg,
		alerts: alerts,
		syncs:  syncs,
		locks:  distributed_lock.NewLockExecutor(locker),
		clock:  clock,
		cron:   cron.New(cron.WithParser(NewParser()), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the configured jobs and starts the cron loop
func (s *SchedulerService) Start() error {
	if s.cfg.AlertCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.AlertCron, s.runAlertJob); err != nil {
			return fmt.Errorf("add alert job %q: %w", s.cfg.AlertCron, err)
		}
		slog.Info("alert job scheduled", "cron", s.cfg.AlertCron)
	}

	for _, job := range s.cfg.SyncJobs {
		job := job
		kind, ok := meta.ParseEntityKind(job.Kind)
		if !ok {
			return fmt.Errorf("sync job: unknown entity kind %q", job.Kind)
		}
		job.Kind = kind
		if _, err := s.cron.AddFunc(job.Cron, func() { s.runSyncJob(job) }); err != nil {
			return fmt.Errorf("add sync job %s %q: %w", kind, job.Cron, err)
		}
		slog.Info("sync job scheduled", "kind", kind, "cron", job.Cron)
	}

	s.cron.Start()
	return nil
}

// Stop stops firing jobs and waits for running ones; their context is cancelled when ctx expires
func (s *SchedulerService) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
	}
	s.cancel()
	slog.Info("scheduler stopped")
}

func (s *SchedulerService) runAlertJob() {
	var result *alerting.RunResult
	err := s.locks.ExecuteWithLock(s.ctx, AlertLockKey, s.cfg.AlertLockTTL, func() error {
		var runErr error
		result, runErr = s.alerts.Run(s.ctx)
		return runErr
	})
	switch {
	case errors.Is(err, distributed_lock.ErrLockHeld):
		slog.Debug("alert job skipped, another instance is scanning")
	case err != nil:
		slog.Error("alert job failed", "error", err)
	default:
		slog.Info("alert job finished",
			"deadline_created", result.Deadline.Created,
			"deadline_resolved", result.Deadline.Resolved,
			"stalled_created", result.Stalled.Created,
			"stalled_resolved", result.Stalled.Resolved)
	}
}

func (s *SchedulerService) runSyncJob(job SyncJob) {
	req := s.syncRequest(job)
	result, err := s.syncs.Trigger(s.ctx, req)
	switch {
	case errors.Is(err, sync_engine.ErrSyncInProgress):
		slog.Info("sync job skipped, kind is already syncing", "kind", job.Kind)
	case err != nil:
		attrs := []any{"kind", job.Kind, "error", err}
		if result != nil {
			attrs = append(attrs, "run_id", result.RunID)
		}
		slog.Error("sync job failed", attrs...)
	default:
		slog.Info("sync job finished",
			"kind", job.Kind,
			"run_id", result.RunID,
			"processed", result.RecordsProcessed)
	}
}

func (s *SchedulerService) syncRequest(job SyncJob) sync_engine.SyncRequest {
	req := sync_engine.SyncRequest{Kind: job.Kind, TriggeredBy: meta.SyncTriggeredByScheduler}
	if !meta.IsDateBoundedKind(job.Kind) {
		return req
	}
	lookback := job.LookbackDays
	if lookback <= 0 {
		lookback = 1
	}
	today := s.clock.Now()
	req.DateFrom = today.AddDate(0, 0, -(lookback - 1)).Format(meta.ExternalDateLayout)
	req.DateTo = today.Format(meta.ExternalDateLayout)
	return req
}
