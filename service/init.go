/*
 * @module service/init
 * @description Service initialization: database connection, migrations and wiring of the global services
 * @architecture Layered architecture - service layer
 * @stateFlow Init at startup: connect -> migrate -> lock/publisher/fetcher -> services -> scheduler; Shutdown in reverse
 * @rules the API is only served after Init succeeded
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/prometheus/client_golang
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backoffice-service/service/alerting"
	"backoffice-service/service/config"
	"backoffice-service/service/database"
	"backoffice-service/service/dedup"
	"backoffice-service/service/distributed_lock"
	"backoffice-service/service/event"
	"backoffice-service/service/fetcher"
	"backoffice-service/service/monitoring"
	"backoffice-service/service/scheduler"
	"backoffice-service/service/sync_engine"
	"backoffice-service/service/utils"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	DB                     *gorm.DB
	GlobalConfig           *config.Config
	GlobalMetrics          *monitoring.Metrics
	GlobalLocker           distributed_lock.Locker
	GlobalAlertPublisher   event.AlertPublisher
	GlobalSyncService      *sync_engine.SyncService
	GlobalAlertGenerator   *alerting.Generator
	GlobalDuplicateScanner *dedup.Scanner
	GlobalProviderMerger   *dedup.Merger
	GlobalSchedulerService *scheduler.SchedulerService
)

// Init connects to the database and wires every service from cfg
func Init(cfg *config.Config) error {
	GlobalConfig = cfg

	if err := initDatabase(cfg.Database); err != nil {
		return err
	}
	if err := database.AutoMigrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	GlobalMetrics = monitoring.NewMetrics(prometheus.DefaultRegisterer)

	locker, err := newLocker(cfg.Lock)
	if err != nil {
		return err
	}
	GlobalLocker = locker
	GlobalAlertPublisher = newAlertPublisher(cfg.Events)

	return initServices(cfg, utils.RealClock{})
}

// initDatabase opens the postgres connection
func initDatabase(cfg config.DatabaseConfig) error {
	var err error
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	slog.Info("database connected", "host", cfg.Host, "database", cfg.Name)
	return nil
}

func newLocker(cfg config.LockConfig) (distributed_lock.Locker, error) {
	if cfg.Backend != config.LockBackendRedis {
		slog.Info("using in-process locks")
		return distributed_lock.NewLocalLock(nil), nil
	}
	lock, err := distributed_lock.NewRedisLock(distributed_lock.RedisOptions{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func newAlertPublisher(cfg config.EventsConfig) event.AlertPublisher {
	if cfg.Backend != config.EventBackendKafka {
		return event.NopPublisher{}
	}
	slog.Info("publishing alert events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return event.NewKafkaAlertPublisher(event.KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		RequiredAcks: cfg.RequiredAcks,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func newFetcher(cfg config.FetcherConfig) fetcher.Fetcher {
	if cfg.BaseURL == "" {
		slog.Warn("fetcher.base_url is not set, syncs will fetch no records")
		return fetcher.NewStaticFetcher()
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPConfig{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		SourceIDField: cfg.SourceIDField,
		Headers:       cfg.Headers,
		KindPaths:     cfg.KindPaths,
		PageSize:      cfg.PageSize,
	})
}

// initServices wires the services on DB
func initServices(cfg *config.Config, clock utils.Clock) error {
	GlobalSyncService = sync_engine.NewSyncService(DB, newFetcher(cfg.Fetcher), GlobalLocker, GlobalMetrics, clock, sync_engine.Options{
		ChunkDays:     cfg.Sync.ChunkDays,
		MaxWindowDays: cfg.Sync.MaxWindowDays,
		LockTTL:       cfg.Sync.LockTTL,
		LockRefresh:   cfg.Sync.LockRefresh,
	})
	GlobalAlertGenerator = alerting.NewGenerator(DB, clock, cfg.Alerting.StalledThreshold, GlobalAlertPublisher, GlobalMetrics)
	GlobalDuplicateScanner = dedup.NewScanner(DB, dedup.NewNormalizer(cfg.Dedup.DefaultRegion))
	GlobalProviderMerger = dedup.NewMerger(DB, GlobalDuplicateScanner, clock, GlobalMetrics)

	jobs := make([]scheduler.SyncJob, 0, len(cfg.Sync.Jobs))
	for _, job := range cfg.Sync.Jobs {
		jobs = append(jobs, scheduler.SyncJob{Kind: job.Kind, Cron: job.Cron, LookbackDays: job.LookbackDays})
	}
	GlobalSchedulerService = scheduler.NewSchedulerService(scheduler.Config{
		AlertCron:    cfg.Alerting.Cron,
		AlertLockTTL: cfg.Alerting.LockTTL,
		SyncJobs:     jobs,
	}, GlobalAlertGenerator, GlobalSyncService, GlobalLocker, clock)

	if err := GlobalSchedulerService.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	slog.Info("services initialized",
		"stalled_condition", GlobalAlertGenerator.StalledCondition(),
		"sync_jobs", len(jobs))
	return nil
}

// Ready checks the database connection
func Ready(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Shutdown stops the scheduler and releases connections
func Shutdown(ctx context.Context) {
	if GlobalSchedulerService != nil {
		GlobalSchedulerService.Stop(ctx)
	}
	if closer, ok := GlobalAlertPublisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("failed to close alert publisher", "error", err)
		}
	}
	if closer, ok := GlobalLocker.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("failed to close lock client", "error", err)
		}
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
