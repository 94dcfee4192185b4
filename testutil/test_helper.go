/*
 * @module testutil/test_helper
 * @description Shared test infrastructure: in-memory database, data factories, fixed clock, HTTP helpers
 * @architecture Test infrastructure
 * @stateFlow open in-memory database -> create fixtures -> run test -> close
 * @rules one sqlite connection per TestDB so every query and transaction sees the same in-memory database
 * @dependencies gorm.io/gorm, gorm.io/driver/sqlite, github.com/stretchr/testify
 * @refs service/database/migrate.go, service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backoffice-service/service/database"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB test database
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB opens an in-memory sqlite database with every service table migrated
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// :memory: is per connection
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get test database handle: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB empties every table
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"entities",
		"sync_runs",
		"sync_run_errors",
		"sync_kind_statuses",
		"alerts",
		"onboarding_tasks",
		"onboarding_stages",
		"provider_notes",
		"priority_assignments",
		"provider_merge_logs",
		"providers",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close closes the connection
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// FakeClock settable clock for deterministic tests
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock clock fixed at now
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// TestDataFactory fixture factory
type TestDataFactory struct {
	DB    *gorm.DB
	Clock *FakeClock
}

// NewTestDataFactory creates a factory; timestamps are taken from clock
func NewTestDataFactory(db *gorm.DB, clock *FakeClock) *TestDataFactory {
	return &TestDataFactory{DB: db, Clock: clock}
}

// ProviderOption provider option
type ProviderOption func(*models.Provider)

// WithProviderContact sets email, phone and fiscal id
func WithProviderContact(email, phone, fiscalID string) ProviderOption {
	return func(p *models.Provider) {
		p.Email = email
		p.Phone = phone
		p.FiscalID = fiscalID
	}
}

// CreateProvider creates an active provider
func (f *TestDataFactory) CreateProvider(id, name string, opts ...ProviderOption) *models.Provider {
	now := f.Clock.Now()
	provider := &models.Provider{
		ID:        id,
		Name:      name,
		Status:    meta.ProviderStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, opt := range opts {
		opt(provider)
	}

	if err := f.DB.Create(provider).Error; err != nil {
		panic(fmt.Sprintf("failed to create test provider: %v", err))
	}
	return provider
}

// CreateStage creates an onboarding stage
func (f *TestDataFactory) CreateStage(name string) *models.OnboardingStage {
	stage := &models.OnboardingStage{
		ID:   generateID("stage"),
		Name: name,
	}
	if err := f.DB.Create(stage).Error; err != nil {
		panic(fmt.Sprintf("failed to create test stage: %v", err))
	}
	return stage
}

// TaskOption onboarding task option
type TaskOption func(*models.OnboardingTask)

// WithDueAt sets the task due time
func WithDueAt(due time.Time) TaskOption {
	return func(t *models.OnboardingTask) {
		t.DueAt = &due
	}
}

// WithLastActivity sets the task last activity time
func WithLastActivity(at time.Time) TaskOption {
	return func(t *models.OnboardingTask) {
		t.LastActivityAt = at
	}
}

// WithTaskProvider links the task to a provider
func WithTaskProvider(providerID string) TaskOption {
	return func(t *models.OnboardingTask) {
		t.ProviderID = &providerID
	}
}

// WithTaskStatus sets the task status
func WithTaskStatus(status string) TaskOption {
	return func(t *models.OnboardingTask) {
		t.Status = status
	}
}

// CreateTask creates a pending onboarding task with recent activity
func (f *TestDataFactory) CreateTask(id, stageID string, opts ...TaskOption) *models.OnboardingTask {
	now := f.Clock.Now()
	task := &models.OnboardingTask{
		ID:             id,
		StageID:        stageID,
		Title:          "task " + id,
		LastActivityAt: now,
		Status:         meta.TaskStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, opt := range opts {
		opt(task)
	}

	if err := f.DB.Create(task).Error; err != nil {
		panic(fmt.Sprintf("failed to create test task: %v", err))
	}
	return task
}

// CreateEntity stores an entity row directly, bypassing reconciliation
func (f *TestDataFactory) CreateEntity(kind, sourceID string, payload models.JSONB, providerID *string) *models.Entity {
	now := f.Clock.Now()
	entity := &models.Entity{
		Kind:       kind,
		SourceID:   sourceID,
		Payload:    payload,
		ProviderID: providerID,
		UpdatedAt:  now,
		SyncedAt:   now,
	}
	if err := f.DB.Create(entity).Error; err != nil {
		panic(fmt.Sprintf("failed to create test entity: %v", err))
	}
	return entity
}

var idSeq int64

func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, atomic.AddInt64(&idSeq, 1))
}

// NewJSONRequest builds a request with a JSON body and bearer token
func NewJSONRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, url, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// DecodeEnvelope asserts the status code and decodes the {status, msg, data} envelope
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
