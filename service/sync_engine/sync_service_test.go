package sync_engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice-service/service/distributed_lock"
	"backoffice-service/service/fetcher"
	"backoffice-service/service/mapper"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// SyncServiceTestSuite pipeline tests over a static fetcher
type SyncServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	clock   *testutil.FakeClock
	fetcher *fetcher.StaticFetcher
	locker  *distributed_lock.LocalLock
	service *SyncService
	ctx     context.Context
}

func (suite *SyncServiceTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.clock = testutil.NewFakeClock(testNow)
	suite.fetcher = fetcher.NewStaticFetcher()
	suite.locker = distributed_lock.NewLocalLock(suite.clock)
	suite.service = NewSyncService(suite.testDB.DB, suite.fetcher, suite.locker, nil, suite.clock, Options{ChunkDays: 31})
	suite.ctx = context.Background()
}

func (suite *SyncServiceTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *SyncServiceTestSuite) TestTrigger_ServiceRequestScenario() {
	suite.fetcher.Set(meta.EntityKindServiceRequest, serviceRequest("101", "05-01-2026", "novo"))
	req := SyncRequest{Kind: "service_request", DateFrom: "01-01-2026", DateTo: "31-01-2026", TriggeredBy: "ana"}

	first, err := suite.service.Trigger(suite.ctx, req)
	suite.Require().NoError(err)
	suite.Equal(meta.SyncRunStatusSuccess, first.Status)
	suite.Equal(1, first.RecordsProcessed)
	suite.Equal(1, first.RecordsInserted)

	second, err := suite.service.Trigger(suite.ctx, req)
	suite.Require().NoError(err)
	suite.Equal(0, second.RecordsInserted)
	suite.Equal(0, second.RecordsUpdated)
	suite.Equal(1, second.RecordsSkipped)
	suite.NotEqual(first.RunID, second.RunID)

	last, err := suite.service.Ledger().LastSuccessful(suite.ctx, meta.EntityKindServiceRequest)
	suite.Require().NoError(err)
	suite.Equal(second.RunID, last.ID)
	suite.Equal("ana", last.TriggeredBy)
	suite.Require().NotNil(last.DateFrom)
	suite.Equal("2026-01-01", last.DateFrom.Format(meta.CanonicalDateLayout))
}

func (suite *SyncServiceTestSuite) TestTrigger_MappingFailuresAreRecorded() {
	suite.fetcher.Set(meta.EntityKindClient,
		mapper.RawRecord{SourceID: "1", Fields: map[string]interface{}{"name": "Ana"}},
		mapper.RawRecord{SourceID: "2", Fields: map[string]interface{}{"email": "x@y.z"}},
		mapper.RawRecord{Fields: map[string]interface{}{"name": "No id"}},
	)

	result, err := suite.service.Trigger(suite.ctx, SyncRequest{Kind: "client"})
	suite.Require().NoError(err)
	suite.Equal(meta.SyncRunStatusSuccess, result.Status)
	suite.Equal(3, result.RecordsProcessed)
	suite.Equal(1, result.RecordsInserted)
	suite.Equal(2, result.RecordsFailed)

	run, err := suite.service.Ledger().Get(suite.ctx, result.RunID)
	suite.Require().NoError(err)
	suite.Len(run.Errors, 2)
}

func (suite *SyncServiceTestSuite) TestTrigger_ChunksDateRange() {
	_, err := suite.service.Trigger(suite.ctx, SyncRequest{Kind: "task", DateFrom: "01-01-2026", DateTo: "15-02-2026"})
	suite.Require().NoError(err)

	calls := suite.fetcher.Calls()
	suite.Require().Len(calls, 2)
	suite.Equal("01-01-2026..31-01-2026", calls[0].String())
	suite.Equal("01-02-2026..15-02-2026", calls[1].String())
}

func (suite *SyncServiceTestSuite) TestTrigger_LockedKindFailsFast() {
	held, err := suite.locker.TryLock(suite.ctx, "sync:"+meta.EntityKindClient, time.Minute)
	suite.Require().NoError(err)
	suite.Require().True(held)

	_, err = suite.service.Trigger(suite.ctx, SyncRequest{Kind: "client"})
	suite.ErrorIs(err, ErrSyncInProgress)

	var count int64
	suite.testDB.DB.Model(&models.SyncRun{}).Count(&count)
	suite.Equal(int64(0), count, "no run is opened while the kind is locked")

	// other kinds are not blocked
	_, err = suite.service.Trigger(suite.ctx, SyncRequest{Kind: "recurrence"})
	suite.NoError(err)
}

func (suite *SyncServiceTestSuite) TestTrigger_FetchErrorFailsRun() {
	suite.fetcher.FailWith(errors.New("upstream 503"))

	result, err := suite.service.Trigger(suite.ctx, SyncRequest{Kind: "client"})
	suite.Require().Error(err)
	suite.Require().NotNil(result)
	suite.Equal(meta.SyncRunStatusError, result.Status)

	run, getErr := suite.service.Ledger().Get(suite.ctx, result.RunID)
	suite.Require().NoError(getErr)
	suite.Equal(meta.SyncRunStatusError, run.Status)
	suite.Contains(*run.ErrorMessage, "upstream 503")

	last, lastErr := suite.service.Ledger().LastSuccessful(suite.ctx, meta.EntityKindClient)
	suite.NoError(lastErr)
	suite.Nil(last)

	locked, _ := suite.locker.IsLocked(suite.ctx, "sync:"+meta.EntityKindClient)
	suite.False(locked)
}

func (suite *SyncServiceTestSuite) TestTrigger_CancellationMarksRunAsError() {
	ctx, cancel := context.WithCancel(suite.ctx)
	svc := NewSyncService(suite.testDB.DB, fetcher.FetchFunc(func(ctx context.Context, kind string, window fetcher.Window) ([]mapper.RawRecord, error) {
		cancel()
		return nil, ctx.Err()
	}), suite.locker, nil, suite.clock, Options{})

	result, err := svc.Trigger(ctx, SyncRequest{Kind: "client"})
	suite.ErrorIs(err, context.Canceled)
	suite.Require().NotNil(result)

	run, getErr := svc.Ledger().Get(suite.ctx, result.RunID)
	suite.Require().NoError(getErr)
	suite.Equal(meta.SyncRunStatusError, run.Status)
	suite.Contains(*run.ErrorMessage, "context canceled")
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func TestSyncService_Validate(t *testing.T) {
	svc := NewSyncService(nil, fetcher.NewStaticFetcher(), distributed_lock.NewLocalLock(nil), nil, nil, Options{MaxWindowDays: 62})

	tests := []struct {
		name  string
		req   SyncRequest
		field string
	}{
		{"unknown kind", SyncRequest{Kind: "invoice"}, "entityKind"},
		{"missing dateFrom", SyncRequest{Kind: "task", DateTo: "01-01-2026"}, "dateFrom"},
		{"missing dateTo", SyncRequest{Kind: "task", DateFrom: "01-01-2026"}, "dateTo"},
		{"bad date", SyncRequest{Kind: "billing_process", DateFrom: "2026-01-01", DateTo: "01-02-2026"}, "dateFrom"},
		{"reversed range", SyncRequest{Kind: "task", DateFrom: "10-01-2026", DateTo: "01-01-2026"}, "dateTo"},
		{"range too long", SyncRequest{Kind: "task", DateFrom: "01-01-2026", DateTo: "01-06-2026"}, "dateTo"},
		{"full table with dates", SyncRequest{Kind: "client", DateFrom: "01-01-2026"}, "dateFrom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Validate(tt.req)
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}

	kind, window, err := svc.Validate(SyncRequest{Kind: "service-request", DateFrom: "01-01-2026", DateTo: "01-01-2026"})
	require.NoError(t, err)
	assert.Equal(t, meta.EntityKindServiceRequest, kind)
	assert.Equal(t, "01-01-2026..01-01-2026", window.String())

	kind, window, err = svc.Validate(SyncRequest{Kind: "recurrence"})
	require.NoError(t, err)
	assert.Equal(t, meta.EntityKindRecurrence, kind)
	assert.True(t, window.IsZero())
}

func TestChunkWindow(t *testing.T) {
	day := func(d, m int) time.Time { return time.Date(2026, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

	chunks := chunkWindow(fetcher.Window{From: day(1, 1), To: day(10, 1)}, 3)
	require.Len(t, chunks, 4)
	assert.Equal(t, day(1, 1), chunks[0].From)
	assert.Equal(t, day(3, 1), chunks[0].To)
	assert.Equal(t, day(10, 1), chunks[3].From)
	assert.Equal(t, day(10, 1), chunks[3].To)

	full := chunkWindow(fetcher.Window{}, 31)
	require.Len(t, full, 1)
	assert.True(t, full[0].IsZero())
}
