package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authmw "backoffice-service/api/middleware"
	"backoffice-service/service/alerting"
	"backoffice-service/service/dedup"
	"backoffice-service/service/distributed_lock"
	"backoffice-service/service/event"
	"backoffice-service/service/fetcher"
	"backoffice-service/service/mapper"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/sync_engine"
	"backoffice-service/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
)

var testNow = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// RoutesTestSuite end-to-end tests of the HTTP surface
type RoutesTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDB
	clock     *testutil.FakeClock
	factory   *testutil.TestDataFactory
	fetcher   *fetcher.StaticFetcher
	locker    *distributed_lock.LocalLock
	publisher *event.MemoryPublisher
	router    *chi.Mux
}

func (suite *RoutesTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.clock = testutil.NewFakeClock(testNow)
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB, suite.clock)
	suite.fetcher = fetcher.NewStaticFetcher()
	suite.locker = distributed_lock.NewLocalLock(suite.clock)
	suite.publisher = &event.MemoryPublisher{}

	db := suite.testDB.DB
	scanner := dedup.NewScanner(db, dedup.NewNormalizer("BR"))
	verifier := authmw.NewStaticVerifier(map[string]authmw.Principal{
		"admin":  {Username: "ana", Permissions: authmw.AllPermissions},
		"reader": {Username: "bia", Permissions: []string{authmw.PermSyncRead, authmw.PermAlertsRead, authmw.PermProvidersRead}},
	})

	suite.router = chi.NewRouter()
	InitRoute(suite.router, Dependencies{
		SyncService:    sync_engine.NewSyncService(db, suite.fetcher, suite.locker, nil, suite.clock, sync_engine.Options{}),
		AlertGenerator: alerting.NewGenerator(db, suite.clock, 7*24*time.Hour, suite.publisher, nil),
		Scanner:        scanner,
		Merger:         dedup.NewMerger(db, scanner, suite.clock, nil),
		Authenticator:  authmw.NewAuthenticator(verifier, time.Minute, suite.clock),
		Ready:          func(ctx context.Context) error { return nil },
	})
}

func (suite *RoutesTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *RoutesTestSuite) do(method, url string, body interface{}, token string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(suite.T(), method, url, body, token)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *RoutesTestSuite) countRuns() int64 {
	var count int64
	suite.testDB.DB.Model(&models.SyncRun{}).Count(&count)
	return count
}

func (suite *RoutesTestSuite) TestHealth() {
	body := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/health", nil, ""), http.StatusOK)
	suite.Equal("ok", body["status"])
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/ready", nil, ""), http.StatusOK)
}

func (suite *RoutesTestSuite) TestTriggerSync_AuthBeforeMutation() {
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/client", nil, ""), http.StatusUnauthorized)
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/client", nil, "reader"), http.StatusForbidden)
	suite.Equal(int64(0), suite.countRuns())
}

func (suite *RoutesTestSuite) TestTriggerSync_ServiceRequestTwice() {
	suite.fetcher.Set(meta.EntityKindServiceRequest, mapper.RawRecord{
		SourceID: "101",
		Fields:   map[string]interface{}{"dueDate": "05-01-2026", "status": "novo"},
	})
	body := map[string]string{"dateFrom": "01-01-2026", "dateTo": "31-01-2026"}

	first := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/service-request", body, "admin"), http.StatusOK)
	suite.Equal(float64(0), first["status"])
	data := first["data"].(map[string]interface{})
	suite.Equal(float64(1), data["recordsInserted"])
	runID := data["runId"].(string)

	second := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/service_request", body, "admin"), http.StatusOK)
	data = second["data"].(map[string]interface{})
	suite.Equal(float64(0), data["recordsInserted"])
	suite.Equal(float64(0), data["recordsUpdated"])
	suite.Equal(float64(1), data["recordsSkipped"])

	status := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/sync/service_request/status", nil, "reader"), http.StatusOK)
	last := status["data"].(map[string]interface{})["lastSuccessfulRun"].(map[string]interface{})
	suite.Equal(data["runId"], last["id"])
	suite.Equal("ana", last["triggered_by"])

	runs := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/sync/runs?kind=service_request&limit=5", nil, "reader"), http.StatusOK)
	suite.Len(runs["data"], 2)

	run := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/sync/runs/"+runID, nil, "reader"), http.StatusOK)
	suite.Equal(runID, run["data"].(map[string]interface{})["id"])

	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/sync/runs/missing", nil, "reader"), http.StatusNotFound)
}

func (suite *RoutesTestSuite) TestTriggerSync_BadInput() {
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/invoice", nil, "admin"), http.StatusBadRequest)
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/task", map[string]string{"dateFrom": "2026-01-01", "dateTo": "31-01-2026"}, "admin"), http.StatusBadRequest)
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/task", nil, "admin"), http.StatusBadRequest)
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/client", map[string]string{"dateFrom": "01-01-2026"}, "admin"), http.StatusBadRequest)
	suite.Equal(int64(0), suite.countRuns())
}

func (suite *RoutesTestSuite) TestTriggerSync_InProgress() {
	held, err := suite.locker.TryLock(context.Background(), "sync:"+meta.EntityKindClient, time.Minute)
	suite.Require().NoError(err)
	suite.Require().True(held)

	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/client", nil, "admin"), http.StatusConflict)
}

func (suite *RoutesTestSuite) TestTriggerSync_FailureReportsRun() {
	suite.fetcher.FailWith(context.DeadlineExceeded)
	body := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/sync/client", nil, "admin"), http.StatusGatewayTimeout)
	data := body["data"].(map[string]interface{})
	suite.Equal(meta.SyncRunStatusError, data["status"])
	suite.NotEmpty(data["runId"])
}

func (suite *RoutesTestSuite) TestAlerts_GenerateAndList() {
	stage := suite.factory.CreateStage("Documents")
	suite.factory.CreateTask("t1", stage.ID, testutil.WithDueAt(testNow.Add(-24*time.Hour)))

	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/alerts/generate", nil, "reader"), http.StatusForbidden)

	body := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/alerts/generate", nil, "admin"), http.StatusOK)
	deadline := body["data"].(map[string]interface{})["deadline"].(map[string]interface{})
	suite.Equal(float64(1), deadline["created"])

	body = testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, "/alerts/generate", nil, "admin"), http.StatusOK)
	deadline = body["data"].(map[string]interface{})["deadline"].(map[string]interface{})
	suite.Equal(float64(0), deadline["created"])

	list := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/alerts?open=true&kind=deadline", nil, "reader"), http.StatusOK)
	suite.Len(list["data"], 1)

	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/alerts?kind=overdue", nil, "reader"), http.StatusBadRequest)
	suite.Len(suite.publisher.Events(), 1)
}

func (suite *RoutesTestSuite) TestProviders_DuplicatesAndMerge() {
	suite.factory.CreateProvider("pa", "Ana Lima", testutil.WithProviderContact("ana@example.com", "", "111"))
	suite.factory.CreateProvider("pb", "Ana Souza", testutil.WithProviderContact("ana@example.com", "", "222"))

	list := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodGet, "/providers/duplicates", nil, "reader"), http.StatusOK)
	groups := list["data"].([]interface{})
	suite.Require().Len(groups, 1)
	groupID := groups[0].(map[string]interface{})["groupId"].(string)
	url := "/providers/duplicates/" + groupID + "/merge"

	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, url, map[string]interface{}{"keepId": "pa"}, "reader"), http.StatusForbidden)
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, url, map[string]interface{}{}, "admin"), http.StatusBadRequest)
	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, url, map[string]interface{}{"keepId": "pa", "resolutions": map[string]string{"status": "x"}}, "admin"), http.StatusBadRequest)

	conflict := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, url, map[string]interface{}{"keepId": "pa"}, "admin"), http.StatusConflict)
	fields := conflict["data"].(map[string]interface{})["fields"].(map[string]interface{})
	suite.Contains(fields, "name")
	suite.Contains(fields, "fiscalId")

	merged := testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, url, map[string]interface{}{
		"keepId":      "pa",
		"resolutions": map[string]string{"name": "Ana Lima", "fiscalId": "111"},
	}, "admin"), http.StatusOK)
	suite.Equal("pa", merged["data"].(map[string]interface{})["keepId"])

	testutil.DecodeEnvelope(suite.T(), suite.do(http.MethodPost, url, map[string]interface{}{"keepId": "pa"}, "admin"), http.StatusNotFound)
}

func TestRoutesTestSuite(t *testing.T) {
	suite.Run(t, new(RoutesTestSuite))
}
