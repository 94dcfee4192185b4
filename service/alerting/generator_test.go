/*
 * @module service/alerting/generator_test
 * @description Alert generator tests: deadline and stalled scans, dedup and lazy resolution
 * @architecture Test layer
 * @dependencies testing, testify, gorm
 * @refs generator.go
 */

package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice-service/service/event"
	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/testutil"

	"github.com/stretchr/testify/suite"
)

var testNow = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// GeneratorTestSuite alert generator tests
type GeneratorTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDB
	clock     *testutil.FakeClock
	factory   *testutil.TestDataFactory
	publisher *event.MemoryPublisher
	generator *Generator
	stageID   string
	ctx       context.Context
}

func (suite *GeneratorTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.clock = testutil.NewFakeClock(testNow)
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB, suite.clock)
	suite.publisher = &event.MemoryPublisher{}
	suite.generator = NewGenerator(suite.testDB.DB, suite.clock, 0, suite.publisher, nil)
	suite.stageID = suite.factory.CreateStage("Documents").ID
	suite.ctx = context.Background()
}

func (suite *GeneratorTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *GeneratorTestSuite) openAlerts(kind string) []models.Alert {
	alerts, err := suite.generator.List(suite.ctx, ListFilter{Kind: kind, OpenOnly: true})
	suite.Require().NoError(err)
	return alerts
}

func (suite *GeneratorTestSuite) TestDeadlineScan_OverdueTaskGetsOneAlert() {
	yesterday := testNow.Add(-24 * time.Hour)
	suite.factory.CreateTask("t1", suite.stageID, testutil.WithDueAt(yesterday))
	suite.factory.CreateTask("t2", suite.stageID, testutil.WithDueAt(testNow.Add(24*time.Hour)))
	suite.factory.CreateTask("t3", suite.stageID)
	suite.factory.CreateTask("t4", suite.stageID, testutil.WithDueAt(yesterday), testutil.WithTaskStatus(meta.TaskStatusDone))

	first, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Created: 1}, *first)

	second, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{}, *second, "scans are idempotent")

	open := suite.openAlerts(meta.AlertKindDeadline)
	suite.Require().Len(open, 1)
	suite.Equal("t1", open[0].SubjectID)
	suite.Equal(meta.TriggerDueDatePassed, open[0].TriggerCondition)
	suite.Equal(meta.AlertSubjectOnboardingTask, open[0].SubjectType)
}

func (suite *GeneratorTestSuite) TestDeadlineScan_DoneTaskResolvesExactlyOnce() {
	task := suite.factory.CreateTask("t1", suite.stageID, testutil.WithDueAt(testNow.Add(-24*time.Hour)))
	_, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.testDB.DB.Model(task).Update("status", meta.TaskStatusDone).Error)
	suite.clock.Advance(time.Minute)

	result, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Resolved: 1}, *result)

	result, err = suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{}, *result)

	var all []models.Alert
	suite.Require().NoError(suite.testDB.DB.Find(&all).Error)
	suite.Require().Len(all, 1)
	suite.Require().NotNil(all[0].ResolvedAt)
	suite.True(all[0].ResolvedAt.Equal(testNow.Add(time.Minute)))

	events := suite.publisher.Events()
	suite.Require().Len(events, 2)
	suite.Equal(event.AlertActionCreated, events[0].Action)
	suite.Equal(event.AlertActionResolved, events[1].Action)
	suite.Equal(all[0].ID, events[1].AlertID)
}

func (suite *GeneratorTestSuite) TestDeadlineScan_RescheduledAndDeletedTasksResolve() {
	rescheduled := suite.factory.CreateTask("t1", suite.stageID, testutil.WithDueAt(testNow.Add(-time.Hour)))
	deleted := suite.factory.CreateTask("t2", suite.stageID, testutil.WithDueAt(testNow.Add(-time.Hour)))
	_, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.testDB.DB.Model(rescheduled).Update("due_at", testNow.Add(48*time.Hour)).Error)
	suite.Require().NoError(suite.testDB.DB.Delete(deleted).Error)

	result, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Resolved: 2}, *result)
	suite.Empty(suite.openAlerts(meta.AlertKindDeadline))
}

func (suite *GeneratorTestSuite) TestDeadlineScan_TaskOverdueAgainGetsNewAlert() {
	task := suite.factory.CreateTask("t1", suite.stageID, testutil.WithDueAt(testNow.Add(-time.Hour)))
	_, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.testDB.DB.Model(task).Update("status", meta.TaskStatusDone).Error)
	_, err = suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.testDB.DB.Model(task).Update("status", meta.TaskStatusPending).Error)
	result, err := suite.generator.DeadlineScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Created: 1}, *result)

	var count int64
	suite.testDB.DB.Model(&models.Alert{}).Where("subject_id = ?", "t1").Count(&count)
	suite.Equal(int64(2), count)
}

func (suite *GeneratorTestSuite) TestStalledScan_UsesThreshold() {
	suite.factory.CreateTask("quiet", suite.stageID, testutil.WithLastActivity(testNow.Add(-8*24*time.Hour)))
	suite.factory.CreateTask("recent", suite.stageID, testutil.WithLastActivity(testNow.Add(-6*24*time.Hour)))
	suite.factory.CreateTask("finished", suite.stageID,
		testutil.WithLastActivity(testNow.Add(-30*24*time.Hour)),
		testutil.WithTaskStatus(meta.TaskStatusDone))

	result, err := suite.generator.StalledScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Created: 1}, *result)

	open := suite.openAlerts(meta.AlertKindStalled)
	suite.Require().Len(open, 1)
	suite.Equal("quiet", open[0].SubjectID)
	suite.Equal("no_activity_7d", open[0].TriggerCondition)

	// two days later "recent" crosses the threshold too
	suite.clock.Advance(2 * 24 * time.Hour)
	result, err = suite.generator.StalledScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Created: 1}, *result)
}

func (suite *GeneratorTestSuite) TestStalledScan_ActivityResolves() {
	task := suite.factory.CreateTask("quiet", suite.stageID, testutil.WithLastActivity(testNow.Add(-10*24*time.Hour)))
	_, err := suite.generator.StalledScan(suite.ctx)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.testDB.DB.Model(task).Update("last_activity_at", testNow).Error)
	result, err := suite.generator.StalledScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Resolved: 1}, *result)
}

func (suite *GeneratorTestSuite) TestStalledScan_ThresholdChangeReplacesCondition() {
	suite.factory.CreateTask("quiet", suite.stageID, testutil.WithLastActivity(testNow.Add(-10*24*time.Hour)))
	_, err := suite.generator.StalledScan(suite.ctx)
	suite.Require().NoError(err)

	shorter := NewGenerator(suite.testDB.DB, suite.clock, 3*24*time.Hour, nil, nil)
	result, err := shorter.StalledScan(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(ScanResult{Created: 1, Resolved: 1}, *result)

	open := suite.openAlerts(meta.AlertKindStalled)
	suite.Require().Len(open, 1)
	suite.Equal("no_activity_3d", open[0].TriggerCondition)
}

func (suite *GeneratorTestSuite) TestRun_BothScansAndPublishFailureIsIgnored() {
	suite.factory.CreateTask("t1", suite.stageID,
		testutil.WithDueAt(testNow.Add(-24*time.Hour)),
		testutil.WithLastActivity(testNow.Add(-8*24*time.Hour)))
	suite.publisher.FailWith(errors.New("broker down"))

	result, err := suite.generator.Run(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(RunResult{Deadline: ScanResult{Created: 1}, Stalled: ScanResult{Created: 1}}, *result)

	suite.Len(suite.openAlerts(""), 2)
}

func TestGeneratorTestSuite(t *testing.T) {
	suite.Run(t, new(GeneratorTestSuite))
}
