package workflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/backupd/internal/activity"
	"github.com/edvin/backupd/internal/model"
)

// ---------- NightlyBackupWorkflow ----------

type NightlyBackupWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *NightlyBackupWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *NightlyBackupWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func nightlyReport() *model.NightlyBackupReport {
	now := time.Date(2026, 2, 13, 3, 0, 0, 0, time.UTC)
	r := model.NewNightlyBackupReport("node-1", "20260213", now, now.Add(4*time.Minute), []model.BackupResult{
		{Container: "A", Success: true, SizeMB: 1.5, RemotePath: "nightly/node-1/A/A_20260213.tar.gz"},
		{Container: "B", Success: false, Error: "export: container is gone"},
	})
	return &r
}

func (s *NightlyBackupWorkflowTestSuite) TestSuccess() {
	report := nightlyReport()
	s.env.OnActivity("RunNightlyBackup", mock.Anything).Return(report, nil)
	s.env.OnActivity("RecordBackupReport", mock.Anything, mock.MatchedBy(func(r model.NightlyBackupReport) bool {
		return r.NodeID == "node-1" && len(r.Results) == 2
	})).Return(nil)

	s.env.ExecuteWorkflow(NightlyBackupWorkflow, "node-1")
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var got model.NightlyBackupReport
	s.NoError(s.env.GetWorkflowResult(&got))
	s.Equal([]string{"A"}, got.Exported)
	s.Equal([]string{"B"}, got.Failed)
}

func (s *NightlyBackupWorkflowTestSuite) TestRunFails_NothingRecorded() {
	s.env.OnActivity("RunNightlyBackup", mock.Anything).Return(nil, fmt.Errorf("list tenant containers: docker unavailable"))

	s.env.ExecuteWorkflow(NightlyBackupWorkflow, "node-1")
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func (s *NightlyBackupWorkflowTestSuite) TestRecordFails() {
	s.env.OnActivity("RunNightlyBackup", mock.Anything).Return(nightlyReport(), nil)
	s.env.OnActivity("RecordBackupReport", mock.Anything, mock.Anything).Return(fmt.Errorf("db down"))

	s.env.ExecuteWorkflow(NightlyBackupWorkflow, "node-1")
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

// ---------- BackupRetentionWorkflow ----------

type BackupRetentionWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *BackupRetentionWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *BackupRetentionWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func matchPrefix(prefix string) interface{} {
	return mock.MatchedBy(func(p activity.EnforceRetentionParams) bool {
		return p.Prefix == prefix && p.Config == model.DefaultRetentionConfig()
	})
}

func (s *BackupRetentionWorkflowTestSuite) TestSuccess() {
	params := RetentionWorkflowParams{Root: "nightly/", Config: model.DefaultRetentionConfig()}

	s.env.OnActivity("ListContainerPrefixes", mock.Anything, "nightly/").
		Return([]string{"nightly/node-1/A/", "nightly/node-1/B/"}, nil)
	s.env.OnActivity("EnforceRetention", mock.Anything, matchPrefix("nightly/node-1/A/")).
		Return(&model.RetentionResult{Kept: []string{"a1", "a2"}, Deleted: []string{"a3"}, Errors: []string{}}, nil)
	s.env.OnActivity("EnforceRetention", mock.Anything, matchPrefix("nightly/node-1/B/")).
		Return(&model.RetentionResult{Kept: []string{"b1"}, Deleted: []string{"b2"}, Errors: []string{"delete b2: AccessDenied"}}, nil)

	s.env.ExecuteWorkflow(BackupRetentionWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var summary RetentionSummary
	s.NoError(s.env.GetWorkflowResult(&summary))
	s.Equal(2, summary.Prefixes)
	s.Equal(3, summary.Kept)
	s.Equal(2, summary.Deleted)
	s.Equal([]string{"nightly/node-1/B/: delete b2: AccessDenied"}, summary.Errors)
}

func (s *BackupRetentionWorkflowTestSuite) TestPrefixFailureContinues() {
	params := RetentionWorkflowParams{Root: "nightly/", Config: model.DefaultRetentionConfig()}

	s.env.OnActivity("ListContainerPrefixes", mock.Anything, "nightly/").
		Return([]string{"nightly/node-1/A/", "nightly/node-1/B/"}, nil)
	s.env.OnActivity("EnforceRetention", mock.Anything, matchPrefix("nightly/node-1/A/")).
		Return(nil, fmt.Errorf("worker lost"))
	s.env.OnActivity("EnforceRetention", mock.Anything, matchPrefix("nightly/node-1/B/")).
		Return(&model.RetentionResult{Kept: []string{"b1"}, Deleted: []string{}, Errors: []string{}}, nil)

	s.env.ExecuteWorkflow(BackupRetentionWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var summary RetentionSummary
	s.NoError(s.env.GetWorkflowResult(&summary))
	s.Equal(1, summary.Kept)
	s.Len(summary.Errors, 1)
}

func (s *BackupRetentionWorkflowTestSuite) TestListFails() {
	s.env.OnActivity("ListContainerPrefixes", mock.Anything, "nightly/").Return(nil, fmt.Errorf("timeout"))

	s.env.ExecuteWorkflow(BackupRetentionWorkflow, RetentionWorkflowParams{Root: "nightly/"})
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

// ---------- VerifyBackupsWorkflow ----------

type VerifyBackupsWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *VerifyBackupsWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *VerifyBackupsWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *VerifyBackupsWorkflowTestSuite) TestReportsFailures() {
	params := activity.VerifyBackupsParams{Prefix: "nightly/", Limit: 5}
	s.env.OnActivity("VerifyBackups", mock.Anything, params).Return(&model.VerificationReport{
		TotalChecked: 2, Passed: 1, Failed: 1,
		Results: []model.VerificationResult{
			{Path: "nightly/node-1/A/A_20260213.tar.gz", Valid: true},
			{Path: "nightly/node-1/B/B_20260213.tar.gz", Valid: false, Error: "archive too small: 12 bytes (minimum 512)"},
		},
	}, nil)

	s.env.ExecuteWorkflow(VerifyBackupsWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var report model.VerificationReport
	s.NoError(s.env.GetWorkflowResult(&report))
	s.Equal(1, report.Failed)
}

func TestNightlyBackupWorkflow(t *testing.T) {
	suite.Run(t, new(NightlyBackupWorkflowTestSuite))
}

func TestBackupRetentionWorkflow(t *testing.T) {
	suite.Run(t, new(BackupRetentionWorkflowTestSuite))
}

func TestVerifyBackupsWorkflow(t *testing.T) {
	suite.Run(t, new(VerifyBackupsWorkflowTestSuite))
}
