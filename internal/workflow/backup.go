package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/backupd/internal/activity"
	"github.com/edvin/backupd/internal/model"
)

// RetentionWorkflowParams configures BackupRetentionWorkflow.
type RetentionWorkflowParams struct {
	Root   string
	Config model.RetentionConfig
}

// RetentionSummary totals one retention pass over every container prefix.
type RetentionSummary struct {
	Prefixes int      `json:"prefixes"`
	Kept     int      `json:"kept"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors"`
}

// NightlyBackupWorkflow runs the nightly backup on one node and records the
// per-container outcome in the status table.
func NightlyBackupWorkflow(ctx workflow.Context, nodeID string) (*model.NightlyBackupReport, error) {
	logger := workflow.GetLogger(ctx)

	var report model.NightlyBackupReport
	err := workflow.ExecuteActivity(nodeActivityCtx(ctx, nodeID), "RunNightlyBackup").Get(ctx, &report)
	if err != nil {
		return nil, err
	}

	err = workflow.ExecuteActivity(centralActivityCtx(ctx, time.Minute), "RecordBackupReport", report).Get(ctx, nil)
	if err != nil {
		return &report, err
	}

	if len(report.Failed) > 0 {
		logger.Warn("nightly backup finished with failures", "nodeID", nodeID, "failed", report.Failed)
	} else {
		logger.Info("nightly backup finished", "nodeID", nodeID, "exported", len(report.Exported))
	}
	return &report, nil
}

// BackupRetentionWorkflow discovers every container prefix under the root
// and enforces the retention policy on each. A failing prefix does not stop
// the others.
func BackupRetentionWorkflow(ctx workflow.Context, params RetentionWorkflowParams) (*RetentionSummary, error) {
	logger := workflow.GetLogger(ctx)
	actx := centralActivityCtx(ctx, 10*time.Minute)

	var prefixes []string
	if err := workflow.ExecuteActivity(actx, "ListContainerPrefixes", params.Root).Get(ctx, &prefixes); err != nil {
		return nil, err
	}

	now := workflow.Now(ctx)
	summary := &RetentionSummary{Prefixes: len(prefixes), Errors: []string{}}
	for _, prefix := range prefixes {
		var result model.RetentionResult
		err := workflow.ExecuteActivity(actx, "EnforceRetention", activity.EnforceRetentionParams{
			Prefix: prefix,
			Config: params.Config,
			Now:    now,
		}).Get(ctx, &result)
		if err != nil {
			logger.Error("retention failed", "prefix", prefix, "error", err)
			summary.Errors = append(summary.Errors, prefix+": "+err.Error())
			continue
		}
		summary.Kept += len(result.Kept)
		summary.Deleted += len(result.Deleted)
		for _, e := range result.Errors {
			summary.Errors = append(summary.Errors, prefix+": "+e)
		}
	}

	logger.Info("backup retention finished",
		"prefixes", summary.Prefixes, "kept", summary.Kept, "deleted", summary.Deleted, "errors", len(summary.Errors))
	return summary, nil
}

// VerifyBackupsWorkflow checks that a sample of remote archives can be
// downloaded and decompressed.
func VerifyBackupsWorkflow(ctx workflow.Context, params activity.VerifyBackupsParams) (*model.VerificationReport, error) {
	logger := workflow.GetLogger(ctx)

	var report model.VerificationReport
	err := workflow.ExecuteActivity(centralActivityCtx(ctx, 2*time.Hour), "VerifyBackups", params).Get(ctx, &report)
	if err != nil {
		return nil, err
	}

	if report.Failed > 0 {
		logger.Error("backup verification found invalid archives", "checked", report.TotalChecked, "failed", report.Failed)
	} else {
		logger.Info("backup verification passed", "checked", report.TotalChecked)
	}
	return &report, nil
}
