package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/backup"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// Backup contains the central backup activities: status recording,
// retention and verification against the shared object store.
type Backup struct {
	logger    zerolog.Logger
	status    backup.StatusRecorder
	store     storage.ObjectStore
	retention *backup.RetentionEngine
	verifier  *backup.Verifier
}

// NewBackup creates a new Backup activity struct.
func NewBackup(
	logger zerolog.Logger,
	status backup.StatusRecorder,
	store storage.ObjectStore,
	retention *backup.RetentionEngine,
	verifier *backup.Verifier,
) *Backup {
	return &Backup{
		logger:    logger.With().Str("component", "backup-activities").Logger(),
		status:    status,
		store:     store,
		retention: retention,
		verifier:  verifier,
	}
}

// RecordBackupReport stores one status update per container in the report.
func (a *Backup) RecordBackupReport(ctx context.Context, report model.NightlyBackupReport) error {
	if err := backup.RecordReport(ctx, a.status, report); err != nil {
		return fmt.Errorf("record backup report for node %s: %w", report.NodeID, err)
	}
	a.logger.Info().
		Str("node_id", report.NodeID).
		Str("date", report.Date).
		Int("exported", len(report.Exported)).
		Int("failed", len(report.Failed)).
		Msg("recorded nightly backup report")
	return nil
}

// ListContainerPrefixes returns every container prefix found under root.
func (a *Backup) ListContainerPrefixes(ctx context.Context, root string) ([]string, error) {
	objects, err := a.store.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	return backup.ContainerPrefixes(objects), nil
}

// EnforceRetention applies the retention policy to one container prefix.
// Failures are reported in the result, never as an activity error.
func (a *Backup) EnforceRetention(ctx context.Context, params EnforceRetentionParams) (*model.RetentionResult, error) {
	result := a.retention.Enforce(ctx, params.Prefix, params.Config, params.Now)
	return &result, nil
}

// VerifyBackups downloads and checks a sample of archives under the prefix.
func (a *Backup) VerifyBackups(ctx context.Context, params VerifyBackupsParams) (*model.VerificationReport, error) {
	report := a.verifier.Verify(ctx, params.Prefix, params.Limit)
	return &report, nil
}
