package backup

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// OrchestratorConfig configures a node's nightly run. A nil EncryptionKey
// uploads archives in plaintext.
type OrchestratorConfig struct {
	NodeID        string
	BackupDir     string
	EncryptionKey []byte
}

// Orchestrator exports, optionally encrypts and uploads every tenant
// container on the node, one container at a time.
type Orchestrator struct {
	logger    zerolog.Logger
	exporter  Exporter
	encryptor Encryptor
	store     storage.ObjectStore
	cfg       OrchestratorConfig
	metrics   Metrics
	now       func() time.Time
	onResult  func(model.BackupResult)
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorMetrics reports each container result to m.
func WithOrchestratorMetrics(m Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithResultHook calls fn after each container finishes.
func WithResultHook(fn func(model.BackupResult)) OrchestratorOption {
	return func(o *Orchestrator) { o.onResult = fn }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(logger zerolog.Logger, exporter Exporter, encryptor Encryptor, store storage.ObjectStore, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		logger:    logger.With().Str("component", "nightly-backup").Str("node_id", cfg.NodeID).Logger(),
		exporter:  exporter,
		encryptor: encryptor,
		store:     store,
		cfg:       cfg,
		metrics:   nopMetrics{},
		now:       time.Now,
		onResult:  func(model.BackupResult) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run backs up every tenant container and returns the aggregate report.
// A failing container never stops the loop. Cancellation is checked between
// containers; a cancelled run returns the partial report with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) (model.NightlyBackupReport, error) {
	startedAt := o.now().UTC()
	date := storage.DateStamp(startedAt)
	logger := o.logger.With().Str("run_id", uuid.NewString()).Str("date", date).Logger()

	if err := os.MkdirAll(o.cfg.BackupDir, 0750); err != nil {
		return model.NightlyBackupReport{}, fmt.Errorf("create backup dir %s: %w", o.cfg.BackupDir, err)
	}

	containers, err := o.exporter.ListTenantContainers(ctx)
	if err != nil {
		return model.NightlyBackupReport{}, fmt.Errorf("list tenant containers: %w", err)
	}
	logger.Info().Int("containers", len(containers)).Bool("encrypted", o.cfg.EncryptionKey != nil).Msg("starting nightly backup")

	results := make([]model.BackupResult, 0, len(containers))
	var runErr error
	for _, name := range containers {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Int("remaining", len(containers)-len(results)).Msg("nightly backup cancelled")
			runErr = err
			break
		}

		res := o.BackupContainer(ctx, name, date)
		if res.Success {
			logger.Info().Str("container", name).Float64("size_mb", res.SizeMB).Str("remote_path", res.RemotePath).Msg("container backed up")
		} else {
			logger.Error().Str("container", name).Str("error", res.Error).Msg("container backup failed")
		}
		o.metrics.ObserveBackup(res)
		o.onResult(res)
		results = append(results, res)
	}

	report := model.NewNightlyBackupReport(o.cfg.NodeID, date, startedAt, o.now().UTC(), results)
	logger.Info().
		Int("exported", len(report.Exported)).
		Int("failed", len(report.Failed)).
		Dur("duration", report.CompletedAt.Sub(report.StartedAt)).
		Msg("nightly backup finished")
	return report, runErr
}

// BackupContainer runs export, optional encryption and upload for one
// container. date is the YYYYMMDD UTC run date. Local artifacts are removed
// whatever the outcome.
func (o *Orchestrator) BackupContainer(ctx context.Context, name, date string) model.BackupResult {
	localPath := filepath.Join(o.cfg.BackupDir, storage.ArchiveName(name, date))
	remotePath := storage.NightlyKey(o.cfg.NodeID, name, date)

	// artifact tracks whichever local file must be removed if a step fails.
	var artifact string
	fail := func(err error) model.BackupResult {
		o.cleanup(artifact)
		return model.BackupResult{Container: name, Success: false, Error: err.Error()}
	}

	exported, err := o.exporter.Export(ctx, name, o.cfg.BackupDir)
	if err != nil {
		artifact = filepath.Join(o.cfg.BackupDir, name+".tar.gz")
		return fail(fmt.Errorf("export: %w", err))
	}
	artifact = exported

	// The exporter writes {name}.tar.gz; the upload uses the dated archive name.
	if err := os.Rename(exported, localPath); err != nil {
		return fail(fmt.Errorf("rename %s: %w", exported, err))
	}
	artifact = localPath

	plan, err := planUpload(o.encryptor, o.cfg.EncryptionKey, localPath, remotePath)
	if err != nil {
		return fail(err)
	}
	uploadPath, uploadKey := plan.Paths()
	artifact = uploadPath

	sizeMB, err := fileSizeMB(uploadPath)
	if err != nil {
		return fail(err)
	}

	err = o.store.Upload(ctx, uploadPath, uploadKey)
	o.cleanup(uploadPath)
	if err != nil {
		return model.BackupResult{Container: name, Success: false, Error: fmt.Sprintf("upload: %v", err)}
	}

	return model.BackupResult{Container: name, Success: true, SizeMB: sizeMB, RemotePath: uploadKey}
}

// cleanup removes a local artifact; failures are logged and never change
// the container's outcome.
func (o *Orchestrator) cleanup(path string) {
	if err := cleanup(path); err != nil {
		o.logger.Warn().Err(err).Str("path", path).Msg("failed to remove local backup artifact")
	}
}

func fileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return roundMB(info.Size()), nil
}

func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

var _ Encryptor = (*crypto.ArchiveEncryptor)(nil)
