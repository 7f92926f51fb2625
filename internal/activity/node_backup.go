package activity

import (
	"context"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/activity"

	"github.com/edvin/backupd/internal/backup"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// NodeBackup contains activities that run on the node that owns the tenant
// containers, routed through the node's task queue.
type NodeBackup struct {
	logger    zerolog.Logger
	exporter  backup.Exporter
	encryptor backup.Encryptor
	store     storage.ObjectStore
	cfg       backup.OrchestratorConfig
	metrics   backup.Metrics
}

// NewNodeBackup creates a new NodeBackup activity struct. m may be nil.
func NewNodeBackup(
	logger zerolog.Logger,
	exporter backup.Exporter,
	encryptor backup.Encryptor,
	store storage.ObjectStore,
	cfg backup.OrchestratorConfig,
	m backup.Metrics,
) *NodeBackup {
	return &NodeBackup{
		logger:    logger,
		exporter:  exporter,
		encryptor: encryptor,
		store:     store,
		cfg:       cfg,
		metrics:   m,
	}
}

// RunNightlyBackup backs up every tenant container on this node. A heartbeat
// is recorded after each container so a cancelled workflow stops the loop.
func (a *NodeBackup) RunNightlyBackup(ctx context.Context) (*model.NightlyBackupReport, error) {
	opts := []backup.OrchestratorOption{
		backup.WithResultHook(func(res model.BackupResult) {
			activity.RecordHeartbeat(ctx, res.Container)
		}),
	}
	if a.metrics != nil {
		opts = append(opts, backup.WithOrchestratorMetrics(a.metrics))
	}

	o := backup.NewOrchestrator(a.logger, a.exporter, a.encryptor, a.store, a.cfg, opts...)
	report, err := o.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &report, nil
}
