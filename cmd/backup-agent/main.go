package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/backupd/internal/activity"
	"github.com/edvin/backupd/internal/backup"
	"github.com/edvin/backupd/internal/config"
	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/exporter"
	"github.com/edvin/backupd/internal/logging"
	"github.com/edvin/backupd/internal/metrics"
	"github.com/edvin/backupd/internal/schedule"
	"github.com/edvin/backupd/internal/storage"
	"github.com/edvin/backupd/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(config.RoleAgent); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	key, err := cfg.Key()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid encryption key")
	}
	if key != nil {
		logger.Info().Str("key_fingerprint", crypto.Fingerprint(key)).Msg("archive encryption enabled")
	} else {
		logger.Warn().Msg("BACKUP_ENCRYPTION_KEY not set, archives are uploaded unencrypted")
	}

	docker, err := exporter.NewDocker(logger, cfg.DockerHost, cfg.ContainerLabel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create docker client")
	}

	store, err := storage.Open(logger, cfg.Store())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create object store client")
	}

	backupMetrics := metrics.NewBackup(prometheus.DefaultRegisterer)

	dialOpts, err := cfg.TemporalClientOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	if dialOpts.ConnectionOptions.TLS != nil {
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	taskQueue := workflow.NodeTaskQueue(cfg.NodeID)
	w := worker.New(tc, taskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{workflow.NewActivityErrorInterceptor(logger)},
	})

	nodeActs := activity.NewNodeBackup(
		logger,
		docker,
		crypto.NewArchiveEncryptor(),
		store,
		backup.OrchestratorConfig{
			NodeID:        cfg.NodeID,
			BackupDir:     cfg.BackupDir,
			EncryptionKey: key,
		},
		backupMetrics,
	)
	w.RegisterActivity(nodeActs)

	// The workflow runs on the central queue and routes the export back here.
	err = schedule.Register(context.Background(), tc.ScheduleClient(), workflow.TaskQueue, []schedule.Cron{
		{
			ID:       "nightly-backup-" + cfg.NodeID,
			Cron:     cfg.NightlyCron,
			Workflow: workflow.NightlyBackupWorkflow,
			Args:     []interface{}{cfg.NodeID},
		},
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register nightly backup schedule")
	}

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, nil, backupMetrics)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	logger.Info().
		Str("nodeID", cfg.NodeID).
		Str("taskQueue", taskQueue).
		Str("cron", cfg.NightlyCron).
		Msg("starting backup agent temporal worker")

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
