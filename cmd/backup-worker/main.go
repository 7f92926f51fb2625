package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/backupd/internal/activity"
	"github.com/edvin/backupd/internal/backup"
	"github.com/edvin/backupd/internal/config"
	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/db"
	"github.com/edvin/backupd/internal/logging"
	"github.com/edvin/backupd/internal/metrics"
	"github.com/edvin/backupd/internal/schedule"
	"github.com/edvin/backupd/internal/storage"
	"github.com/edvin/backupd/internal/workflow"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "", "Migration files directory (default: embedded)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(config.RoleWorker); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(ctx, logger, cfg.CoreDatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL, config.RoleWorker)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, "core", corePool)

	key, err := cfg.Key()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid encryption key")
	}
	if key == nil {
		logger.Warn().Msg("BACKUP_ENCRYPTION_KEY not set, encrypted archives will fail verification")
	}

	store, err := storage.Open(logger, cfg.Store())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create object store client")
	}

	backupMetrics := metrics.NewBackup(prometheus.DefaultRegisterer)
	tracker := backup.NewStatusTracker(corePool)
	retention := backup.NewRetentionEngine(logger, store, backupMetrics)
	verifier := backup.NewVerifier(logger, store, crypto.NewArchiveEncryptor(), backup.VerifierConfig{
		TempDir:       cfg.VerifyTempDir,
		EncryptionKey: key,
	}, backupMetrics)

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

	w := worker.New(tc, workflow.TaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{workflow.NewActivityErrorInterceptor(logger)},
	})
	w.RegisterActivity(activity.NewBackup(logger, tracker, store, retention, verifier))
	w.RegisterWorkflow(workflow.NightlyBackupWorkflow)
	w.RegisterWorkflow(workflow.BackupRetentionWorkflow)
	w.RegisterWorkflow(workflow.VerifyBackupsWorkflow)

	err = schedule.Register(ctx, tc.ScheduleClient(), workflow.TaskQueue, []schedule.Cron{
		{
			ID:       "backup-retention-cron",
			Cron:     cfg.RetentionCron,
			Workflow: workflow.BackupRetentionWorkflow,
			Args: []interface{}{workflow.RetentionWorkflowParams{
				Root:   storage.NightlyRoot,
				Config: cfg.Retention(),
			}},
		},
		{
			ID:       "backup-verify-cron",
			Cron:     cfg.VerifyCron,
			Workflow: workflow.VerifyBackupsWorkflow,
			Args: []interface{}{activity.VerifyBackupsParams{
				Prefix: cfg.VerifyPrefix,
				Limit:  cfg.VerifyLimit,
			}},
		},
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register cron schedules")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("taskQueue", workflow.TaskQueue).Msg("starting temporal worker")
		if err := w.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		<-gctx.Done()
		w.Stop()
		return nil
	})

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, tracker, backupMetrics)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("backup worker failed")
	}
	logger.Info().Msg("backup worker stopped")
}
