package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/backup"
	"github.com/edvin/backupd/internal/backupctl"
	"github.com/edvin/backupd/internal/config"
	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/db"
	"github.com/edvin/backupd/internal/exporter"
	"github.com/edvin/backupd/internal/logging"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(config.RoleCtl); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	logger := logging.NewLogger(cfg).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		record := fs.Bool("record", false, "Record the outcome in the backup_status table (CORE_DATABASE_URL)")
		fs.Parse(os.Args[2:])

		if cfg.NodeID == "" {
			fail(fmt.Errorf("NODE_ID is required"))
		}
		key, err := cfg.Key()
		check(err)
		docker, err := exporter.NewDocker(logger, cfg.DockerHost, cfg.ContainerLabel)
		check(err)
		store := openStore(logger, cfg)

		var recorder backup.StatusRecorder
		if *record {
			pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL, config.RoleCtl)
			check(err)
			defer pool.Close()
			recorder = backup.NewStatusTracker(pool)
		}

		o := backup.NewOrchestrator(logger, docker, crypto.NewArchiveEncryptor(), store, backup.OrchestratorConfig{
			NodeID:        cfg.NodeID,
			BackupDir:     cfg.BackupDir,
			EncryptionKey: key,
		})
		check(backupctl.Run(ctx, os.Stdout, o, recorder))

	case "retention":
		fs := flag.NewFlagSet("retention", flag.ExitOnError)
		prefix := fs.String("prefix", "", "Container prefix (default: every prefix under nightly/)")
		daily := fs.Int("daily", cfg.RetentionDaily, "Number of daily backups to keep")
		weekly := fs.Int("weekly", cfg.RetentionWeekly, "Number of weekly backups to keep")
		minAge := fs.Duration("min-age", cfg.RetentionMinAge, "Never delete backups younger than this")
		dryRun := fs.Bool("dry-run", false, "Print the plan without deleting anything")
		fs.Parse(os.Args[2:])

		check(backupctl.Retention(ctx, os.Stdout, logger, openStore(logger, cfg), backupctl.RetentionOptions{
			Prefix: *prefix,
			Config: model.RetentionConfig{DailyCount: *daily, WeeklyCount: *weekly, MinAge: *minAge},
			Now:    time.Now(),
			DryRun: *dryRun,
		}))

	case "verify":
		fs := flag.NewFlagSet("verify", flag.ExitOnError)
		prefix := fs.String("prefix", cfg.VerifyPrefix, "Prefix to sample")
		limit := fs.Int("limit", cfg.VerifyLimit, "Maximum number of archives to check (0 = all)")
		fs.Parse(os.Args[2:])

		key, err := cfg.Key()
		check(err)
		v := backup.NewVerifier(logger, openStore(logger, cfg), crypto.NewArchiveEncryptor(), backup.VerifierConfig{
			TempDir:       cfg.VerifyTempDir,
			EncryptionKey: key,
		}, nil)
		check(backupctl.Verify(ctx, os.Stdout, v, *prefix, *limit))

	case "decrypt":
		fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
		in := fs.String("in", "", "Encrypted archive (required)")
		out := fs.String("out", "", "Output path (default: input without .enc)")
		fs.Parse(os.Args[2:])

		if *in == "" {
			fmt.Fprintln(os.Stderr, "Error: -in flag is required")
			fs.Usage()
			os.Exit(1)
		}
		if *out == "" {
			*out = trimEnc(*in)
		}
		key, err := cfg.Key()
		check(err)
		check(backupctl.Decrypt(crypto.NewArchiveEncryptor(), *in, *out, key))
		fmt.Printf("Decrypted %s -> %s\n", *in, *out)

	case "keygen":
		check(backupctl.Keygen(os.Stdout))

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		stale := fs.Bool("stale", false, "Only list containers without a backup in the last 24h")
		fs.Parse(os.Args[2:])

		if cfg.CoreDatabaseURL == "" {
			fail(fmt.Errorf("CORE_DATABASE_URL is required"))
		}
		pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL, config.RoleCtl)
		check(err)
		defer pool.Close()
		check(backupctl.Status(ctx, os.Stdout, backup.NewStatusTracker(pool), *stale))

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func openStore(logger zerolog.Logger, cfg *config.Config) storage.ObjectStore {
	store, err := storage.Open(logger, cfg.Store())
	check(err)
	return store
}

func trimEnc(path string) string {
	if plain, ok := strings.CutSuffix(path, crypto.EncryptedSuffix); ok && plain != "" {
		return plain
	}
	return path + ".dec"
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  backupctl run [-record]                                   Back up every tenant container on this node now
  backupctl retention [-prefix P] [-daily N] [-weekly N]    Enforce the retention policy
                      [-min-age D] [-dry-run]
  backupctl verify [-prefix P] [-limit N]                   Download and check a sample of archives
  backupctl decrypt -in FILE [-out FILE]                    Decrypt a downloaded .enc archive
  backupctl keygen                                          Print a new encryption key
  backupctl status [-stale]                                 List per-container backup status

Configuration is read from the environment (BACKUP_*, SPACES_*, CORE_DATABASE_URL).`)
}
