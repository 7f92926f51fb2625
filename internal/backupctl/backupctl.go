// Package backupctl implements the operator commands of the backupctl CLI.
package backupctl

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/backup"
	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// StatusReader lists backup status entries. *backup.StatusTracker satisfies it.
type StatusReader interface {
	ListAll(ctx context.Context) ([]model.BackupStatusEntry, error)
	ListStale(ctx context.Context) ([]model.BackupStatusEntry, error)
}

// Runner runs one nightly pass. *backup.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context) (model.NightlyBackupReport, error)
}

// RetentionOptions selects what Retention operates on.
type RetentionOptions struct {
	// Prefix is a single container prefix. When empty every container
	// prefix under storage.NightlyRoot is processed.
	Prefix string
	Config model.RetentionConfig
	Now    time.Time
	DryRun bool
}

// Run backs up the node now and prints the report. When recorder is non-nil
// the outcome is also written to the status table.
func Run(ctx context.Context, out io.Writer, r Runner, recorder backup.StatusRecorder) error {
	report, err := r.Run(ctx)
	if err != nil && len(report.Results) == 0 {
		return err
	}
	if recorder != nil {
		if recErr := backup.RecordReport(ctx, recorder, report); recErr != nil {
			return recErr
		}
	}
	if werr := writeJSON(out, report); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d containers failed", len(report.Failed), len(report.Results))
	}
	return nil
}

// Retention enforces, or with DryRun only computes, the retention policy and
// prints the result per prefix.
func Retention(ctx context.Context, out io.Writer, logger zerolog.Logger, store storage.ObjectStore, opts RetentionOptions) error {
	prefixes := []string{opts.Prefix}
	if opts.Prefix == "" {
		objects, err := store.List(ctx, storage.NightlyRoot)
		if err != nil {
			return fmt.Errorf("list %s: %w", storage.NightlyRoot, err)
		}
		prefixes = backup.ContainerPrefixes(objects)
	}

	engine := backup.NewRetentionEngine(logger, store, nil)
	results := make(map[string]model.RetentionResult, len(prefixes))
	for _, prefix := range prefixes {
		if !opts.DryRun {
			results[prefix] = engine.Enforce(ctx, prefix, opts.Config, opts.Now)
			continue
		}
		objects, err := store.List(ctx, prefix)
		if err != nil {
			logger.Error().Err(err).Str("prefix", prefix).Msg("failed to list backups, skipping retention")
			results[prefix] = model.RetentionResult{Kept: []string{}, Deleted: []string{}, Errors: []string{}}
			continue
		}
		kept, deleted := backup.SelectRetained(objects, opts.Config, opts.Now)
		results[prefix] = model.RetentionResult{Kept: kept, Deleted: deleted, Errors: []string{}}
	}
	return writeJSON(out, results)
}

// Verify checks a sample of archives and prints the report. Any invalid
// archive makes the command fail.
func Verify(ctx context.Context, out io.Writer, v *backup.Verifier, prefix string, limit int) error {
	report := v.Verify(ctx, prefix, limit)
	if err := writeJSON(out, report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d archives failed verification", report.Failed, report.TotalChecked)
	}
	return nil
}

// Decrypt restores the plaintext archive from an encrypted download.
func Decrypt(enc backup.Encryptor, inputPath, outputPath string, key []byte) error {
	if key == nil {
		return fmt.Errorf("BACKUP_ENCRYPTION_KEY is required to decrypt")
	}
	return enc.DecryptFile(inputPath, outputPath, key)
}

// Keygen prints a new hex-encoded archive key.
func Keygen(out io.Writer) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hex.EncodeToString(key))
	return err
}

// Status prints every container's backup status, or only the stale ones.
func Status(ctx context.Context, out io.Writer, r StatusReader, staleOnly bool) error {
	list := r.ListAll
	if staleOnly {
		list = r.ListStale
	}
	entries, err := list(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, entries)
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
