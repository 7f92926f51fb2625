// Package backup implements the nightly backup lifecycle for tenant
// containers: export and upload, daily/weekly retention of remote archives,
// restore verification, and per-container status tracking.
package backup

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/edvin/backupd/internal/model"
)

// Exporter produces container archives on local disk.
type Exporter interface {
	// ListTenantContainers returns the names of the tenant containers on this node.
	ListTenantContainers(ctx context.Context) ([]string, error)
	// Export writes {dir}/{name}.tar.gz and returns its path.
	Export(ctx context.Context, name, dir string) (string, error)
}

// Encryptor encrypts and decrypts archive files. *crypto.ArchiveEncryptor satisfies it.
type Encryptor interface {
	EncryptFile(inputPath, outputPath string, key []byte) error
	DecryptFile(inputPath, outputPath string, key []byte) error
}

// Metrics receives job outcomes. *metrics.Backup satisfies it.
type Metrics interface {
	ObserveBackup(result model.BackupResult)
	ObserveRetention(result model.RetentionResult)
	ObserveVerification(report model.VerificationReport)
}

type nopMetrics struct{}

func (nopMetrics) ObserveBackup(model.BackupResult)             {}
func (nopMetrics) ObserveRetention(model.RetentionResult)       {}
func (nopMetrics) ObserveVerification(model.VerificationReport) {}

// cleanup removes a local artifact. A file that is already gone is not an error.
func cleanup(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
