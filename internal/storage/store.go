package storage

import (
	"context"

	"github.com/edvin/backupd/internal/model"
)

// ObjectStore is the object-store surface the backup jobs depend on.
// Paths are bucket-relative keys such as "nightly/node-1/tenant_abc/tenant_abc_20260213.tar.gz".
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]model.SpacesObject, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	Remove(ctx context.Context, remotePath string) error
	RemoveMany(ctx context.Context, remotePaths []string) error
}
