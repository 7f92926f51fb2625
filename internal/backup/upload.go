package backup

import (
	"fmt"

	"github.com/edvin/backupd/internal/crypto"
)

// UploadPlan is the artifact resolved for one container: a PlaintextUpload
// or an EncryptedUpload. It is decided once, before size measurement.
type UploadPlan interface {
	Paths() (localPath, remotePath string)
	Encrypted() bool
}

// PlaintextUpload uploads the archive as exported.
type PlaintextUpload struct {
	LocalPath  string
	RemotePath string
}

func (p PlaintextUpload) Paths() (string, string) { return p.LocalPath, p.RemotePath }
func (p PlaintextUpload) Encrypted() bool         { return false }

// EncryptedUpload uploads the ".enc" variant; the plaintext has been removed.
type EncryptedUpload struct {
	LocalPath  string
	RemotePath string
}

func (p EncryptedUpload) Paths() (string, string) { return p.LocalPath, p.RemotePath }
func (p EncryptedUpload) Encrypted() bool         { return true }

// planUpload encrypts the archive when a key is configured and returns the
// plan to upload. After a successful encryption the plaintext is gone from
// disk; if it cannot be removed the ciphertext is discarded and an error returned.
func planUpload(enc Encryptor, key []byte, localPath, remotePath string) (UploadPlan, error) {
	if key == nil {
		return PlaintextUpload{LocalPath: localPath, RemotePath: remotePath}, nil
	}

	encPath := localPath + crypto.EncryptedSuffix
	if err := enc.EncryptFile(localPath, encPath, key); err != nil {
		_ = cleanup(encPath)
		return nil, fmt.Errorf("encrypt %s: %w", localPath, err)
	}
	if err := cleanup(localPath); err != nil {
		_ = cleanup(encPath)
		return nil, fmt.Errorf("remove plaintext %s: %w", localPath, err)
	}
	return EncryptedUpload{LocalPath: encPath, RemotePath: remotePath + crypto.EncryptedSuffix}, nil
}
