package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// DefaultMinArchiveSize is the smallest plausible gzipped container export.
const DefaultMinArchiveSize = 512

var errNoDecryptionKey = errors.New("encrypted archive but no key configured")

// VerifierConfig configures a Verifier. EncryptionKey is needed to check
// ".enc" archives.
type VerifierConfig struct {
	TempDir        string
	EncryptionKey  []byte
	MinArchiveSize int64
}

// Verifier downloads a sample of remote archives and proves they decompress.
type Verifier struct {
	logger    zerolog.Logger
	store     storage.ObjectStore
	encryptor Encryptor
	cfg       VerifierConfig
	metrics   Metrics
}

// NewVerifier creates a Verifier. m may be nil.
func NewVerifier(logger zerolog.Logger, store storage.ObjectStore, encryptor Encryptor, cfg VerifierConfig, m Metrics) *Verifier {
	if cfg.MinArchiveSize <= 0 {
		cfg.MinArchiveSize = DefaultMinArchiveSize
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Verifier{
		logger:    logger.With().Str("component", "backup-verifier").Logger(),
		store:     store,
		encryptor: encryptor,
		cfg:       cfg,
		metrics:   m,
	}
}

// Verify checks at most limit objects under prefix, newest first; limit <= 0
// checks all of them. Each object is judged independently and a listing
// failure yields an empty report.
func (v *Verifier) Verify(ctx context.Context, prefix string, limit int) model.VerificationReport {
	logger := v.logger.With().Str("prefix", prefix).Logger()
	report := model.VerificationReport{Results: []model.VerificationResult{}}

	objects, err := v.store.List(ctx, prefix)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list backups for verification")
		return report
	}

	sample := slices.Clone(objects)
	sort.SliceStable(sample, func(i, j int) bool {
		return sample[i].Date.After(sample[j].Date)
	})
	if limit > 0 && len(sample) > limit {
		sample = sample[:limit]
	}

	if err := os.MkdirAll(v.cfg.TempDir, 0750); err != nil {
		logger.Error().Err(err).Str("dir", v.cfg.TempDir).Msg("failed to create verification scratch dir")
	}

	for i, obj := range sample {
		res := model.VerificationResult{Path: obj.Path, Valid: true}
		if err := v.verifyObject(ctx, i, obj); err != nil {
			res.Valid = false
			res.Error = err.Error()
			report.Failed++
			logger.Error().Str("object", obj.Path).Err(err).Msg("backup verification failed")
		} else {
			report.Passed++
			logger.Debug().Str("object", obj.Path).Msg("backup verified")
		}
		report.Results = append(report.Results, res)
	}
	report.TotalChecked = len(report.Results)

	logger.Info().
		Int("checked", report.TotalChecked).
		Int("passed", report.Passed).
		Int("failed", report.Failed).
		Msg("backup verification finished")
	v.metrics.ObserveVerification(report)
	return report
}

func (v *Verifier) verifyObject(ctx context.Context, i int, obj model.SpacesObject) error {
	local := filepath.Join(v.cfg.TempDir, fmt.Sprintf("%d_%s", i, path.Base(obj.Path)))
	defer v.cleanup(local)

	if err := v.store.Download(ctx, obj.Path, local); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	archive := local
	if strings.HasSuffix(obj.Path, crypto.EncryptedSuffix) {
		if v.cfg.EncryptionKey == nil {
			return errNoDecryptionKey
		}
		archive = strings.TrimSuffix(local, crypto.EncryptedSuffix)
		defer v.cleanup(archive)
		if err := v.encryptor.DecryptFile(local, archive, v.cfg.EncryptionKey); err != nil {
			return err
		}
	}

	return checkGzip(archive, v.cfg.MinArchiveSize)
}

func (v *Verifier) cleanup(path string) {
	if err := cleanup(path); err != nil {
		v.logger.Warn().Err(err).Str("path", path).Msg("failed to remove verification scratch file")
	}
}

// checkGzip pulls the whole file through the gzip decompressor so a
// truncated archive with a valid header still fails.
func checkGzip(path string, minSize int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < minSize {
		return fmt.Errorf("archive too small: %d bytes (minimum %d)", info.Size(), minSize)
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	if _, err := io.Copy(io.Discard, gz); err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}
	return nil
}
