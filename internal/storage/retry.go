package storage

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/edvin/backupd/internal/model"
)

// Retrying wraps an ObjectStore and retries failed calls with exponential
// backoff. Local file errors and context cancellation are not retried.
type Retrying struct {
	next     ObjectStore
	logger   zerolog.Logger
	attempts uint64
	base     time.Duration
}

// NewRetrying returns store unchanged when retries is zero.
func NewRetrying(logger zerolog.Logger, store ObjectStore, retries int, base time.Duration) ObjectStore {
	if retries <= 0 {
		return store
	}
	return &Retrying{
		next:     store,
		logger:   logger.With().Str("component", "store-retry").Logger(),
		attempts: uint64(retries),
		base:     base,
	}
}

func (r *Retrying) do(ctx context.Context, op, key string, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(r.attempts, retry.NewExponential(r.base))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !transient(err) {
			return err
		}
		r.logger.Warn().Err(err).Str("op", op).Str("key", key).Int("attempt", attempt).Msg("object store call failed, retrying")
		return retry.RetryableError(err)
	})
}

func transient(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, os.ErrNotExist) &&
		!errors.Is(err, os.ErrPermission)
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]model.SpacesObject, error) {
	var objects []model.SpacesObject
	err := r.do(ctx, "list", prefix, func(ctx context.Context) error {
		var err error
		objects, err = r.next.List(ctx, prefix)
		return err
	})
	return objects, err
}

func (r *Retrying) Upload(ctx context.Context, localPath, remotePath string) error {
	return r.do(ctx, "upload", remotePath, func(ctx context.Context) error {
		return r.next.Upload(ctx, localPath, remotePath)
	})
}

func (r *Retrying) Download(ctx context.Context, remotePath, localPath string) error {
	return r.do(ctx, "download", remotePath, func(ctx context.Context) error {
		return r.next.Download(ctx, remotePath, localPath)
	})
}

func (r *Retrying) Remove(ctx context.Context, remotePath string) error {
	return r.do(ctx, "remove", remotePath, func(ctx context.Context) error {
		return r.next.Remove(ctx, remotePath)
	})
}

func (r *Retrying) RemoveMany(ctx context.Context, remotePaths []string) error {
	return r.do(ctx, "remove-many", "", func(ctx context.Context) error {
		return r.next.RemoveMany(ctx, remotePaths)
	})
}
