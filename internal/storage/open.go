package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Drivers accepted by Open.
const (
	DriverSDK   = "sdk"
	DriverS3cmd = "s3cmd"
)

// retryBase is the first backoff interval of a retrying store.
const retryBase = 2 * time.Second

// OpenConfig selects and configures an ObjectStore implementation.
type OpenConfig struct {
	Driver      string
	Spaces      SpacesConfig
	S3cmdConfig string
	Retries     int
}

// Open builds the ObjectStore named by cfg.Driver, wrapped with retries when
// cfg.Retries is positive.
func Open(logger zerolog.Logger, cfg OpenConfig) (ObjectStore, error) {
	if cfg.Spaces.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is not configured")
	}

	var store ObjectStore
	switch cfg.Driver {
	case DriverSDK, "":
		store = NewSpacesClient(logger, cfg.Spaces)
	case DriverS3cmd:
		store = NewCmdClient(logger, cfg.Spaces.Bucket, cfg.S3cmdConfig)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
	return NewRetrying(logger, store, cfg.Retries, retryBase), nil
}
