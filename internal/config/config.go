package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edvin/backupd/internal/crypto"
	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// Roles accepted by Validate.
const (
	RoleAgent  = "backup-agent"
	RoleWorker = "backup-worker"
	RoleCtl    = "backupctl"
)

type Config struct {
	// NodeID identifies this node in archive keys and selects the
	// "node-{id}" task queue.
	NodeID      string
	ServiceName string
	LogLevel    string

	TemporalAddress       string
	TemporalNamespace     string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	CoreDatabaseURL string
	MetricsAddr     string

	BackupDir      string
	VerifyTempDir  string
	EncryptionKey  string
	ContainerLabel string
	DockerHost     string

	SpacesDriver      string
	SpacesEndpoint    string
	SpacesRegion      string
	SpacesBucket      string
	SpacesAccessKey   string
	SpacesSecretKey   string
	SpacesPathStyle   bool
	SpacesS3cmdConfig string
	SpacesRetries     int

	NightlyCron   string
	RetentionCron string
	VerifyCron    string

	RetentionDaily  int
	RetentionWeekly int
	RetentionMinAge time.Duration
	VerifyPrefix    string
	VerifyLimit     int
}

func Load() (*Config, error) {
	cfg := &Config{
		NodeID:      getEnv("NODE_ID", ""),
		ServiceName: getEnv("SERVICE_NAME", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:     getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		CoreDatabaseURL: getEnv("CORE_DATABASE_URL", ""),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),

		BackupDir:      getEnv("BACKUP_DIR", "/var/backups/nightly"),
		VerifyTempDir:  getEnv("BACKUP_VERIFY_TEMP_DIR", "/tmp/backup-verify"),
		EncryptionKey:  getEnv("BACKUP_ENCRYPTION_KEY", ""),
		ContainerLabel: getEnv("BACKUP_CONTAINER_LABEL", "hosting.tenant"),
		DockerHost:     getEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),

		SpacesDriver:      getEnv("SPACES_DRIVER", storage.DriverSDK),
		SpacesEndpoint:    getEnv("SPACES_ENDPOINT", ""),
		SpacesRegion:      getEnv("SPACES_REGION", "us-east-1"),
		SpacesBucket:      getEnv("SPACES_BUCKET", ""),
		SpacesAccessKey:   getEnv("SPACES_ACCESS_KEY", ""),
		SpacesSecretKey:   getEnv("SPACES_SECRET_KEY", ""),
		SpacesS3cmdConfig: getEnv("SPACES_S3CMD_CONFIG", ""),

		NightlyCron:   getEnv("BACKUP_NIGHTLY_CRON", "0 3 * * *"),
		RetentionCron: getEnv("BACKUP_RETENTION_CRON", "0 5 * * *"),
		VerifyCron:    getEnv("BACKUP_VERIFY_CRON", "0 6 * * 0"),
		VerifyPrefix:  getEnv("BACKUP_VERIFY_PREFIX", storage.NightlyRoot),
	}

	var errs []error
	cfg.SpacesPathStyle = getBool("SPACES_PATH_STYLE", false, &errs)
	cfg.SpacesRetries = getInt("SPACES_RETRIES", 0, &errs)
	cfg.RetentionDaily = getInt("BACKUP_RETENTION_DAILY", model.DefaultRetentionConfig().DailyCount, &errs)
	cfg.RetentionWeekly = getInt("BACKUP_RETENTION_WEEKLY", model.DefaultRetentionConfig().WeeklyCount, &errs)
	cfg.RetentionMinAge = getDuration("BACKUP_RETENTION_MIN_AGE", model.DefaultRetentionMinAge, &errs)
	cfg.VerifyLimit = getInt("BACKUP_VERIFY_LIMIT", 5, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings needed by role are present and well formed.
func (c *Config) Validate(role string) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch role {
	case RoleAgent:
		require("NODE_ID", c.NodeID)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("BACKUP_DIR", c.BackupDir)
		require("SPACES_BUCKET", c.SpacesBucket)
	case RoleWorker:
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("SPACES_BUCKET", c.SpacesBucket)
		require("BACKUP_VERIFY_TEMP_DIR", c.VerifyTempDir)
	case RoleCtl:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required config for %s: %s", role, strings.Join(missing, ", ")))
	}
	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		errs = append(errs, fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set"))
	}
	if c.SpacesDriver != storage.DriverSDK && c.SpacesDriver != storage.DriverS3cmd {
		errs = append(errs, fmt.Errorf("SPACES_DRIVER must be %q or %q, got %q", storage.DriverSDK, storage.DriverS3cmd, c.SpacesDriver))
	}
	if c.RetentionDaily < 0 || c.RetentionWeekly < 0 {
		errs = append(errs, fmt.Errorf("BACKUP_RETENTION_DAILY and BACKUP_RETENTION_WEEKLY must not be negative"))
	}
	if c.RetentionMinAge < 0 {
		errs = append(errs, fmt.Errorf("BACKUP_RETENTION_MIN_AGE must not be negative"))
	}
	if _, err := c.Key(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Key returns the parsed BACKUP_ENCRYPTION_KEY, or nil when unset.
func (c *Config) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := crypto.ParseKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("BACKUP_ENCRYPTION_KEY: %w", err)
	}
	return key, nil
}

// Retention returns the configured retention policy.
func (c *Config) Retention() model.RetentionConfig {
	return model.RetentionConfig{
		DailyCount:  c.RetentionDaily,
		WeeklyCount: c.RetentionWeekly,
		MinAge:      c.RetentionMinAge,
	}
}

// Store returns the object store settings.
func (c *Config) Store() storage.OpenConfig {
	return storage.OpenConfig{
		Driver: c.SpacesDriver,
		Spaces: storage.SpacesConfig{
			Endpoint:  c.SpacesEndpoint,
			Region:    c.SpacesRegion,
			Bucket:    c.SpacesBucket,
			AccessKey: c.SpacesAccessKey,
			SecretKey: c.SpacesSecretKey,
			PathStyle: c.SpacesPathStyle,
		},
		S3cmdConfig: c.SpacesS3cmdConfig,
		Retries:     c.SpacesRetries,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}
