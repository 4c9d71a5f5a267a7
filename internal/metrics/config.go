package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultBatchSize    = 12
	defaultBatchTimeout = 60 * time.Second
	backupDirName       = "backups"
)

type Config struct {
	DBPath string
	// BatchSize samples are buffered before a write. 1 writes every sample.
	BatchSize int
	// BatchTimeout flushes a partial batch. Zero disables timed flushing.
	BatchTimeout time.Duration
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Defaults to a backups directory next to DBPath.
	BackupDir string
	// Endpoint is stored with every sample.
	Endpoint string
	Enabled  bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "batch size and timeout must not be negative")
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
