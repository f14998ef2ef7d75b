package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"
)

// ErrMissingKey is raised when a required config key is absent or empty.
var ErrMissingKey = errors.New("missing required config key")

// ErrKeepCountTooLow is raised when KEEP_COUNT is below the minimum of 2.
var ErrKeepCountTooLow = errors.New("KEEP_COUNT must be at least 2")

const lockFileName = ".drift-backup.lock"

// Config is the job configuration for a backup or snapshot run.
//
// Keys keep the upper-case names of the legacy script configs so existing
// config files stay valid after migration. BACKUP_DIRS maps a source
// directory to the exclusion pattern passed to the engine for that
// directory; an empty pattern means no exclusion.
//
// The file is parsed with yaml.v2 rather than viper: viper lowercases map
// keys, and BACKUP_DIRS keys are case-sensitive filesystem paths.
type Config struct {
	LogDir   string `yaml:"LOG_DIR"`
	LockFile string `yaml:"LOCK_FILE"`
	DryRun   bool   `yaml:"DRY_RUN"`

	BackupDirs map[string]string `yaml:"BACKUP_DIRS"`

	S3Bucket           string `yaml:"S3_BUCKET"`
	B2Bucket           string `yaml:"B2_BUCKET"`
	ResticRepository   string `yaml:"RESTIC_REPOSITORY"`
	ResticPasswordFile string `yaml:"RESTIC_PASSWORD_FILE"`

	AWSAccessKey string   `yaml:"AWS_ACCESS_KEY"`
	AWSSecretKey string   `yaml:"AWS_SECRET_KEY"`
	AWSRegion    string   `yaml:"AWS_REGION"`
	VolumeIDs    []string `yaml:"VOLUME_IDS"`
	KeepCount    int      `yaml:"KEEP_COUNT"`

	Schedule         string `yaml:"SCHEDULE"`
	SnapshotSchedule string `yaml:"SNAPSHOT_SCHEDULE"`

	S3cmdPath  string `yaml:"S3CMD_PATH"`
	ResticPath string `yaml:"RESTIC_PATH"`
	B2CliPath  string `yaml:"B2_CLI_PATH"`
}

// Load reads and parses the config file at path. It does not validate;
// callers run the Validate* method matching the requested operation.
func Load(path string) (*Config, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.UnmarshalStrict(buf, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}

// LockPath returns the lock file path, defaulting to a dotfile under LOG_DIR.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(c.LogDir, lockFileName)
}

// SortedBackupDirs returns the configured source directories in a stable
// order. Iteration order over the map is irrelevant to correctness, but a
// stable order keeps run logs comparable across runs.
func (c *Config) SortedBackupDirs() []string {
	dirs := make([]string, 0, len(c.BackupDirs))
	for dir := range c.BackupDirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Validate checks the keys every operation needs. It runs before anything
// external is touched, so a bad config never creates a log file or reaches
// a backup tool.
func (c *Config) Validate() error {
	if c.LogDir == "" {
		return fmt.Errorf("%w: LOG_DIR", ErrMissingKey)
	}
	if fi, err := os.Stat(c.LogDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("LOG_DIR %s is not a directory", c.LogDir)
	}
	return nil
}

// ValidateBackup checks the keys a backup run needs on top of Validate.
func (c *Config) ValidateBackup() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.BackupDirs) == 0 {
		return fmt.Errorf("%w: BACKUP_DIRS", ErrMissingKey)
	}
	if c.S3Bucket == "" && c.B2Bucket == "" && c.ResticRepository == "" {
		return fmt.Errorf("%w: one of S3_BUCKET, B2_BUCKET, RESTIC_REPOSITORY", ErrMissingKey)
	}
	if c.ResticRepository != "" && c.ResticPasswordFile == "" {
		return fmt.Errorf("%w: RESTIC_PASSWORD_FILE", ErrMissingKey)
	}
	return nil
}

// ValidateSnapshot checks the keys the snapshot manager needs on top of
// Validate. The KEEP_COUNT floor is enforced here as well as in the
// retention selector so a bad config fails before any API call.
func (c *Config) ValidateSnapshot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, key := range []struct{ name, value string }{
		{"AWS_ACCESS_KEY", c.AWSAccessKey},
		{"AWS_SECRET_KEY", c.AWSSecretKey},
		{"AWS_REGION", c.AWSRegion},
	} {
		if key.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingKey, key.name)
		}
	}
	if len(c.VolumeIDs) == 0 {
		return fmt.Errorf("%w: VOLUME_IDS", ErrMissingKey)
	}
	if c.KeepCount < 2 {
		return ErrKeepCountTooLow
	}
	return nil
}
