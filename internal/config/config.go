// Package config holds the syncbox command settings. Values come from flags,
// and SYNCBOX_* environment variables fill in any flag not set explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable, e.g. SYNCBOX_DB_DRIVER.
const EnvPrefix = "SYNCBOX_"

// Supported database drivers.
const (
	DriverSQLite     = "sqlite"
	DriverSQLiteCgo  = "sqlite3"
	DriverMySQL      = "mysql"
	defaultTable     = "outbox"
	defaultListen    = "127.0.0.1:8787"
	defaultBatchSize = 50
	defaultLogLevel  = "info"
	defaultAppDir    = "syncbox"
)

var (
	// ErrUnknownDriver is returned for an unsupported database driver.
	ErrUnknownDriver = errors.New("config: unknown database driver")
	// ErrDSNRequired is returned when no data source is configured.
	ErrDSNRequired = errors.New("config: dsn is required")
	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("config: batch size must be positive")
	// ErrInvalidInterval is returned for negative durations.
	ErrInvalidInterval = errors.New("config: intervals must not be negative")
)

// Config holds every setting of the syncbox command.
type Config struct {
	DBDriver          string
	DSN               string
	Table             string
	DeviceIDFile      string
	RemoteURL         string
	APIKey            string
	BatchSize         int
	PollInterval      time.Duration
	RetryInterval     time.Duration
	AttemptTimeout    time.Duration
	ContinueOnFailure bool
	LogLevel          string
	LogJSON           bool
	ListenAddr        string
}

// Default returns the settings used when nothing is configured. Local files
// live under the user config directory.
func Default() Config {
	dir := defaultDir()

	return Config{
		DBDriver:       DriverSQLite,
		DSN:            filepath.Join(dir, "outbox.db"),
		Table:          defaultTable,
		DeviceIDFile:   filepath.Join(dir, "device-id"),
		BatchSize:      defaultBatchSize,
		PollInterval:   5 * time.Second,
		RetryInterval:  time.Minute,
		AttemptTimeout: 30 * time.Second,
		LogLevel:       defaultLogLevel,
		ListenAddr:     defaultListen,
	}
}

// BindFlags registers a flag for every field, using the current values of
// cfg as defaults.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "database driver: sqlite, sqlite3 or mysql")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "database file or data source name")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "outbox table name")
	fs.StringVar(&cfg.DeviceIDFile, "device-id-file", cfg.DeviceIDFile, "file holding the device id")
	fs.StringVar(&cfg.RemoteURL, "remote-url", cfg.RemoteURL, "sync apply endpoint, e.g. https://host/sync/apply")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "key sent to the remote")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "entries drained per pass")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "delay between drain passes in watch mode")
	fs.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "how often failed entries are retried in watch mode, 0 disables")
	fs.DurationVar(&cfg.AttemptTimeout, "attempt-timeout", cfg.AttemptTimeout, "timeout of a single delivery")
	fs.BoolVar(&cfg.ContinueOnFailure, "continue-on-failure", cfg.ContinueOnFailure, "keep draining after a failed entry")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log in JSON")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "address of the serve command")
}

// ApplyEnv sets every flag that was not given on the command line from its
// environment variable, if present. lookup defaults to os.LookupEnv.
func ApplyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		name := EnvName(f.Name)
		value, ok := lookup(name)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	})

	return errors.Join(errs...)
}

// EnvName returns the environment variable bound to a flag name.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverSQLiteCgo, DriverMySQL:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.DBDriver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return ErrDSNRequired
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.PollInterval < 0 || c.RetryInterval < 0 || c.AttemptTimeout < 0 {
		return ErrInvalidInterval
	}

	return nil
}

// IsSQLite reports whether the configured driver is one of the sqlite ones.
func (c Config) IsSQLite() bool {
	return c.DBDriver == DriverSQLite || c.DBDriver == DriverSQLiteCgo
}

func defaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, defaultAppDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+defaultAppDir)
	}

	return "."
}
