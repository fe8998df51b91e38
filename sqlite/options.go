package sqlite

import (
	"time"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/internal/sqlstore"
)

const (
	defaultTable       = "outbox"
	defaultDriver      = "sqlite"
	defaultBusyTimeout = 5 * time.Second
)

// Config defines SQLite store behavior.
type Config struct {
	Table            string
	Clock            syncbox.Clock
	Generator        syncbox.IDGenerator
	AllowUnsupported bool
	// BusyTimeout is applied by Open as the busy_timeout pragma.
	BusyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	base := c.base()
	c.Table = base.Table
	c.Clock = base.Clock
	c.Generator = base.Generator

	return c
}

func (c Config) base() sqlstore.Config {
	return sqlstore.Config{
		Table:            c.Table,
		Clock:            c.Clock,
		Generator:        c.Generator,
		AllowUnsupported: c.AllowUnsupported,
	}.WithDefaults(defaultTable)
}

// Option configures the SQLite store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithClock sets the time source used for created_at.
func WithClock(clock syncbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the op id generator.
func WithGenerator(gen syncbox.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// WithAllowUnsupported accepts operations without a dedicated remote route.
func WithAllowUnsupported(enabled bool) Option {
	return func(c *Config) {
		c.AllowUnsupported = enabled
	}
}

// WithBusyTimeout sets how long Open'ed connections wait on a locked database.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.BusyTimeout = timeout
	}
}
