package mysql

import (
	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/internal/sqlstore"
)

const defaultTable = "outbox"

// Config defines MySQL store behavior.
type Config struct {
	Table            string
	Clock            syncbox.Clock
	Generator        syncbox.IDGenerator
	AllowUnsupported bool
}

func (c Config) withDefaults() Config {
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

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithClock sets the time source used by the store.
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
