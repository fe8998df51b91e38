package syncbox

import "time"

const (
	defaultBatchSize      = 50
	defaultPollInterval   = time.Second
	defaultAttemptTimeout = 30 * time.Second
	defaultPendingCheck   = 0
)

// RelayConfig defines how the Relay drains the outbox.
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryInterval is how often Run resets FAILED entries. Zero disables it.
	RetryInterval time.Duration
	// AttemptTimeout bounds a single Remote.Apply call.
	AttemptTimeout time.Duration
	// ContinueOnFailure keeps draining a batch after a failed entry instead
	// of halting at it.
	ContinueOnFailure bool
	Clock             Clock
	FailureHandler    FailureHandler
	Logger            Logger
	Metrics           Metrics
	PendingInterval   time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RetryInterval < 0 {
		c.RetryInterval = 0
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// RelayOption configures Relay behavior.
type RelayOption func(*RelayConfig)

// WithBatchSize sets the number of entries drained per pass.
func WithBatchSize(size int) RelayOption {
	return func(c *RelayConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the delay between drain passes in Run.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PollInterval = interval
	}
}

// WithRetryInterval makes Run reset FAILED entries to PENDING at most once
// per interval.
func WithRetryInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.RetryInterval = interval
	}
}

// WithAttemptTimeout sets the per-entry delivery timeout.
func WithAttemptTimeout(timeout time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.AttemptTimeout = timeout
	}
}

// WithContinueOnFailure keeps draining after a failed entry. Later entries
// that depend on the failed one are rejected by the remote and retried on a
// following sweep.
func WithContinueOnFailure() RelayOption {
	return func(c *RelayConfig) {
		c.ContinueOnFailure = true
	}
}

// WithClock sets the Relay clock.
func WithClock(clock Clock) RelayOption {
	return func(c *RelayConfig) {
		c.Clock = clock
	}
}

// WithFailureHandler registers a callback for failed deliveries.
func WithFailureHandler(handler FailureHandler) RelayOption {
	return func(c *RelayConfig) {
		c.FailureHandler = handler
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger Logger) RelayOption {
	return func(c *RelayConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the relay metrics recorder.
func WithMetrics(metrics Metrics) RelayOption {
	return func(c *RelayConfig) {
		c.Metrics = metrics
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PendingInterval = interval
	}
}
