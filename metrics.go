package syncbox

import "time"

// Metrics captures relay-level telemetry.
type Metrics interface {
	// ObserveDrainDuration records the time taken by one drain pass.
	ObserveDrainDuration(duration time.Duration)
	// AddDelivered increments the count of entries accepted by the remote.
	AddDelivered(count int)
	// AddFailed increments the count of failed delivery attempts.
	AddFailed(count int)
	// AddRetried increments the count of FAILED entries reset to PENDING.
	AddRetried(count int)
	// SetPending updates the current pending entry count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveDrainDuration implements Metrics.
func (NopMetrics) ObserveDrainDuration(time.Duration) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddRetried implements Metrics.
func (NopMetrics) AddRetried(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
