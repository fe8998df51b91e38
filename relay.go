package syncbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	invalidPayloadMessage = "invalid outbox payload"
	defaultFailureMessage = "sync failed"
)

// FailureHandler is called after a delivery attempt fails.
type FailureHandler func(ctx context.Context, entry Entry, result Result)

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int
	Delivered int
	Failed    int
	// Halted is set when the pass stopped at a failed entry.
	Halted bool
}

// Relay drains pending outbox entries into a Remote, oldest first.
// Drain passes are serialized, so Run and manual calls never interleave.
type Relay struct {
	store    Store
	remote   Remote
	deviceID string
	cfg      RelayConfig

	drainMu sync.Mutex

	pendingMu sync.Mutex
	pendingAt time.Time
}

// NewRelay constructs a Relay with defaults and optional settings.
func NewRelay(store Store, remote Remote, deviceID string, opts ...RelayOption) *Relay {
	if store == nil {
		panic("syncbox: nil Store")
	}
	if remote == nil {
		panic("syncbox: nil Remote")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Relay{
		store:    store,
		remote:   remote,
		deviceID: deviceID,
		cfg:      cfg,
	}
}

// Run drains the outbox every PollInterval until ctx is done. Store errors
// are logged and the loop continues. When RetryInterval is set, FAILED
// entries are reset to PENDING before the first pass and then at most once
// per interval.
func (r *Relay) Run(ctx context.Context) error {
	var lastRetry time.Time
	for {
		if err := ctx.Err(); err != nil {
			return ignoreCanceled(err)
		}

		if r.cfg.RetryInterval > 0 {
			now := r.cfg.Clock.Now()
			if lastRetry.IsZero() || now.Sub(lastRetry) >= r.cfg.RetryInterval {
				lastRetry = now
				if _, err := r.resetFailed(ctx); err != nil && ctx.Err() == nil {
					r.cfg.Logger.Error("syncbox reset failed entries failed", "err", err)
				}
			}
		}

		res, err := r.DrainOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ignoreCanceled(ctx.Err())
			}
			r.cfg.Logger.Error("syncbox drain failed", "err", err)
		}

		if err == nil && !res.Halted && res.Attempted >= r.cfg.BatchSize {
			continue
		}
		if sleepErr := r.sleep(ctx, r.cfg.PollInterval); sleepErr != nil {
			return ignoreCanceled(sleepErr)
		}
	}
}

// DrainOnce delivers up to BatchSize pending entries in FIFO order.
//
// Accepted entries are marked DONE and rejected ones FAILED. By default the
// pass halts at the first failure so later entries cannot overtake an entry
// they may depend on. Errors from the store abort the pass and are returned.
func (r *Relay) DrainOnce(ctx context.Context) (DrainResult, error) {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveDrainDuration(time.Since(start))
	}()

	entries, err := r.store.ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return DrainResult{}, fmt.Errorf("syncbox list pending failed: %w", err)
	}

	res, err := r.deliverAll(ctx, entries)
	r.cfg.Metrics.AddDelivered(res.Delivered)
	r.cfg.Metrics.AddFailed(res.Failed)
	if err != nil {
		return res, err
	}

	if res.Attempted > 0 {
		r.cfg.Logger.Debug("syncbox drain finished",
			"attempted", res.Attempted,
			"delivered", res.Delivered,
			"failed", res.Failed,
			"halted", res.Halted,
		)
	}
	r.maybeRecordPending(ctx)

	return res, nil
}

// RetryFailed resets every FAILED entry to PENDING and drains once.
func (r *Relay) RetryFailed(ctx context.Context) (DrainResult, error) {
	if _, err := r.resetFailed(ctx); err != nil {
		return DrainResult{}, err
	}

	return r.DrainOnce(ctx)
}

// RetryEntry resets a single FAILED entry and attempts to deliver it
// immediately, regardless of its position in the queue. Entries that are
// missing or already DONE are left untouched.
func (r *Relay) RetryEntry(ctx context.Context, id int64) (DrainResult, error) {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	if err := r.store.ResetFailed(ctx, id); err != nil {
		return DrainResult{}, fmt.Errorf("syncbox reset failed entry failed: %w", err)
	}
	entry, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return DrainResult{}, fmt.Errorf("syncbox get entry failed: %w", err)
	}
	if !ok || entry.Status != StatusPending {
		return DrainResult{}, nil
	}
	r.cfg.Metrics.AddRetried(1)

	res, err := r.deliverAll(ctx, []Entry{entry})
	r.cfg.Metrics.AddDelivered(res.Delivered)
	r.cfg.Metrics.AddFailed(res.Failed)

	return res, err
}

func (r *Relay) resetFailed(ctx context.Context) (int64, error) {
	n, err := r.store.ResetAllFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncbox reset failed entries failed: %w", err)
	}
	if n > 0 {
		r.cfg.Metrics.AddRetried(int(n))
		r.cfg.Logger.Info("syncbox failed entries reset", "count", n)
	}

	return n, nil
}

func (r *Relay) deliverAll(ctx context.Context, entries []Entry) (DrainResult, error) {
	if batch, ok := r.remote.(BatchRemote); ok && len(entries) > 1 {
		return r.deliverBatch(ctx, batch, entries)
	}

	var res DrainResult
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		entry := entries[i]
		if err := r.markAttempt(ctx, entry); err != nil {
			return res, err
		}

		stop, err := r.record(ctx, entry, r.deliver(ctx, entry), &res)
		if err != nil || stop {
			return res, err
		}
	}

	return res, nil
}

// deliverBatch sends entries in one ApplyBatch call and records the results
// in queue order. In halt mode nothing after an undecodable entry is sent, and
// recording stops at the first failure: earlier entries are still marked DONE
// while later ones stay PENDING and are replayed under the same op id.
func (r *Relay) deliverBatch(ctx context.Context, remote BatchRemote, entries []Entry) (DrainResult, error) {
	results := make([]Result, len(entries))
	deliveries := make([]Delivery, 0, len(entries))
	index := make([]int, 0, len(entries))
	sentAt := r.cfg.Clock.Now()

	for i, entry := range entries {
		op, err := Decode(entry)
		if err != nil {
			results[i] = Result{Message: fmt.Sprintf("%s: %v", invalidPayloadMessage, err)}
			if !r.cfg.ContinueOnFailure {
				entries = entries[:i+1]

				break
			}

			continue
		}
		deliveries = append(deliveries, Delivery{
			Envelope: NewEnvelope(entry, op, r.deviceID, sentAt),
			Preview:  Preview(op),
		})
		index = append(index, i)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return DrainResult{}, err
		}
		if err := r.markAttempt(ctx, entry); err != nil {
			return DrainResult{}, err
		}
	}

	if len(deliveries) > 0 {
		for j, result := range r.applyBatch(ctx, remote, deliveries) {
			results[index[j]] = result
		}
	}

	var res DrainResult
	for i, entry := range entries {
		stop, err := r.record(ctx, entry, results[i], &res)
		if err != nil || stop {
			return res, err
		}
	}

	return res, nil
}

func (r *Relay) markAttempt(ctx context.Context, entry Entry) error {
	if err := r.store.MarkAttempt(ctx, entry.ID, r.cfg.Clock.Now()); err != nil {
		r.cfg.Logger.Error("syncbox mark attempt failed", "id", entry.ID, "op_id", entry.OpID, "err", err)
		return fmt.Errorf("syncbox mark attempt failed: %w", err)
	}

	return nil
}

// record stores the outcome of one attempt and reports whether the pass
// must stop.
func (r *Relay) record(ctx context.Context, entry Entry, result Result, res *DrainResult) (bool, error) {
	res.Attempted++
	attemptedAt := r.cfg.Clock.Now()
	// Outcomes are recorded even after the caller cancels.
	updateCtx := context.WithoutCancel(ctx)

	if result.OK {
		if err := r.store.MarkDone(updateCtx, entry.ID, attemptedAt); err != nil {
			r.cfg.Logger.Error("syncbox mark done failed", "id", entry.ID, "op_id", entry.OpID, "err", err)
			return true, fmt.Errorf("syncbox mark done failed: %w", err)
		}
		res.Delivered++

		return false, nil
	}

	if err := r.store.MarkFailed(updateCtx, entry.ID, attemptedAt, result.Message); err != nil {
		r.cfg.Logger.Error("syncbox mark failed failed", "id", entry.ID, "op_id", entry.OpID, "err", err)
		return true, fmt.Errorf("syncbox mark failed failed: %w", err)
	}
	res.Failed++
	r.cfg.Logger.Warn("syncbox delivery failed",
		"id", entry.ID,
		"op_id", entry.OpID,
		"entity", entry.EntityKind,
		"op", entry.OpKind,
		"message", result.Message,
	)
	if r.cfg.FailureHandler != nil {
		r.cfg.FailureHandler(ctx, entry, result)
	}

	if !r.cfg.ContinueOnFailure {
		res.Halted = true

		return true, nil
	}

	return false, nil
}

func (r *Relay) deliver(ctx context.Context, entry Entry) Result {
	op, err := Decode(entry)
	if err != nil {
		return Result{Message: fmt.Sprintf("%s: %v", invalidPayloadMessage, err)}
	}

	preview := Preview(op)
	env := NewEnvelope(entry, op, r.deviceID, r.cfg.Clock.Now())

	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	result := r.apply(attemptCtx, env, preview)
	// An expired attempt may still have been applied remotely: never DONE.
	if err := attemptCtx.Err(); err != nil {
		return Result{Message: fmt.Sprintf("ambiguous delivery: %v", err)}
	}
	if !result.OK && strings.TrimSpace(result.Message) == "" {
		result.Message = defaultFailureMessage
	}

	return result
}

func (r *Relay) apply(ctx context.Context, env Envelope, preview RequestPreview) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Error("syncbox remote panic", "op_id", env.OpID, "panic", rec)
			result = Result{Message: fmt.Sprintf("remote panic: %v", rec)}
		}
	}()

	return r.remote.Apply(ctx, env, preview)
}

// applyBatch returns exactly one Result per delivery. The batch gets one
// AttemptTimeout per delivery; if it expires every result is ambiguous.
func (r *Relay) applyBatch(ctx context.Context, remote BatchRemote, deliveries []Delivery) []Result {
	batchCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout*time.Duration(len(deliveries)))
	defer cancel()

	got := r.callBatch(batchCtx, remote, deliveries)
	expired := batchCtx.Err()

	results := make([]Result, len(deliveries))
	for i := range results {
		switch {
		case expired != nil:
			results[i] = Result{Message: fmt.Sprintf("ambiguous delivery: %v", expired)}
		case i >= len(got):
			results[i] = Result{Message: "missing batch result"}
		default:
			results[i] = got[i]
			if !results[i].OK && strings.TrimSpace(results[i].Message) == "" {
				results[i].Message = defaultFailureMessage
			}
		}
	}

	return results
}

func (r *Relay) callBatch(ctx context.Context, remote BatchRemote, deliveries []Delivery) (results []Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Error("syncbox remote panic", "ops", len(deliveries), "panic", rec)
			results = make([]Result, len(deliveries))
			for i := range results {
				results[i] = Result{Message: fmt.Sprintf("remote panic: %v", rec)}
			}
		}
	}()

	return remote.ApplyBatch(ctx, deliveries)
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Relay) maybeRecordPending(ctx context.Context) {
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := r.store.CountPending(ctx)
	if err != nil {
		r.cfg.Logger.Warn("syncbox pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
