package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/remote"
)

const (
	defaultBenchRecords      = 10000
	defaultBenchPayloadBytes = 256
	percentileP50            = 0.50
	percentileP95            = 0.95
	percentileP99            = 0.99
)

var errBenchIncomplete = errors.New("syncbox bench: outbox did not drain")

type benchConfig struct {
	records       int
	payloadBytes  int
	payloadRandom bool
	payloadSeed   int64
	jsonOut       bool
}

type benchResult struct {
	Records       int           `json:"records"`
	BatchSize     int           `json:"batch_size"`
	PayloadBytes  int           `json:"payload_bytes"`
	SeedDuration  time.Duration `json:"seed_duration"`
	DrainDuration time.Duration `json:"drain_duration"`
	Delivered     int64         `json:"delivered"`
	Failed        int64         `json:"failed"`
	Throughput    float64       `json:"throughput_ops_per_sec"`
	BatchP50Ms    float64       `json:"batch_p50_ms"`
	BatchP95Ms    float64       `json:"batch_p95_ms"`
	BatchP99Ms    float64       `json:"batch_p99_ms"`
	BatchMaxMs    float64       `json:"batch_max_ms"`
	BatchMeanMs   float64       `json:"batch_mean_ms"`
	BatchSamples  int           `json:"batch_samples"`
}

// newBenchCmd seeds item upserts into the configured store and drains them
// into an in-process reference remote.
func newBenchCmd(a *app) *cobra.Command {
	var cfg benchConfig
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure enqueue and drain throughput against the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.records <= 0 {
				return fmt.Errorf("%w: --records must be positive", errUsage)
			}
			ctx := cmd.Context()
			b, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			// #nosec G404 -- deterministic RNG for benchmark payloads.
			rng := rand.New(rand.NewSource(cfg.payloadSeed))
			seedStart := time.Now()
			for i := 1; i <= cfg.records; i++ {
				if _, err := b.store.Enqueue(ctx, benchOperation(i, cfg.payloadBytes, cfg.payloadRandom, rng)); err != nil {
					return fmt.Errorf("syncbox bench: seed failed: %w", err)
				}
			}
			seedDuration := time.Since(seedStart)

			metrics := &benchMetrics{}
			relay := syncbox.NewRelay(b.store, remote.NewReference(), "bench",
				syncbox.WithBatchSize(a.cfg.BatchSize),
				syncbox.WithAttemptTimeout(a.cfg.AttemptTimeout),
				syncbox.WithMetrics(metrics),
				syncbox.WithLogger(a.logger),
			)

			drainStart := time.Now()
			for metrics.Delivered() < int64(cfg.records) {
				res, err := relay.DrainOnce(ctx)
				if err != nil {
					return err
				}
				if res.Halted || res.Attempted == 0 {
					return fmt.Errorf("%w: delivered %d of %d", errBenchIncomplete, metrics.Delivered(), cfg.records)
				}
			}
			drainDuration := time.Since(drainStart)

			result := buildBenchResult(cfg, a.cfg.BatchSize, seedDuration, drainDuration, metrics)

			return printBench(cmd.OutOrStdout(), result, cfg.jsonOut)
		},
	}
	cmd.Flags().IntVar(&cfg.records, "records", defaultBenchRecords, "number of operations to seed and drain")
	cmd.Flags().IntVar(&cfg.payloadBytes, "payload-bytes", defaultBenchPayloadBytes, "approximate size of each payload")
	cmd.Flags().BoolVar(&cfg.payloadRandom, "payload-random", false, "generate random payload contents")
	cmd.Flags().Int64Var(&cfg.payloadSeed, "payload-seed", 1, "random seed for payload generation")
	cmd.Flags().BoolVar(&cfg.jsonOut, "json", false, "print the result as JSON")

	return cmd
}

func benchOperation(n, size int, random bool, rng *rand.Rand) syncbox.PendingOperation {
	return syncbox.PendingOperation{
		EntityKind: syncbox.EntityItem,
		EntityID:   strconv.Itoa(n),
		OpKind:     syncbox.OpUpsert,
		Payload: syncbox.Payload{
			"id":       n,
			"name":     "bench item " + strconv.Itoa(n),
			"category": benchFiller(size, random, rng),
			"price":    float64(n%1000) + 0.5,
		},
	}
}

func benchFiller(size int, random bool, rng *rand.Rand) string {
	if size <= 0 {
		return ""
	}
	data := make([]byte, size)
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for i := range data {
		if random {
			data[i] = alphabet[rng.Intn(len(alphabet))]
		} else {
			data[i] = 'a'
		}
	}

	return string(data)
}

func buildBenchResult(cfg benchConfig, batchSize int, seed, drain time.Duration, m *benchMetrics) benchResult {
	batch := m.batch.Snapshot()
	res := benchResult{
		Records:       cfg.records,
		BatchSize:     batchSize,
		PayloadBytes:  cfg.payloadBytes,
		SeedDuration:  seed,
		DrainDuration: drain,
		Delivered:     m.Delivered(),
		Failed:        atomic.LoadInt64(&m.failed),
		BatchP50Ms:    msFloat(batch.P50),
		BatchP95Ms:    msFloat(batch.P95),
		BatchP99Ms:    msFloat(batch.P99),
		BatchMaxMs:    msFloat(batch.Max),
		BatchMeanMs:   msFloat(batch.Mean),
		BatchSamples:  batch.Count,
	}
	if drain > 0 {
		res.Throughput = float64(res.Delivered) / drain.Seconds()
	}

	return res
}

func printBench(w io.Writer, res benchResult, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "records=%d batch_size=%d payload_bytes=%d\n", res.Records, res.BatchSize, res.PayloadBytes)
	fmt.Fprintf(w, "seed=%s drain=%s delivered=%d failed=%d throughput=%.1f ops/s\n",
		res.SeedDuration.Round(time.Millisecond), res.DrainDuration.Round(time.Millisecond),
		res.Delivered, res.Failed, res.Throughput)
	fmt.Fprintf(w, "batch p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms mean=%.2fms samples=%d\n",
		res.BatchP50Ms, res.BatchP95Ms, res.BatchP99Ms, res.BatchMaxMs, res.BatchMeanMs, res.BatchSamples)

	return nil
}

type benchMetrics struct {
	delivered int64
	failed    int64
	batch     batchStats
}

var _ syncbox.Metrics = (*benchMetrics)(nil)

func (m *benchMetrics) ObserveDrainDuration(d time.Duration) {
	m.batch.Add(d)
}

func (m *benchMetrics) AddDelivered(n int) {
	atomic.AddInt64(&m.delivered, int64(n))
}

func (m *benchMetrics) AddFailed(n int) {
	atomic.AddInt64(&m.failed, int64(n))
}

func (m *benchMetrics) AddRetried(int) {}
func (m *benchMetrics) SetPending(int) {}

func (m *benchMetrics) Delivered() int64 {
	return atomic.LoadInt64(&m.delivered)
}

type batchStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (b *batchStats) Add(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, d)
	b.mu.Unlock()
}

func (b *batchStats) Snapshot() batchSnapshot {
	b.mu.Lock()
	samples := append([]time.Duration(nil), b.samples...)
	b.mu.Unlock()
	if len(samples) == 0 {
		return batchSnapshot{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return batchSnapshot{
		P50:   percentile(samples, percentileP50),
		P95:   percentile(samples, percentileP95),
		P99:   percentile(samples, percentileP99),
		Max:   samples[len(samples)-1],
		Mean:  meanDuration(samples),
		Count: len(samples),
	}
}

type batchSnapshot struct {
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx]
}

func meanDuration(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}

	return sum / time.Duration(len(samples))
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
