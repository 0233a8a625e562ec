// Package optimizer implements the adaptive Batch Optimizer: a stateful
// controller that sizes batches under memory pressure and error feedback.
package optimizer

import (
	"runtime"
	"sync"

	"github.com/kestrel-labs/codeindex/pkg/alg/mapx"
	"github.com/kestrel-labs/codeindex/pkg/alg/stats"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
	"github.com/kestrel-labs/codeindex/pkg/units"
)

// ReasonMemoryPressure and friends name the size-reduction causes recorded
// in Statistics.
const (
	ReasonMemoryPressure      = "memory pressure"
	ReasonHighErrorRate       = "high error rate"
	ReasonConsecutiveSuccess  = "consecutive successes"
	failureStreakForReduction = 2

	// rateEMAAlpha smooths the reported files/sec average against bursty
	// individual batches without discarding history entirely.
	rateEMAAlpha = 0.3
)

// Reduction records one batch-size reduction or increase, for Statistics.
type Reduction struct {
	Reason   string
	FromSize int
	ToSize   int
}

// Statistics is the optimizer's observable output: cumulative batch counts,
// throughput, and the history of size changes and their reasons.
type Statistics struct {
	BatchCount           int
	AvgProcessingTimeMS  float64
	AvgFilesPerSecond    float64
	TotalErrors          int
	SizeReductions       []Reduction
	RSSDeltaMB           int64
}

// Optimizer adaptively sizes batches under memory pressure and error
// feedback. It is safe for concurrent use, though the pipeline is its sole
// intended caller.
type Optimizer struct {
	mu sync.Mutex

	thresholds indexing.ThresholdConfig
	size       int

	successStreak int
	failureStreak int

	batchCount      int
	totalErrors     int
	processingTimes []float64
	rateEMA         *stats.EMA
	reductions      []Reduction

	baselineRSSMB int64

	// rss and gcHint are overridable so tests can drive the memory
	// pre-check and post-batch re-check deterministically.
	rss    func() int64
	gcHint func()
}

// New creates an Optimizer seeded at initialSize, clamped to
// [min_batch_size, max_batch_size].
func New(thresholds indexing.ThresholdConfig, initialSize int) *Optimizer {
	o := &Optimizer{
		thresholds: thresholds,
		rateEMA:    stats.NewEMA(rateEMAAlpha),
		rss:        currentRSSMB,
		gcHint:     runtime.GC,
	}

	o.size = stats.Clamp(initialSize, thresholds.MinBatchSize, thresholds.MaxBatchSize)
	o.baselineRSSMB = o.rss()

	return o
}

// currentRSSMB approximates process RSS via the Go runtime's total memory
// obtained from the OS (MemStats.Sys); it is the same signal a profiling hook would read without
// shelling out to the OS.
func currentRSSMB() int64 {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	return int64(m.Sys / units.MiB) //nolint:gosec // Sys is always small enough for int64.
}

// GetBatchSize returns the next batch size to use, after the memory
// pre-check: if current RSS exceeds the memory threshold, the
// size is ramped down and the reason recorded, before being returned.
func (o *Optimizer) GetBatchSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rss() > int64(o.thresholds.MemoryThresholdMB) {
		o.rampDownLocked(ReasonMemoryPressure)
	}

	return o.size
}

// RecordBatch ingests the outcome of a completed batch:
// it reacts to the batch's error rate, then re-checks memory and issues an
// advisory GC hint if the threshold is still exceeded.
func (o *Optimizer) RecordBatch(m indexing.BatchMetrics) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.batchCount++
	o.totalErrors += m.ErrorCount
	o.processingTimes = append(o.processingTimes, float64(m.ProcessingTimeMS))
	o.rateEMA.Update(m.FilesPerSecond())

	if m.ErrorRate() > o.thresholds.ErrorRateThreshold {
		o.successStreak = 0
		o.failureStreak++

		if o.failureStreak >= failureStreakForReduction {
			o.rampDownLocked(ReasonHighErrorRate)
		}
	} else {
		o.failureStreak = 0
		o.successStreak++

		if o.successStreak >= o.thresholds.ConsecutiveSuccessesForRamp {
			o.rampUpLocked(ReasonConsecutiveSuccess)
			o.successStreak = 0
		}
	}

	if o.rss() > int64(o.thresholds.MemoryThresholdMB) {
		o.rampDownLocked(ReasonMemoryPressure)
		o.gcHint()
	}
}

// rampDownLocked multiplies the current size by ramp_down_factor, floors at
// min_batch_size, and records the reduction. Caller must hold o.mu.
func (o *Optimizer) rampDownLocked(reason string) {
	from := o.size
	next := int(float64(o.size) * o.thresholds.RampDownFactor)
	o.size = stats.Clamp(next, o.thresholds.MinBatchSize, o.thresholds.MaxBatchSize)

	if o.size != from {
		o.reductions = append(o.reductions, Reduction{Reason: reason, FromSize: from, ToSize: o.size})
	}
}

// rampUpLocked multiplies the current size by ramp_up_factor, ceilings at
// max_batch_size, and records the change. Caller must hold o.mu.
func (o *Optimizer) rampUpLocked(reason string) {
	from := o.size
	next := int(float64(o.size) * o.thresholds.RampUpFactor)
	o.size = stats.Clamp(next, o.thresholds.MinBatchSize, o.thresholds.MaxBatchSize)

	if o.size != from {
		o.reductions = append(o.reductions, Reduction{Reason: reason, FromSize: from, ToSize: o.size})
	}
}

// Reset returns all counters, streaks and history to their initial state and
// re-reads the RSS baseline. The current batch size is kept.
func (o *Optimizer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.successStreak = 0
	o.failureStreak = 0
	o.batchCount = 0
	o.totalErrors = 0
	o.processingTimes = nil
	o.rateEMA = stats.NewEMA(rateEMAAlpha)
	o.reductions = nil
	o.baselineRSSMB = o.rss()
}

// Statistics returns the optimizer's observable output.
func (o *Optimizer) Statistics() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Statistics{
		BatchCount:          o.batchCount,
		AvgProcessingTimeMS: stats.Mean(o.processingTimes),
		AvgFilesPerSecond:   o.rateEMA.Value(),
		TotalErrors:         o.totalErrors,
		SizeReductions:      mapx.CloneSlice(o.reductions),
		RSSDeltaMB:          o.rss() - o.baselineRSSMB,
	}
}
