package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal     = "codeindex.run.files.total"
	metricEntitiesTotal  = "codeindex.run.entities.total"
	metricRelationsTotal = "codeindex.run.relations.total"
	metricChunksTotal    = "codeindex.run.chunks.total"
	metricBatchDuration  = "codeindex.run.batch.duration.seconds"
	metricCacheHitsTotal = "codeindex.run.cache.hits.total"
	metricCacheMissTotal = "codeindex.run.cache.misses.total"
)

// AnalysisMetrics holds OTel instruments recording one indexing run's
// cumulative outcome: how many files landed in each partition, how much
// work each one produced, and the fingerprint cache's contribution.
type AnalysisMetrics struct {
	filesTotal     metric.Int64Counter
	entitiesTotal  metric.Int64Counter
	relationsTotal metric.Int64Counter
	chunksTotal    metric.Int64Counter
	batchDuration  metric.Float64Histogram
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
}

// AnalysisStats holds the statistics for a single pipeline run, decoupled
// from indexing.PipelineResult so the metrics package does not import the
// domain package solely for this call.
type AnalysisStats struct {
	FilesProcessed int64
	FilesSkipped   int64
	FilesFailed    int64
	Entities       int64
	Relations      int64
	Chunks         int64
	BatchDurations []time.Duration
	CacheHits      int64
	CacheMisses    int64
}

// NewAnalysisMetrics creates the run-outcome instruments from mt.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	b := newMetricBuilder(mt)

	am := &AnalysisMetrics{
		filesTotal:     b.counter(metricFilesTotal, "Files processed, by outcome", "{file}"),
		entitiesTotal:  b.counter(metricEntitiesTotal, "Entities extracted", "{entity}"),
		relationsTotal: b.counter(metricRelationsTotal, "Relations extracted", "{relation}"),
		chunksTotal:    b.counter(metricChunksTotal, "Chunks embedded", "{chunk}"),
		batchDuration:  b.histogram(metricBatchDuration, "Per-batch processing duration in seconds", "s", durationBucketBoundaries...),
		cacheHits:      b.counter(metricCacheHitsTotal, "Fingerprint cache hits", "{hit}"),
		cacheMisses:    b.counter(metricCacheMissTotal, "Fingerprint cache misses", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return am, nil
}

const (
	attrOutcome = "outcome"

	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// RecordRun records the outcome of one completed pipeline run. Safe to call
// on a nil receiver (no-op), so callers need not special-case a disabled
// meter.
func (am *AnalysisMetrics) RecordRun(ctx context.Context, stats AnalysisStats) {
	if am == nil {
		return
	}

	am.filesTotal.Add(ctx, stats.FilesProcessed, metric.WithAttributes(attribute.String(attrOutcome, outcomeProcessed)))
	am.filesTotal.Add(ctx, stats.FilesSkipped, metric.WithAttributes(attribute.String(attrOutcome, outcomeSkipped)))
	am.filesTotal.Add(ctx, stats.FilesFailed, metric.WithAttributes(attribute.String(attrOutcome, outcomeFailed)))

	am.entitiesTotal.Add(ctx, stats.Entities)
	am.relationsTotal.Add(ctx, stats.Relations)
	am.chunksTotal.Add(ctx, stats.Chunks)

	for _, d := range stats.BatchDurations {
		am.batchDuration.Record(ctx, d.Seconds())
	}

	am.cacheHits.Add(ctx, stats.CacheHits)
	am.cacheMisses.Add(ctx, stats.CacheMisses)
}
