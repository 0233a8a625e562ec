package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

// PerformanceReport is a structured end-of-run summary, distinct from the
// live ProgressState snapshot.
type PerformanceReport struct {
	Elapsed        time.Duration
	FilesProcessed int
	FilesPerSecond float64
	PhaseBreakdown map[string]time.Duration
	CacheHitRatio  float64
	MemoryUsageMB  int64
}

// PerformanceReport builds the end-of-run report from the reporter's final
// state. Call after Finish.
func (r *Reporter) PerformanceReport() PerformanceReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.WithDerived(r.now())

	return PerformanceReport{
		Elapsed:        snapshot.Elapsed(r.now()),
		FilesProcessed: snapshot.ProcessedFiles,
		FilesPerSecond: snapshot.FilesPerSecond,
		PhaseBreakdown: map[string]time.Duration{
			string(indexing.PhaseDiscovery): snapshot.PhaseTimes.Discovery,
			string(indexing.PhaseFiltering): snapshot.PhaseTimes.Filtering,
			string(indexing.PhaseParsing):   snapshot.PhaseTimes.Parsing,
			string(indexing.PhaseEmbedding): snapshot.PhaseTimes.Embedding,
			string(indexing.PhaseStorage):   snapshot.PhaseTimes.Storage,
			string(indexing.PhaseCleanup):   snapshot.PhaseTimes.Cleanup,
		},
		CacheHitRatio: cacheHitRatio(snapshot.CacheHits, snapshot.CacheMisses),
		MemoryUsageMB: snapshot.MemoryUsageMB,
	}
}

func cacheHitRatio(hits, misses int) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}

	return float64(hits) / float64(total)
}

// Human renders the report for terminal output: large counts get
// thousands separators and memory is rendered as a byte size, via
// go-humanize, rather than as raw numbers.
func (r PerformanceReport) Human() string {
	return fmt.Sprintf(
		"%s files in %s (%.1f files/s, %.1f%% cache hit rate, %s memory)",
		humanize.Comma(int64(r.FilesProcessed)),
		r.Elapsed.Round(time.Second),
		r.FilesPerSecond,
		r.CacheHitRatio*100,
		humanize.Bytes(uint64(r.MemoryUsageMB)*1024*1024),
	)
}
