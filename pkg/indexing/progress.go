package indexing

import (
	"strconv"
	"time"
)

// Phase is one stage of a run, used both for the live ProgressState and for
// the per-phase timing accumulators.
type Phase string

// Pipeline phases, in the order they execute.
const (
	PhaseInit      Phase = "init"
	PhaseDiscovery Phase = "discovery"
	PhaseFiltering Phase = "filtering"
	PhaseParsing   Phase = "parsing"
	PhaseEmbedding Phase = "embedding"
	PhaseStorage   Phase = "storage"
	PhaseCleanup   Phase = "cleanup"
	PhaseComplete  Phase = "complete"
)

// PhaseTimes accumulates wall time spent in each phase across a run.
type PhaseTimes struct {
	Discovery time.Duration
	Filtering time.Duration
	Parsing   time.Duration
	Embedding time.Duration
	Storage   time.Duration
	Cleanup   time.Duration
}

// ProgressState is an immutable snapshot of a run in progress. Callers
// receive copies; nothing in here is safe to mutate in place.
type ProgressState struct {
	Phase           Phase
	ProcessedFiles  int
	TotalFiles      int
	CurrentBatch    int // 1-indexed for display.
	TotalBatches    int
	FilesPerSecond  float64
	ETASeconds      float64
	EntityCount     int
	RelationCount   int
	ChunkCount      int
	CacheHits       int
	CacheMisses     int
	PhaseTimes      PhaseTimes
	MemoryUsageMB   int64
	StartedAt       time.Time
}

// Elapsed returns the wall time since StartedAt, as of now.
func (s ProgressState) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// computeETASeconds implements the ETA contract: remaining work over
// current rate, zero when the rate is zero.
func computeETASeconds(remaining int, filesPerSecond float64) float64 {
	if filesPerSecond <= 0 {
		return 0
	}

	return float64(remaining) / filesPerSecond
}

// WithDerived returns a copy of s with FilesPerSecond and ETASeconds
// recomputed from ProcessedFiles/TotalFiles and the elapsed time.
func (s ProgressState) WithDerived(now time.Time) ProgressState {
	elapsed := s.Elapsed(now).Seconds()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.ProcessedFiles) / elapsed
	}

	s.FilesPerSecond = rate
	s.ETASeconds = computeETASeconds(s.TotalFiles-s.ProcessedFiles, rate)

	return s
}

// FormatETA renders seconds remaining per the human-readable contract.
func FormatETA(rate, etaSeconds float64) string {
	if rate <= 0 {
		return "calculating…"
	}

	total := int64(etaSeconds)

	switch {
	case total < 60:
		return formatSeconds(total)
	case total < 3600:
		minutes := total / 60
		seconds := total % 60

		return formatMinSec(minutes, seconds)
	default:
		hours := total / 3600
		minutes := (total % 3600) / 60

		return formatHourMin(hours, minutes)
	}
}

func formatSeconds(s int64) string {
	return strconv.FormatInt(s, 10) + "s"
}

func formatMinSec(m, s int64) string {
	return strconv.FormatInt(m, 10) + "m " + strconv.FormatInt(s, 10) + "s"
}

func formatHourMin(h, m int64) string {
	return strconv.FormatInt(h, 10) + "h " + strconv.FormatInt(m, 10) + "m"
}
