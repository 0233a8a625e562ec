// Package progress implements the Progress Reporter: a pull-model snapshot
// plus a push-model observer registry over one run's state.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

// Observer is notified whenever the reporter's internal state changes.
// Observers that panic are recovered and logged; they never propagate to
// the caller.
type Observer interface {
	OnUpdate(state indexing.ProgressState)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(indexing.ProgressState)

// OnUpdate implements Observer.
func (f ObserverFunc) OnUpdate(state indexing.ProgressState) { f(state) }

// Reporter aggregates a single run's metrics and notifies observers in
// registration order. A single Start call precedes all other operations; a
// single Finish call terminates it.
type Reporter struct {
	mu sync.Mutex

	logger    *slog.Logger
	now       func() time.Time
	state     indexing.ProgressState
	observers []Observer
	started   bool
	finished  bool
}

// New creates a Reporter. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reporter{logger: logger, now: time.Now}
}

// Start begins a run: totalFiles and totalBatches seed the snapshot, and
// observer (if non-nil) is registered before the first notification.
func (r *Reporter) Start(totalFiles, totalBatches int, observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = indexing.ProgressState{
		Phase:        indexing.PhaseInit,
		TotalFiles:   totalFiles,
		TotalBatches: totalBatches,
		CurrentBatch: 0,
		StartedAt:    r.now(),
	}
	r.started = true
	r.finished = false

	if observer != nil {
		r.observers = append(r.observers, observer)
	}

	r.notifyLocked()
}

// AddObserver registers an additional observer.
func (r *Reporter) AddObserver(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers = append(r.observers, observer)
}

// SetPhase transitions the live phase and notifies observers.
func (r *Reporter) SetPhase(phase indexing.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Phase = phase
	r.notifyLocked()
}

// StartBatch advances to the 1-indexed current batch.
func (r *Reporter) StartBatch(batchIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.CurrentBatch = batchIndex
	r.notifyLocked()
}

// RecordProcessed bumps the processed-file counter. processed_files never
// exceeds total_files; the increment is clamped defensively.
func (r *Reporter) RecordProcessed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.ProcessedFiles += n
	if r.state.ProcessedFiles > r.state.TotalFiles {
		r.state.ProcessedFiles = r.state.TotalFiles
	}

	r.notifyLocked()
}

// RecordUnits accumulates cumulative entity/relation/chunk counts.
func (r *Reporter) RecordUnits(entities, relations, chunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.EntityCount += entities
	r.state.RelationCount += relations
	r.state.ChunkCount += chunks
	r.notifyLocked()
}

// RecordCache accumulates cache hit/miss counts from the filtering stage.
func (r *Reporter) RecordCache(hits, misses int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.CacheHits += hits
	r.state.CacheMisses += misses
	r.notifyLocked()
}

// AccumulatePhaseTime adds d to the named phase's cumulative timing.
func (r *Reporter) AccumulatePhaseTime(phase indexing.Phase, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch phase {
	case indexing.PhaseDiscovery:
		r.state.PhaseTimes.Discovery += d
	case indexing.PhaseFiltering:
		r.state.PhaseTimes.Filtering += d
	case indexing.PhaseParsing:
		r.state.PhaseTimes.Parsing += d
	case indexing.PhaseEmbedding:
		r.state.PhaseTimes.Embedding += d
	case indexing.PhaseStorage:
		r.state.PhaseTimes.Storage += d
	case indexing.PhaseCleanup:
		r.state.PhaseTimes.Cleanup += d
	case indexing.PhaseInit, indexing.PhaseComplete:
		// No dedicated accumulator; these phases are instantaneous markers.
	}
}

// SetMemoryUsage records the latest observed memory usage, in MB.
func (r *Reporter) SetMemoryUsage(mb int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.MemoryUsageMB = mb
}

// Finish marks the run complete and notifies observers a final time.
func (r *Reporter) Finish(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if success {
		r.state.Phase = indexing.PhaseComplete
	}

	r.finished = true
	r.notifyLocked()
}

// GetState returns an immutable snapshot with FilesPerSecond and ETASeconds
// freshly derived.
func (r *Reporter) GetState() indexing.ProgressState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.WithDerived(r.now())
}

// CacheHits returns the cumulative cache-hit count. It satisfies
// observability.CacheStatsProvider so a live Reporter can back an
// observable gauge without the caller polling GetState itself.
func (r *Reporter) CacheHits() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(r.state.CacheHits)
}

// CacheMisses returns the cumulative cache-miss count. See CacheHits.
func (r *Reporter) CacheMisses() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(r.state.CacheMisses)
}

// notifyLocked calls every observer with the current derived snapshot.
// Caller must hold r.mu. Observer panics are recovered and logged; they
// never propagate to the pipeline.
func (r *Reporter) notifyLocked() {
	snapshot := r.state.WithDerived(r.now())

	for _, obs := range r.observers {
		r.notifyOneSafely(obs, snapshot)
	}
}

func (r *Reporter) notifyOneSafely(obs Observer, snapshot indexing.ProgressState) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress observer panicked", "panic", rec)
		}
	}()

	obs.OnUpdate(snapshot)
}
