// Package pipeline implements the Indexing Pipeline: the phased,
// checkpointed batch processor that drives discovery, filtering, parsing,
// embedding and storage for one project.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrel-labs/codeindex/pkg/checkpoint"
	"github.com/kestrel-labs/codeindex/pkg/fingerprint"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
	"github.com/kestrel-labs/codeindex/pkg/optimizer"
	"github.com/kestrel-labs/codeindex/pkg/progress"
)

// tracerName matches the ambient-stack convention of one named tracer per
// pipeline phase span.
const tracerName = "codeindex.pipeline"

// ErrMissingCollection is a fatal, pre-flight validation error.
var ErrMissingCollection = errors.New("pipeline: collection name is required")

// Pipeline orchestrates one project's runs. A single Pipeline is not
// reentrant across concurrent Run calls against the same project; the
// caller owns serialization.
type Pipeline struct {
	ProjectPath string
	Config      indexing.PipelineConfig

	Discoverer Discoverer
	Parser     Parser
	Embedder   Embedder
	Store      Store

	Checkpoints *checkpoint.Manager
	Progress    *progress.Reporter

	RetryAttempts int

	collection string

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures optional Pipeline fields.
type Option func(*Pipeline)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer overrides the default OTel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// New constructs a Pipeline. checkpoints and progressReporter are required
// collaborators; parser/embedder/store are the polymorphic collaborators
// selected by the caller at construction.
func New(
	projectPath string,
	cfg indexing.PipelineConfig,
	discoverer Discoverer,
	parser Parser,
	embedder Embedder,
	store Store,
	checkpoints *checkpoint.Manager,
	progressReporter *progress.Reporter,
	opts ...Option,
) (*Pipeline, error) {
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", validateErr)
	}

	p := &Pipeline{
		ProjectPath:   projectPath,
		Config:        cfg,
		Discoverer:    discoverer,
		Parser:        parser,
		Embedder:      embedder,
		Store:         store,
		Checkpoints:   checkpoints,
		Progress:      progressReporter,
		RetryAttempts: DefaultRetryAttempts,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run drives one indexing run for collection:
// `run(collection_name) → PipelineResult`.
func (p *Pipeline) Run(ctx context.Context, collection string) (indexing.PipelineResult, error) {
	if collection == "" {
		return indexing.PipelineResult{}, ErrMissingCollection
	}

	runCtx, span := p.tracer.Start(ctx, "codeindex.pipeline.run")
	defer span.End()

	start := p.now()

	discovered, discoverErr := p.discover(runCtx)
	if discoverErr != nil {
		return indexing.PipelineResult{}, discoverErr
	}

	cacheDir := checkpoint.DefaultDir(p.ProjectPath)

	fpCache, filterResult, filterErr := p.filter(runCtx, cacheDir, discovered)
	if filterErr != nil {
		return indexing.PipelineResult{}, filterErr
	}

	state, resumed := p.resumeOrCreate(collection, filterResult.WorkSet)

	p.Progress.Start(state.TotalFiles, 0, nil)
	p.Progress.SetPhase(indexing.PhaseParsing)

	result := indexing.PipelineResult{
		FilesSkipped: filterResult.FilesSkipped,
		CacheHits:    len(discovered) - len(filterResult.WorkSet),
		CacheMisses:  len(filterResult.WorkSet),
	}
	if resumed {
		result.FilesProcessed = len(state.ProcessedFiles)
		result.FilesFailed = len(state.FailedFiles)
		p.Progress.RecordProcessed(len(state.ProcessedFiles) + len(state.FailedFiles))
	}

	opt := optimizer.New(
		indexing.DefaultThresholds(p.Config.MaxBatchSize, p.Config.MemoryThresholdMB),
		p.Config.InitialBatchSize,
	)

	runErr := p.batchLoop(runCtx, collection, opt, &result)

	p.cleanup(collection, cacheDir, fpCache, runErr == nil, &result)

	result.TotalTime = p.now().Sub(start)
	p.Progress.Finish(result.Success)

	return result, runErr
}

func (p *Pipeline) discover(ctx context.Context) ([]string, error) {
	_, span := p.tracer.Start(ctx, "codeindex.pipeline.discovery")
	defer span.End()

	p.Progress.SetPhase(indexing.PhaseDiscovery)

	discovered, err := p.Discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	return discovered, nil
}

func (p *Pipeline) filter(
	ctx context.Context, cacheDir string, discovered []string,
) (*fingerprint.Cache, FilterResult, error) {
	_, span := p.tracer.Start(ctx, "codeindex.pipeline.filtering")
	defer span.End()

	p.Progress.SetPhase(indexing.PhaseFiltering)

	fpCache, loadErr := fingerprint.Load(cacheDir)
	if loadErr != nil {
		p.logger.Warn("fingerprint cache unreadable, starting fresh", "error", loadErr)

		fpCache = fingerprint.New()
	}

	filterObj := &Filter{ProjectPath: p.ProjectPath, Cache: fpCache}
	result := filterObj.Apply(discovered)

	p.Progress.RecordCache(len(discovered)-len(result.WorkSet), len(result.WorkSet))

	return fpCache, result, nil
}

// resumeOrCreate implements the resume gate.
func (p *Pipeline) resumeOrCreate(collection string, workSet []string) (indexing.CheckpointState, bool) {
	if p.Config.EnableResume {
		state, err := p.Checkpoints.Load(collection, p.ProjectPath)
		if err == nil {
			if p.Config.RetryFailed {
				state = moveFailedToPending(state)
				p.Checkpoints.ReplaceState(state)
			}

			return state, true
		}
	}

	state := p.Checkpoints.Create(collection, p.ProjectPath, workSet, p.Config)

	return state, false
}

// moveFailedToPending implements the opt-in RetryFailed resume mode:
// failed_files move back to pending_files at resume time instead of being
// silently skipped.
func moveFailedToPending(state indexing.CheckpointState) indexing.CheckpointState {
	state.PendingFiles = append(state.PendingFiles, state.FailedFiles...)
	state.FailedFiles = nil

	return state
}

// cleanup clears the checkpoint when the run completed with no failed
// batches, otherwise persists it so the next run can resume.
func (p *Pipeline) cleanup(collection, cacheDir string, fpCache *fingerprint.Cache, ranToCompletion bool, result *indexing.PipelineResult) {
	p.Progress.SetPhase(indexing.PhaseCleanup)

	if saveErr := fingerprint.Save(cacheDir, fpCache); saveErr != nil {
		p.logger.Warn("failed to persist fingerprint cache", "error", saveErr)
	}

	result.Success = ranToCompletion && result.FilesFailed == 0 && len(result.Errors) == 0

	if result.Success {
		if clearErr := p.Checkpoints.Clear(collection); clearErr != nil {
			p.logger.Warn("failed to clear checkpoint", "error", clearErr)
		}

		return
	}

	if saveErr := p.Checkpoints.Save(); saveErr != nil {
		p.logger.Warn("failed to persist checkpoint on failure", "error", saveErr)
	}

	result.CheckpointPath = checkpoint.DefaultDir(p.ProjectPath)
}
