package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/kestrel-labs/codeindex/pkg/checkpoint"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
	"github.com/kestrel-labs/codeindex/pkg/optimizer"
)

// batchLoop drains the checkpoint's pending partition one dynamically sized
// batch at a time, recording progress and checkpoint state as it goes. It
// never aborts on a single file or batch failure; only a canceled context
// stops the run early. Parser, embedder and store errors are recorded as
// failed files.
func (p *Pipeline) batchLoop(
	ctx context.Context, collection string, opt *optimizer.Optimizer, result *indexing.PipelineResult,
) error {
	p.collection = collection

	batcher := Batcher{}
	batchIndex := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pending := p.Checkpoints.PendingFiles()
		if len(pending) == 0 {
			return nil
		}

		batch, _ := batcher.Next(pending, opt.GetBatchSize())

		batchIndex++
		p.Progress.StartBatch(batchIndex)

		metrics, batchResult, updates := p.runBatch(ctx, batch)

		p.Checkpoints.UpdateBatch(updates, batchIndex)
		opt.RecordBatch(metrics)

		if p.Config.CheckpointInterval > 0 && batchIndex%p.Config.CheckpointInterval == 0 {
			if saveErr := p.Checkpoints.Save(); saveErr != nil {
				result.Warnings = append(result.Warnings, saveErr.Error())
			}
		}

		p.accumulate(result, batchResult, updates)
	}
}

// runBatch executes one batch end to end: parse, embed, store. It returns
// the metrics the optimizer needs, the result-level batch summary, and the
// checkpoint updates for every key in batch.
func (p *Pipeline) runBatch(ctx context.Context, batch []string) (indexing.BatchMetrics, indexing.BatchResult, []checkpoint.BatchUpdate) {
	batchStart := time.Now()

	absFiles := make([]string, len(batch))
	for i, key := range batch {
		absFiles[i] = p.resolveAbs(key)
	}

	parseStart := time.Now()
	outcomes := parseBatch(ctx, p.Parser, absFiles, p.Config.ParallelThreshold, p.Config.MaxParallelWorkers)
	parseMS := time.Since(parseStart).Milliseconds()

	p.Progress.AccumulatePhaseTime(indexing.PhaseParsing, time.Since(parseStart))

	units, perFile := collectUnits(outcomes)

	embedStart := time.Now()

	vectors, embedErr := p.embed(ctx, units)

	embedMS := time.Since(embedStart).Milliseconds()
	p.Progress.AccumulatePhaseTime(indexing.PhaseEmbedding, time.Since(embedStart))

	storeStart := time.Now()

	var storeErr error
	if embedErr == nil && len(units) > 0 {
		storeErr = p.store(ctx, units, vectors)
	}

	storeMS := time.Since(storeStart).Milliseconds()
	p.Progress.AccumulatePhaseTime(indexing.PhaseStorage, time.Since(storeStart))

	batchFailed := embedErr != nil || storeErr != nil

	var batchResult indexing.BatchResult

	batchResult.ParseMS = parseMS
	batchResult.EmbedMS = embedMS
	batchResult.StoreMS = storeMS

	if batchFailed {
		if embedErr != nil {
			batchResult.Errors = append(batchResult.Errors, embedErr.Error())
		}

		if storeErr != nil {
			batchResult.Errors = append(batchResult.Errors, storeErr.Error())
		}
	}

	updates := make([]checkpoint.BatchUpdate, 0, len(batch))
	errorCount := 0

	for i, key := range batch {
		outcome := outcomes[i]
		f := perFile[i]

		switch {
		case outcome.Skipped:
			updates = append(updates, checkpoint.BatchUpdate{File: key})
			batchResult.ProcessedIndexes = append(batchResult.ProcessedIndexes, i)
		case outcome.Err != nil || batchFailed:
			updates = append(updates, checkpoint.BatchUpdate{File: key, Failed: true})
			batchResult.FailedIndexes = append(batchResult.FailedIndexes, i)
			errorCount++
		default:
			updates = append(updates, checkpoint.BatchUpdate{
				File: key, Entities: f.entities, Relations: f.relations, Chunks: f.chunks,
			})
			batchResult.ProcessedIndexes = append(batchResult.ProcessedIndexes, i)
			batchResult.EntityCount += f.entities
			batchResult.RelationCount += f.relations
			batchResult.ChunkCount += f.chunks
		}
	}

	metrics := indexing.BatchMetrics{
		BatchSize:        len(batch),
		ProcessingTimeMS: time.Since(batchStart).Milliseconds(),
		ErrorCount:       errorCount,
	}

	return metrics, batchResult, updates
}

// fileUnitCount is the per-file tally needed for checkpoint bookkeeping.
type fileUnitCount struct {
	entities  int
	relations int
	chunks    int
}

// collectUnits flattens every outcome's chunks into embed units (in batch
// order) and returns the per-file unit counts for checkpoint bookkeeping.
func collectUnits(outcomes []parseOutcome) ([]EmbedUnit, []fileUnitCount) {
	units := make([]EmbedUnit, 0)
	perFile := make([]fileUnitCount, len(outcomes))

	for i, o := range outcomes {
		if o.Skipped || o.Err != nil {
			continue
		}

		perFile[i] = fileUnitCount{
			entities:  len(o.Result.Entities),
			relations: len(o.Result.Relations),
			chunks:    len(o.Result.Chunks),
		}

		for _, chunk := range o.Result.Chunks {
			units = append(units, EmbedUnit{ID: chunk.ID, Text: chunk.Text})
		}
	}

	return units, perFile
}

func (p *Pipeline) embed(ctx context.Context, units []EmbedUnit) ([]Vector, error) {
	if len(units) == 0 {
		return nil, nil
	}

	var vectors []Vector

	err := withRetry(ctx, p.RetryAttempts, func() error {
		v, embedErr := p.Embedder.Embed(ctx, units)
		if embedErr != nil {
			return embedErr
		}

		vectors = v

		return nil
	})

	return vectors, err
}

func (p *Pipeline) store(ctx context.Context, units []EmbedUnit, vectors []Vector) error {
	records := make([]UpsertRecord, 0, len(units))

	for i, unit := range units {
		if i >= len(vectors) {
			break
		}

		records = append(records, UpsertRecord{
			ID:       unit.ID,
			Vector:   vectors[i],
			Metadata: map[string]any{"text": unit.Text},
		})
	}

	if len(records) == 0 {
		return nil
	}

	return withRetry(ctx, p.RetryAttempts, func() error {
		return p.Store.Upsert(ctx, p.collection, records)
	})
}

// resolveAbs joins a checkpoint-relative key against the project root,
// leaving already-absolute keys (files outside the project) unchanged.
func (p *Pipeline) resolveAbs(key string) string {
	if filepath.IsAbs(key) {
		return key
	}

	return filepath.Join(p.ProjectPath, key)
}

// accumulate folds one batch's outcome into the run-level result.
func (p *Pipeline) accumulate(result *indexing.PipelineResult, batchResult indexing.BatchResult, updates []checkpoint.BatchUpdate) {
	result.BatchCount++
	result.EntityCount += batchResult.EntityCount
	result.RelationCount += batchResult.RelationCount
	result.ChunkCount += batchResult.ChunkCount
	result.FilesProcessed += len(batchResult.ProcessedIndexes)
	result.FilesFailed += len(batchResult.FailedIndexes)
	result.Errors = append(result.Errors, batchResult.Errors...)

	p.Progress.RecordProcessed(len(updates))
	p.Progress.RecordUnits(batchResult.EntityCount, batchResult.RelationCount, batchResult.ChunkCount)
}
