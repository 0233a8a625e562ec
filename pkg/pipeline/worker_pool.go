package pipeline

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/kestrel-labs/codeindex/pkg/mathutil"
)

// DefaultMaxParallelWorkers caps automatic worker-count selection at 8
// ("worker count defaults to min(cpu_count, 8)").
const DefaultMaxParallelWorkers = 8

// parseOutcome is one file's parse attempt, including files that vanished
// between discovery and parse (Skipped) and per-file parse errors (Err).
type parseOutcome struct {
	File    string
	Result  ParseResult
	Err     error
	Skipped bool
}

// workerCount resolves the effective parse worker count: auto (0) picks
// min(NumCPU, DefaultMaxParallelWorkers); an explicit positive value caps
// it directly.
func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}

	return mathutil.Max(mathutil.Min(runtime.NumCPU(), DefaultMaxParallelWorkers), 1)
}

// parseBatch runs parser over files, fanning out to a worker pool when
// len(files) meets parallelThreshold. Workers are pure-compute over an
// immutable file slice; they return per-file outcomes and touch no shared
// mutable state beyond the outcomes slice, written at disjoint indexes.
func parseBatch(
	ctx context.Context, parser Parser, files []string, parallelThreshold, maxWorkers int,
) []parseOutcome {
	outcomes := make([]parseOutcome, len(files))

	if len(files) < parallelThreshold {
		for i, f := range files {
			outcomes[i] = parseOne(ctx, parser, f)
		}

		return outcomes
	}

	workers := mathutil.Min(workerCount(maxWorkers), len(files))

	var wg sync.WaitGroup

	sem := make(chan struct{}, workers)

	for i, f := range files {
		wg.Add(1)

		sem <- struct{}{}

		go func(i int, f string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[i] = parseOne(ctx, parser, f)
		}(i, f)
	}

	wg.Wait()

	return outcomes
}

// parseOne parses a single file, treating a vanished file as a silent skip
// rather than an error.
func parseOne(ctx context.Context, parser Parser, path string) parseOutcome {
	if _, err := os.Stat(path); err != nil {
		return parseOutcome{File: path, Skipped: true}
	}

	result, err := parser.Parse(ctx, path)
	if err != nil {
		return parseOutcome{File: path, Err: err}
	}

	return parseOutcome{File: path, Result: result}
}
