package indexing

import "time"

// PipelineResult is the final outcome of one indexing run.
type PipelineResult struct {
	Success         bool
	FilesProcessed  int
	FilesSkipped    int
	FilesFailed     int
	EntityCount     int
	RelationCount   int
	ChunkCount      int
	TotalTime       time.Duration
	BatchCount      int
	CheckpointPath  string // non-empty ⇒ resumable
	Errors          []string
	Warnings        []string
	CacheHits       int
	CacheMisses     int
}

// TotalFiles is processed + skipped + failed.
func (r PipelineResult) TotalFiles() int {
	return r.FilesProcessed + r.FilesSkipped + r.FilesFailed
}

// FilesPerSecond is processed / total_time in seconds; zero when total_time
// is zero.
func (r PipelineResult) FilesPerSecond() float64 {
	seconds := r.TotalTime.Seconds()
	if seconds <= 0 {
		return 0
	}

	return float64(r.FilesProcessed) / seconds
}

// Resumable reports whether a checkpoint survives this run.
func (r PipelineResult) Resumable() bool {
	return r.CheckpointPath != ""
}
