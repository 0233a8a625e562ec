package indexing

import "time"

// CheckpointState is the persisted resume record for a single (project,
// collection) pair. File paths in the three partitions are
// project-relative and separator-normalized wherever the file lives inside
// the project; a file outside the project is keyed by its absolute path.
type CheckpointState struct {
	Version        int            `json:"version"`
	CollectionName string         `json:"collection_name"`
	ProjectPath    string         `json:"project_path"`
	TotalFiles     int            `json:"total_files"`
	ProcessedFiles []string       `json:"processed_files"`
	PendingFiles   []string       `json:"pending_files"`
	FailedFiles    []string       `json:"failed_files"`
	LastBatchIndex int            `json:"last_batch_index"`
	EntityCount    int            `json:"entity_count"`
	RelationCount  int            `json:"relation_count"`
	ChunkCount     int            `json:"chunk_count"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Config         PipelineConfig `json:"config"`
}

// ProgressPercent is a cheap derived view of processed/total, 0 when
// TotalFiles is zero.
func (s CheckpointState) ProgressPercent() float64 {
	if s.TotalFiles <= 0 {
		return 0
	}

	return float64(len(s.ProcessedFiles)) / float64(s.TotalFiles) * 100
}

// HasPending reports whether any file remains in the pending partition.
func (s CheckpointState) HasPending() bool {
	return len(s.PendingFiles) > 0
}

// IndexFreshnessResult is the Session-Start Health Probe's freshness
// verdict.
type IndexFreshnessResult struct {
	IsFresh           bool
	LastIndexedTime   int64 // epoch seconds
	LastIndexedCommit string
	CurrentCommit     string
	HoursSinceIndex   float64
	CommitsBehind     int
	Suggestion        string
}
