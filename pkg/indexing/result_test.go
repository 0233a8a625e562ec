package indexing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

func TestPipelineResult_TotalFiles(t *testing.T) {
	t.Parallel()

	r := indexing.PipelineResult{FilesProcessed: 3, FilesSkipped: 2, FilesFailed: 1}
	assert.Equal(t, 6, r.TotalFiles())
}

func TestPipelineResult_FilesPerSecond(t *testing.T) {
	t.Parallel()

	zero := indexing.PipelineResult{FilesProcessed: 10, TotalTime: 0}
	assert.InDelta(t, 0.0, zero.FilesPerSecond(), 0.001)

	nonZero := indexing.PipelineResult{FilesProcessed: 10, TotalTime: 2 * time.Second}
	assert.InDelta(t, 5.0, nonZero.FilesPerSecond(), 0.001)
}

func TestPipelineResult_Resumable(t *testing.T) {
	t.Parallel()

	assert.False(t, indexing.PipelineResult{}.Resumable())
	assert.True(t, indexing.PipelineResult{CheckpointPath: "/tmp/x.json"}.Resumable())
}
