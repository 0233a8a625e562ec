package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

func TestLoadConfig_MissingFileUsesDefaultsButFailsValidation(t *testing.T) {
	dir := t.TempDir()

	cwd, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, os.Chdir(dir))

	t.Cleanup(func() { _ = os.Chdir(cwd) })

	_, loadErr := LoadConfig("")
	require.ErrorIs(t, loadErr, ErrMissingCollection)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeindex.yaml")

	contents := `
vector_db:
  collection: my-project
  host: qdrant.internal
  port: 6334
pipeline:
  initial_batch_size: 25
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "my-project", cfg.VectorDB.Collection)
	assert.Equal(t, "qdrant.internal", cfg.VectorDB.Host)
	assert.Equal(t, 25, cfg.Pipeline.InitialBatchSize)
	assert.Equal(t, DefaultMaxBatchSize, cfg.Pipeline.MaxBatchSize)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeindex.yaml")

	require.NoError(t, os.WriteFile(path, []byte("vector_db:\n  collection: from-file\n"), 0o600))

	t.Setenv("CODEINDEX_VECTOR_DB_COLLECTION", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.VectorDB.Collection)
}

func TestConfig_ValidateRejectsBadPort(t *testing.T) {
	cfg := Config{
		Pipeline: indexing.PipelineConfig{
			InitialBatchSize: 1, MaxBatchSize: 1, MemoryThresholdMB: 1, CheckpointInterval: 1,
		},
		VectorDB: VectorDBConfig{Collection: "x", Port: 0},
	}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidPort)
}
