// Package checkpoint implements the crash-safe resume protocol: a single,
// named, per-collection file under a cache directory, written atomically and
// invalidated once stale.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kestrel-labs/codeindex/pkg/alg/mapx"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
	"github.com/kestrel-labs/codeindex/pkg/persist"
)

// StaleAge is the age past which a checkpoint's updated_at is considered
// stale and the checkpoint is discarded on load.
const StaleAge = 24 * time.Hour

// stateVersion is the current CheckpointState wire format version. Readers
// ignore unknown fields; this is recorded for forward compatibility only.
const stateVersion = 1

// dirPerm and filePerm are the permissions used for the cache directory and
// the checkpoint files within it.
const (
	dirPerm  = 0o750
	filePerm = 0o600

	tmpSuffix = ".tmp"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Load when no checkpoint exists for the
	// collection, including when the file is present but unparseable or
	// stale: callers treat all three the same way, as "start fresh".
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrProjectPathMismatch is returned by Load when the checkpoint on
	// disk was created for a different project path.
	ErrProjectPathMismatch = errors.New("checkpoint: project path mismatch")
)

// Manager owns the checkpoint file for one cache directory. It is safe for
// concurrent use; the pipeline is its sole intended owner, but health-probe
// style readers may call Load concurrently.
type Manager struct {
	mu    sync.Mutex
	dir   string
	codec persist.Codec

	state *indexing.CheckpointState
	dirty bool
}

// NewManager creates a Manager rooted at dir, using the default
// uncompressed JSON wire format (§6: "JSON, UTF-8"). The directory is
// created lazily, on first write.
func NewManager(dir string) *Manager {
	return NewManagerWithCodec(dir, persist.NewJSONCodec())
}

// NewManagerWithCodec creates a Manager using an explicit persist.Codec,
// e.g. persist.NewCompressedJSONCodec() for projects whose file-partition
// lists make the default JSON checkpoint large on disk. The codec's
// Extension() becomes part of the checkpoint filename, so switching codecs
// between runs does not collide with or silently adopt a checkpoint written
// by a different codec.
func NewManagerWithCodec(dir string, codec persist.Codec) *Manager {
	if codec == nil {
		codec = persist.NewJSONCodec()
	}

	return &Manager{dir: dir, codec: codec}
}

// DefaultDir returns the default checkpoint directory for a project:
// "<projectPath>/.index_cache".
func DefaultDir(projectPath string) string {
	return filepath.Join(projectPath, ".index_cache")
}

// sanitizeCollection replaces path separators in a collection name so the
// derived filename never escapes the cache directory.
func sanitizeCollection(collection string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_")

	return replacer.Replace(collection)
}

func (m *Manager) path(collection string) string {
	filename := "indexing_checkpoint_" + sanitizeCollection(collection) + m.codec.Extension()

	return filepath.Join(m.dir, filename)
}

// Exists reports whether a checkpoint file exists for collection, without
// validating its contents.
func (m *Manager) Exists(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := os.Stat(m.path(collection))

	return err == nil
}

// Load reads and validates the checkpoint for collection against
// projectPath. An absent, unparseable, or stale checkpoint is deleted (if
// present) and reported as ErrNotFound, never as a parse error: a reader
// treats an unparseable checkpoint as absent, not corrupt. A checkpoint for
// a different project path is reported as ErrProjectPathMismatch and left
// on disk untouched.
func (m *Manager) Load(collection, projectPath string) (indexing.CheckpointState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.path(collection)

	data, err := os.ReadFile(path)
	if err != nil {
		return indexing.CheckpointState{}, ErrNotFound
	}

	var state indexing.CheckpointState

	if decodeErr := m.codec.Decode(bytes.NewReader(data), &state); decodeErr != nil {
		_ = os.Remove(path)

		return indexing.CheckpointState{}, ErrNotFound
	}

	if time.Since(state.UpdatedAt) > StaleAge {
		_ = os.Remove(path)

		return indexing.CheckpointState{}, ErrNotFound
	}

	if state.ProjectPath != projectPath {
		return indexing.CheckpointState{}, fmt.Errorf(
			"%w: checkpoint has %q, run requested %q", ErrProjectPathMismatch, state.ProjectPath, projectPath,
		)
	}

	m.state = &state
	m.dirty = false

	return state, nil
}

// Create initializes a fresh checkpoint in memory for collection. It does
// not write to disk; call Save to persist. files are the discovered,
// project-relative work set, in deterministic discovery order.
func (m *Manager) Create(
	collection, projectPath string, files []string, cfg indexing.PipelineConfig,
) indexing.CheckpointState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	pending := mapx.CloneSlice(files)

	state := indexing.CheckpointState{
		Version:        stateVersion,
		CollectionName: collection,
		ProjectPath:    projectPath,
		TotalFiles:     len(files),
		PendingFiles:   pending,
		StartedAt:      now,
		UpdatedAt:      now,
		Config:         cfg,
	}

	m.state = &state
	m.dirty = true

	return state
}

// Update moves a single file from pending to processed or failed and bumps
// the cumulative entity/relation/chunk counters. It sets the dirty flag, so
// the next Save writes the state.
func (m *Manager) Update(file string, failed bool, entities, relations, chunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return
	}

	s := m.state
	s.PendingFiles = removeFile(s.PendingFiles, file)

	if failed {
		s.FailedFiles = append(s.FailedFiles, file)
	} else {
		s.ProcessedFiles = append(s.ProcessedFiles, file)
	}

	s.EntityCount += entities
	s.RelationCount += relations
	s.ChunkCount += chunks
	s.UpdatedAt = time.Now().UTC()

	m.dirty = true
}

// BatchUpdate describes one file's outcome for UpdateBatch.
type BatchUpdate struct {
	File      string
	Failed    bool
	Entities  int
	Relations int
	Chunks    int
}

// UpdateBatch applies a slice of per-file updates followed by bumping
// last_batch_index. It is a convenience, not a transaction: a crash between
// UpdateBatch and Save loses the in-memory delta.
func (m *Manager) UpdateBatch(updates []BatchUpdate, batchIndex int) {
	for _, u := range updates {
		m.Update(u.File, u.Failed, u.Entities, u.Relations, u.Chunks)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != nil {
		m.state.LastBatchIndex = batchIndex
		m.dirty = true
	}
}

// Save writes the in-memory state to disk atomically (temp file + rename)
// and clears the dirty flag. It is a no-op when the state is not dirty.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty || m.state == nil {
		return nil
	}

	if mkErr := os.MkdirAll(m.dir, dirPerm); mkErr != nil {
		return fmt.Errorf("create checkpoint dir: %w", mkErr)
	}

	final := m.path(m.state.CollectionName)
	tmp := final + tmpSuffix

	var buf bytes.Buffer

	if encErr := m.codec.Encode(&buf, m.state); encErr != nil {
		return fmt.Errorf("encode checkpoint: %w", encErr)
	}

	if writeErr := writeAndSync(tmp, buf.Bytes()); writeErr != nil {
		_ = os.Remove(tmp)

		return writeErr
	}

	if renameErr := os.Rename(tmp, final); renameErr != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("rename checkpoint into place: %w", renameErr)
	}

	m.dirty = false

	return nil
}

// writeAndSync writes data to path and flushes it to stable storage before
// returning, so a crash never exposes a half-written temp file under the
// final name once the subsequent rename publishes it.
func writeAndSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	defer f.Close()

	if _, writeErr := f.Write(data); writeErr != nil {
		return fmt.Errorf("write checkpoint temp file: %w", writeErr)
	}

	if syncErr := f.Sync(); syncErr != nil {
		return fmt.Errorf("sync checkpoint temp file: %w", syncErr)
	}

	return nil
}

// Clear deletes the checkpoint file for collection and drops any in-memory
// state. Missing files are not an error.
func (m *Manager) Clear(collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path(collection))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}

	m.state = nil
	m.dirty = false

	return nil
}

// ReplaceState overwrites the in-memory state wholesale, for callers (the
// resume gate's retry-failed mode) that need to rewrite partitions between
// Load and the first Update. It marks the state dirty.
func (m *Manager) ReplaceState(state indexing.CheckpointState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = &state
	m.dirty = true
}

// PendingFiles returns the pending partition exactly as stored (the same
// keys Update and UpdateBatch expect back).
func (m *Manager) PendingFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil
	}

	return mapx.CloneSlice(m.state.PendingFiles)
}

func removeFile(files []string, target string) []string {
	out := files[:0:0]

	for _, f := range files {
		if f != target {
			out = append(out, f)
		}
	}

	return out
}
