package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/codeindex/pkg/fingerprint"
)

func TestFilter_FirstRunEverythingChanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a")
	writeFile(t, filepath.Join(root, "b.go"), "package b")

	f := &Filter{ProjectPath: root, Cache: fingerprint.New()}
	result := f.Apply([]string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "b.go"),
	})

	assert.Len(t, result.WorkSet, 2)
	assert.Equal(t, 0, result.FilesSkipped)
}

func TestFilter_SecondRunUnchangedFilesSkipped(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a")

	cache := fingerprint.New()
	f := &Filter{ProjectPath: root, Cache: cache}

	first := f.Apply([]string{path})
	require.Len(t, first.WorkSet, 1)

	second := f.Apply([]string{path})
	assert.Empty(t, second.WorkSet)
	assert.Equal(t, 1, second.FilesSkipped)
}

func TestFilter_ModifiedFileReappearsInWorkSet(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a")

	cache := fingerprint.New()
	f := &Filter{ProjectPath: root, Cache: cache}
	f.Apply([]string{path})

	writeFile(t, path, "package a // changed")

	// Force a distinct mtime so the fast-path key changes even though some
	// filesystems have coarse timestamp resolution.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	second := f.Apply([]string{path})
	assert.Len(t, second.WorkSet, 1)
}

func TestFilter_VanishedFileSilentlyDropped(t *testing.T) {
	root := t.TempDir()

	f := &Filter{ProjectPath: root, Cache: fingerprint.New()}
	result := f.Apply([]string{filepath.Join(root, "gone.go")})

	assert.Empty(t, result.WorkSet)
	assert.Equal(t, 0, result.FilesSkipped)
}

func TestFilter_BinaryFileEntersWorkSetThenSkippedOnceUnchanged(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0x00, 0xff}, 0o644))

	f := &Filter{ProjectPath: root, Cache: fingerprint.New()}

	first := f.Apply([]string{path})
	assert.Len(t, first.WorkSet, 1)

	second := f.Apply([]string{path})
	assert.Empty(t, second.WorkSet)
	assert.Equal(t, 1, second.FilesSkipped)
}

func TestRelativeKey_OutsideProjectFallsBackToAbsolute(t *testing.T) {
	other := t.TempDir()
	project := t.TempDir()

	key := relativeKey(project, filepath.Join(other, "x.go"))
	assert.Equal(t, filepath.ToSlash(filepath.Join(other, "x.go")), key)
}

func TestRelativeKey_InsideProjectIsRelativeAndSlash(t *testing.T) {
	project := t.TempDir()
	abs := filepath.Join(project, "sub", "x.go")

	key := relativeKey(project, abs)
	assert.Equal(t, "sub/x.go", key)
}
