package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/codeindex/pkg/fingerprint"
	"github.com/kestrel-labs/codeindex/pkg/gitlib"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

type fakeVectorDB struct {
	pingErr       error
	collection    CollectionInfo
	collectionErr error
}

func (f *fakeVectorDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeVectorDB) GetCollection(context.Context, string) (CollectionInfo, error) {
	return f.collection, f.collectionErr
}

type fakeRepo struct {
	head        gitlib.Hash
	headErr     error
	branch      string
	branchErr   error
	uncommitted int
	uncommitErr error
	subjects    []string
	subjectsErr error
	behind      int
	behindErr   error
}

func (f *fakeRepo) Head() (gitlib.Hash, error)            { return f.head, f.headErr }
func (f *fakeRepo) CurrentBranch() (string, error)        { return f.branch, f.branchErr }
func (f *fakeRepo) UncommittedCount() (int, error)        { return f.uncommitted, f.uncommitErr }
func (f *fakeRepo) RecentSubjects(int) ([]string, error)  { return f.subjects, f.subjectsErr }
func (f *fakeRepo) CommitsSince(gitlib.Hash) (int, error) { return f.behind, f.behindErr }

func TestExecute_AllHealthy(t *testing.T) {
	cacheDir := t.TempDir()

	cache := fingerprint.New()
	cache.Touch(time.Now(), "abc123")
	require.NoError(t, fingerprint.Save(cacheDir, cache))

	db := &fakeVectorDB{collection: CollectionInfo{Exists: true, PointsCount: 42}}
	// behind defaults to 0: whether or not the hash strings happen to match,
	// zero commits behind keeps the index fresh.
	repo := &fakeRepo{branch: "main", subjects: []string{"fix: x", "add: y"}, head: gitlib.NewHash("abc123")}

	result := Execute(context.Background(), Config{
		VectorDB: db, Collection: "col", CacheDir: cacheDir, Repo: repo,
	})

	assert.Equal(t, indexing.CheckPass, result.QdrantStatus)
	assert.Equal(t, indexing.CheckPass, result.CollectionStatus)
	assert.Equal(t, int64(42), result.VectorCount)
	assert.True(t, result.Freshness.IsFresh)
	assert.Equal(t, "main", result.VCS.Branch)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 0, result.ExitCode())
}

func TestExecute_DBUnreachableSkipsCollectionButRunsFreshness(t *testing.T) {
	cacheDir := t.TempDir()

	db := &fakeVectorDB{pingErr: errors.New("connection refused")}

	result := Execute(context.Background(), Config{VectorDB: db, CacheDir: cacheDir})

	assert.Equal(t, indexing.CheckFail, result.QdrantStatus)
	assert.Equal(t, indexing.CheckSkip, result.CollectionStatus)
	assert.False(t, result.Freshness.IsFresh)
	assert.Equal(t, "no index found", result.Freshness.Suggestion)
	assert.Equal(t, 1, result.ExitCode())
}

func TestExecute_MissingIndexReportsNoIndexFound(t *testing.T) {
	cacheDir := t.TempDir()

	result := Execute(context.Background(), Config{CacheDir: cacheDir})

	assert.False(t, result.Freshness.IsFresh)
	assert.Equal(t, "no index found", result.Freshness.Suggestion)
	assert.Equal(t, 1, result.ExitCode())
}

func TestExecute_CorruptedStateReportsCorrupted(t *testing.T) {
	cacheDir := t.TempDir()
	require.NoError(t, writeRawCacheFile(cacheDir, "not json"))

	result := Execute(context.Background(), Config{CacheDir: cacheDir})

	assert.False(t, result.Freshness.IsFresh)
	assert.Equal(t, "corrupted state", result.Freshness.Suggestion)
}

func TestExecute_StaleByTimeIsWarned(t *testing.T) {
	cacheDir := t.TempDir()

	cache := fingerprint.New()
	cache.Touch(time.Now().Add(-48*time.Hour), "")
	require.NoError(t, fingerprint.Save(cacheDir, cache))

	result := Execute(context.Background(), Config{CacheDir: cacheDir})

	assert.False(t, result.Freshness.IsFresh)
	assert.Greater(t, result.Freshness.HoursSinceIndex, 24.0)
	assert.Equal(t, 1, result.ExitCode())
}

func TestExecute_StaleByCommitsBehindIsWarned(t *testing.T) {
	cacheDir := t.TempDir()

	cache := fingerprint.New()
	cache.Touch(time.Now(), "deadbeef")
	require.NoError(t, fingerprint.Save(cacheDir, cache))

	repo := &fakeRepo{head: gitlib.NewHash("cafef00d"), behind: 3}

	result := Execute(context.Background(), Config{CacheDir: cacheDir, Repo: repo})

	assert.False(t, result.Freshness.IsFresh)
	assert.Equal(t, 3, result.Freshness.CommitsBehind)
}

func TestExecute_NoVectorDBConfiguredIsSkippedNotFailed(t *testing.T) {
	cacheDir := t.TempDir()
	cache := fingerprint.New()
	cache.Touch(time.Now(), "")
	require.NoError(t, fingerprint.Save(cacheDir, cache))

	result := Execute(context.Background(), Config{CacheDir: cacheDir})

	assert.Equal(t, indexing.CheckSkip, result.QdrantStatus)
	assert.Equal(t, indexing.CheckSkip, result.CollectionStatus)
	assert.Equal(t, 0, result.ExitCode())
}

func TestExecute_VCSFailureDegradesGracefully(t *testing.T) {
	cacheDir := t.TempDir()

	repo := &fakeRepo{branchErr: errors.New("not a repository")}

	result := Execute(context.Background(), Config{CacheDir: cacheDir, Repo: repo})

	assert.NotEmpty(t, result.VCS.Error)
}

func TestExecute_NeverBlocksPastPerOperationTimeout(t *testing.T) {
	cacheDir := t.TempDir()

	slowDB := &fakeVectorDB{}

	start := time.Now()
	result := Execute(context.Background(), Config{
		VectorDB: slowPingDB{fakeVectorDB: slowDB}, CacheDir: cacheDir, Timeout: 20 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Equal(t, indexing.CheckFail, result.QdrantStatus)
	assert.Less(t, elapsed, time.Second)
}

type slowPingDB struct {
	*fakeVectorDB
}

func (slowPingDB) Ping(ctx context.Context) error {
	<-ctx.Done()

	return ctx.Err()
}

func writeRawCacheFile(cacheDir, contents string) error {
	return os.WriteFile(filepath.Join(cacheDir, fingerprint.FileName), []byte(contents), 0o600)
}
