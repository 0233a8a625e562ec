package probe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kestrel-labs/codeindex/pkg/fingerprint"
	"github.com/kestrel-labs/codeindex/pkg/gitlib"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
)

// DefaultTimeout is the per-operation soft deadline when Config.Timeout is
// unset: every subcheck gets its own 2s budget rather than sharing one.
const DefaultTimeout = 2 * time.Second

// DefaultRecentSubjects is how many commit subjects the VCS context reports.
const DefaultRecentSubjects = 3

// StaleAge is the age past which the index is considered stale by time
// alone, independent of any commit-delta check.
const StaleAge = 24 * time.Hour

// Config parameterizes one Execute call. VectorDB and Repo are optional:
// a nil VectorDB skips connectivity/collection checks; a nil Repo skips the
// commit-freshness and VCS-context checks.
type Config struct {
	VectorDB           VectorDB
	Collection         string
	CacheDir           string
	Repo               Repository
	Timeout            time.Duration
	RecentSubjectCount int
}

// Execute runs every subcheck and returns a SessionStartResult. It never
// returns an error and never panics: every internal failure is recorded as
// a subcheck status or a VCS/freshness error field instead.
func Execute(ctx context.Context, cfg Config) indexing.SessionStartResult {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	subjectCount := cfg.RecentSubjectCount
	if subjectCount <= 0 {
		subjectCount = DefaultRecentSubjects
	}

	var result indexing.SessionStartResult

	result.QdrantStatus, result.QdrantError = checkVectorDB(ctx, cfg.VectorDB, timeout)

	if result.QdrantStatus == indexing.CheckPass {
		result.CollectionStatus, result.CollectionError, result.VectorCount = checkCollection(ctx, cfg, timeout)
	} else {
		result.CollectionStatus = indexing.CheckSkip
	}

	result.Freshness = checkFreshness(ctx, cfg, timeout)
	result.VCS = checkVCS(ctx, cfg.Repo, timeout, subjectCount)
	result.Warnings = collectWarnings(result)

	return result
}

func checkVectorDB(ctx context.Context, db VectorDB, timeout time.Duration) (indexing.CheckStatus, string) {
	if db == nil {
		return indexing.CheckSkip, ""
	}

	if err := runWithTimeout(ctx, timeout, func(checkCtx context.Context) error {
		return db.Ping(checkCtx)
	}); err != nil {
		return indexing.CheckFail, err.Error()
	}

	return indexing.CheckPass, ""
}

func checkCollection(ctx context.Context, cfg Config, timeout time.Duration) (indexing.CheckStatus, string, int64) {
	var info CollectionInfo

	err := runWithTimeout(ctx, timeout, func(checkCtx context.Context) error {
		i, getErr := cfg.VectorDB.GetCollection(checkCtx, cfg.Collection)
		info = i

		return getErr
	})
	if err != nil {
		return indexing.CheckFail, err.Error(), 0
	}

	if !info.Exists {
		return indexing.CheckFail, "collection not found", 0
	}

	return indexing.CheckPass, "", info.PointsCount
}

// checkFreshness implements the freshness rule: missing state ⇒ not fresh
// with "no index found"; unparseable ⇒ "corrupted state"; otherwise a
// time check and, when a repository is available and a baseline commit was
// recorded, a commit-delta check.
func checkFreshness(ctx context.Context, cfg Config, timeout time.Duration) indexing.IndexFreshnessResult {
	path := fingerprint.Path(cfg.CacheDir)

	if _, statErr := os.Stat(path); statErr != nil {
		return indexing.IndexFreshnessResult{Suggestion: "no index found"}
	}

	cache, loadErr := fingerprint.Load(cfg.CacheDir)
	if loadErr != nil {
		return indexing.IndexFreshnessResult{Suggestion: "corrupted state"}
	}

	result := indexing.IndexFreshnessResult{
		IsFresh:           true,
		LastIndexedTime:   cache.LastIndexedTime,
		LastIndexedCommit: cache.LastIndexedCommit,
	}

	lastIndexed := time.Unix(cache.LastIndexedTime, 0).UTC()
	result.HoursSinceIndex = time.Since(lastIndexed).Hours()

	if time.Since(lastIndexed) > StaleAge {
		result.IsFresh = false
		result.Suggestion = "index has not run in over 24 hours"
	}

	applyCommitFreshness(ctx, cfg, timeout, cache.LastIndexedCommit, &result)

	return result
}

func applyCommitFreshness(
	ctx context.Context, cfg Config, timeout time.Duration, lastCommit string, result *indexing.IndexFreshnessResult,
) {
	if cfg.Repo == nil || lastCommit == "" {
		return
	}

	var head gitlib.Hash

	if err := runWithTimeout(ctx, timeout, func(context.Context) error {
		h, headErr := cfg.Repo.Head()
		head = h

		return headErr
	}); err != nil {
		return
	}

	result.CurrentCommit = head.String()

	if result.CurrentCommit == lastCommit {
		return
	}

	var behind int

	err := runWithTimeout(ctx, timeout, func(context.Context) error {
		n, sinceErr := cfg.Repo.CommitsSince(gitlib.NewHash(lastCommit))
		behind = n

		return sinceErr
	})
	if err != nil {
		return
	}

	result.CommitsBehind = behind

	if behind > 0 {
		result.IsFresh = false
		if result.Suggestion == "" {
			result.Suggestion = fmt.Sprintf("%d commits behind HEAD", behind)
		}
	}
}

func checkVCS(ctx context.Context, repo Repository, timeout time.Duration, subjectCount int) indexing.VCSContext {
	var vcs indexing.VCSContext

	if repo == nil {
		return vcs
	}

	recordErr := func(err error) {
		if err != nil && vcs.Error == "" {
			vcs.Error = err.Error()
		}
	}

	recordErr(runWithTimeout(ctx, timeout, func(context.Context) error {
		branch, err := repo.CurrentBranch()
		vcs.Branch = branch

		return err
	}))

	recordErr(runWithTimeout(ctx, timeout, func(context.Context) error {
		n, err := repo.UncommittedCount()
		vcs.UncommittedFiles = n

		return err
	}))

	recordErr(runWithTimeout(ctx, timeout, func(context.Context) error {
		subjects, err := repo.RecentSubjects(subjectCount)
		vcs.RecentSubjects = subjects

		return err
	}))

	return vcs
}

func collectWarnings(r indexing.SessionStartResult) []string {
	var warnings []string

	if r.QdrantStatus == indexing.CheckFail {
		warnings = append(warnings, "vector database unreachable: "+r.QdrantError)
	}

	if r.CollectionStatus == indexing.CheckFail {
		warnings = append(warnings, "collection check failed: "+r.CollectionError)
	}

	if !r.Freshness.IsFresh {
		warnings = append(warnings, "index is stale: "+r.Freshness.Suggestion)
	}

	return warnings
}

// runWithTimeout enforces a soft per-operation deadline: fn runs on its own
// goroutine so a hung libgit2/RPC call can't block the caller past timeout,
// and a panic inside fn is recovered and reported as an error instead of
// crashing the probe.
func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v", rec)
			}
		}()

		done <- fn(checkCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-checkCtx.Done():
		return checkCtx.Err()
	}
}
