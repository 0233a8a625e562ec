package gitlib

import (
	"context"
	"fmt"
	"strings"
	"time"

	git2go "github.com/libgit2/git2go/v34"
)

// Repository wraps a libgit2 repository.
type Repository struct {
	repo *git2go.Repository
	path string
}

// OpenRepository opens a git repository at the given path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// Free releases the repository resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Head returns the HEAD reference target.
func (r *Repository) Head() (Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return Hash{}, fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return HashFromOid(ref.Target()), nil
}

// LookupCommit returns the commit with the given hash.
func (r *Repository) LookupCommit(_ context.Context, hash Hash) (*Commit, error) {
	commit, err := r.repo.LookupCommit(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup commit: %w", err)
	}

	return &Commit{commit: commit, repo: r}, nil
}

// Walk creates a new revision walker with no starting commit; callers add
// one with Push or PushHead.
func (r *Repository) Walk() (*RevWalk, error) {
	walk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}

	return &RevWalk{walk: walk, repo: r}, nil
}

// LogOptions configures the commit log iteration.
type LogOptions struct {
	Since       *time.Time // Only include commits after this time.
	FirstParent bool       // Follow only first parent (git log --first-parent).
}

// Log returns a commit iterator starting from HEAD.
func (r *Repository) Log(opts *LogOptions) (*CommitIter, error) {
	walk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}

	// Start from HEAD.
	headRef, err := r.repo.Head()
	if err != nil {
		walk.Free()

		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	defer headRef.Free()

	err = walk.Push(headRef.Target())
	if err != nil {
		walk.Free()

		return nil, fmt.Errorf("push HEAD to revwalk: %w", err)
	}

	// Topological order ensures we never diff against a descendant; prevents
	// negative burndown values when branches have different timestamps.
	walk.Sorting(git2go.SortTime | git2go.SortTopological)

	if opts != nil && opts.FirstParent {
		walk.SimplifyFirstParent()
	}

	return &CommitIter{walk: walk, repo: r, since: opts.Since}, nil
}

// Native returns the underlying libgit2 repository for advanced operations.
func (r *Repository) Native() *git2go.Repository {
	return r.repo
}

// CurrentBranch returns the short name of the checked-out branch, or "HEAD"
// when the repository is in a detached-HEAD state.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer head.Free()

	if !head.IsBranch() {
		return "HEAD", nil
	}

	return head.Shorthand(), nil
}

// UncommittedCount returns the number of index and working-tree entries with
// pending changes, including untracked files.
func (r *Repository) UncommittedCount() (int, error) {
	opts := &git2go.StatusOptions{
		Show:  git2go.StatusShowIndexAndWorkdir,
		Flags: git2go.StatusOptIncludeUntracked | git2go.StatusOptRenamesHeadToIndex,
	}

	list, err := r.repo.StatusList(opts)
	if err != nil {
		return 0, fmt.Errorf("list status: %w", err)
	}
	defer list.Free()

	count, err := list.EntryCount()
	if err != nil {
		return 0, fmt.Errorf("count status entries: %w", err)
	}

	return count, nil
}

// RecentSubjects returns the subject line (first line) of the last n commits
// reachable from HEAD, most recent first.
func (r *Repository) RecentSubjects(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	walk, err := r.Walk()
	if err != nil {
		return nil, err
	}

	if pushErr := walk.PushHead(); pushErr != nil {
		return nil, pushErr
	}

	subjects := make([]string, 0, n)

	iterErr := walk.Iterate(func(c *Commit) bool {
		subjects = append(subjects, subjectLine(c.Message()))

		return len(subjects) < n
	})
	if iterErr != nil {
		return nil, iterErr
	}

	return subjects, nil
}

// CommitsSince counts commits reachable from HEAD but not from since: the
// exclusive range (since, HEAD]. A zero since hash counts every commit
// reachable from HEAD.
func (r *Repository) CommitsSince(since Hash) (int, error) {
	walk, err := r.Walk()
	if err != nil {
		return 0, err
	}

	if pushErr := walk.PushHead(); pushErr != nil {
		return 0, pushErr
	}

	if !since.IsZero() {
		if hideErr := walk.Hide(since); hideErr != nil {
			return 0, hideErr
		}
	}

	count := 0

	iterErr := walk.Iterate(func(*Commit) bool {
		count++

		return true
	})
	if iterErr != nil {
		return 0, iterErr
	}

	return count, nil
}

func subjectLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}

	return message
}
