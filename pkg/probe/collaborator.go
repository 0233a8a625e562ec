// Package probe implements the Session-Start Health Probe: a best-effort,
// never-raising set of checks that tells a caller whether an existing index
// is fresh enough to rely on.
package probe

import (
	"context"

	"github.com/kestrel-labs/codeindex/pkg/gitlib"
)

// VectorDB is the probe's connectivity and introspection collaborator.
type VectorDB interface {
	Ping(ctx context.Context) error
	GetCollection(ctx context.Context, name string) (CollectionInfo, error)
}

// CollectionInfo is one collection's existence and size, as reported by the
// vector database.
type CollectionInfo struct {
	Exists      bool
	PointsCount int64
	Status      string
}

// Repository is the VCS context collaborator. *gitlib.Repository satisfies
// this directly; tests supply a fake.
type Repository interface {
	Head() (gitlib.Hash, error)
	CurrentBranch() (string, error)
	UncommittedCount() (int, error)
	RecentSubjects(n int) ([]string, error)
	CommitsSince(since gitlib.Hash) (int, error)
}
