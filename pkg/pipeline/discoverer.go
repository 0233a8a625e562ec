package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Discoverer walks a project root and produces candidate file paths in
// deterministic order.
type Discoverer struct {
	Root    string
	Include []string // glob patterns matched against the path relative to Root; empty ⇒ match all.
	Exclude []string // glob patterns matched against path segments; directories matching are pruned.
}

// Discover enumerates candidate files under d.Root, returning absolute
// paths in deterministic (lexical) order.
func (d Discoverer) Discover(_ context.Context) ([]string, error) {
	var out []string

	walkErr := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(d.Root, path)
		if relErr != nil {
			return fmt.Errorf("relativize %q: %w", path, relErr)
		}

		if entry.IsDir() {
			if rel != "." && d.matchesExclude(rel) {
				return filepath.SkipDir
			}

			return nil
		}

		if d.matchesExclude(rel) {
			return nil
		}

		if !d.matchesInclude(rel) {
			return nil
		}

		out = append(out, path)

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("discover files under %q: %w", d.Root, walkErr)
	}

	sort.Strings(out)

	return out, nil
}

func (d Discoverer) matchesInclude(relPath string) bool {
	if len(d.Include) == 0 {
		return true
	}

	return matchesAny(d.Include, relPath)
}

func (d Discoverer) matchesExclude(relPath string) bool {
	return matchesAny(d.Exclude, relPath)
}

func matchesAny(patterns []string, relPath string) bool {
	normalized := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, normalized); ok {
			return true
		}

		for _, segment := range strings.Split(normalized, "/") {
			if ok, _ := filepath.Match(pattern, segment); ok {
				return true
			}
		}
	}

	return false
}
