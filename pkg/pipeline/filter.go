package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrel-labs/codeindex/pkg/fingerprint"
)

// Filter drops unchanged files via the project's content-hash cache. It is
// single-writer per project; the filtering stage owns the read-modify-write
// of the cache.
type Filter struct {
	ProjectPath string
	Cache       *fingerprint.Cache
}

// FilterResult is the filtering stage's output.
type FilterResult struct {
	WorkSet      []string // project-relative, separator-normalized paths.
	FilesSkipped int
}

// Apply compares each absolute candidate path against the cache and returns
// the work set of changed (or newly seen) files. Files that disappear
// between discovery and filtering are silently dropped, matching the same
// tolerance the pipeline extends to the parse phase.
func (f *Filter) Apply(candidates []string) FilterResult {
	var result FilterResult

	for _, abs := range candidates {
		rel, changed := f.evaluate(abs)
		if rel == "" {
			continue
		}

		if changed {
			result.WorkSet = append(result.WorkSet, rel)
		} else {
			result.FilesSkipped++
		}
	}

	return result
}

// evaluate returns the project-relative key for abs and whether its content
// fingerprint changed since the last recorded value. An empty key means the
// file should be dropped silently (it disappeared, or reading it failed).
func (f *Filter) evaluate(abs string) (relKey string, changed bool) {
	info, statErr := os.Stat(abs)
	if statErr != nil {
		return "", false
	}

	relKey = relativeKey(f.ProjectPath, abs)

	cached, hasCached := f.Cache.Get(relKey)
	fastKey := fingerprint.FastPathKey(info.Size(), info.ModTime())

	if hasCached && strings.HasPrefix(cached, fastKey+":") {
		return relKey, false
	}

	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return "", false
	}

	fp := fingerprint.ContentFingerprint(info.Size(), info.ModTime(), data)
	if hasCached && fp == cached {
		return relKey, false
	}

	f.Cache.Put(relKey, fp)

	return relKey, true
}

// relativeKey converts abs to a project-relative, separator-normalized path.
// A file outside projectPath is keyed by its absolute path instead, since
// the relative conversion can fail or escape the project root.
func relativeKey(projectPath, abs string) string {
	rel, err := filepath.Rel(projectPath, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(abs)
	}

	return filepath.ToSlash(rel)
}
