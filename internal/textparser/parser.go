// Package textparser provides codeindex's built-in default Parser: a
// language-agnostic extractor that treats each file as a single chunk and
// a single entity. Language-specific AST extraction is a separate,
// pluggable Parser implementation, out of scope for this package.
package textparser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kestrel-labs/codeindex/pkg/pipeline"
	"github.com/kestrel-labs/codeindex/pkg/textutil"
)

// MaxFileSize caps the bytes read per file; larger files are reported as a
// parse error instead of silently truncated.
const MaxFileSize = 4 << 20 // 4 MiB

// Parser implements pipeline.Parser by reading a file's contents and
// emitting one entity and, for non-binary files, one chunk holding the
// full text. It does no language-aware structural extraction.
type Parser struct {
	// Root is the project root; entity IDs are the path relative to Root.
	Root string
}

var _ pipeline.Parser = Parser{}

// Parse reads path and returns a ParseResult with one entity describing the
// file and, for non-binary content, one chunk carrying the file's text.
// Binary files yield an entity with no chunk, never an error.
func (p Parser) Parse(_ context.Context, path string) (pipeline.ParseResult, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return pipeline.ParseResult{}, fmt.Errorf("stat %q: %w", path, statErr)
	}

	if info.Size() > MaxFileSize {
		return pipeline.ParseResult{}, fmt.Errorf("file %q exceeds %d bytes", path, MaxFileSize)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return pipeline.ParseResult{}, fmt.Errorf("read %q: %w", path, readErr)
	}

	id := p.entityID(path)

	result := pipeline.ParseResult{
		Entities: []pipeline.Entity{{
			ID: id,
			Payload: map[string]any{
				"path":  id,
				"bytes": len(data),
				"lines": textutil.CountLines(data),
			},
		}},
	}

	if !textutil.IsBinary(data) {
		result.Chunks = []pipeline.Chunk{{ID: id, Text: string(data)}}
	}

	return result, nil
}

func (p Parser) entityID(path string) string {
	if p.Root == "" {
		return path
	}

	rel, relErr := filepath.Rel(p.Root, path)
	if relErr != nil {
		return path
	}

	return rel
}
