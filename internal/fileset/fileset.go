// Package fileset expands include/exclude glob patterns into concrete file lists.
package fileset

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
)

// FileSet is an immutable pair of ordered include and exclude patterns.
//
// Patterns are slash-separated and relative to the resolver root. They support
// '**' for any number of directories and '{a,b}' alternation. An exclude
// pattern always wins over an include pattern for the same path.
type FileSet struct {
	include []string
	exclude []string
}

// New builds a FileSet. Include entries prefixed with '!' are treated as
// excludes, matching the negation convention of front-end task runners.
func New(include, exclude []string) FileSet {
	fs := FileSet{}
	for _, p := range include {
		if strings.HasPrefix(p, "!") {
			fs.exclude = append(fs.exclude, normalizePattern(p[1:]))
			continue
		}
		fs.include = append(fs.include, normalizePattern(p))
	}
	for _, p := range exclude {
		fs.exclude = append(fs.exclude, normalizePattern(strings.TrimPrefix(p, "!")))
	}
	return fs
}

// Include returns a copy of the include patterns.
func (f FileSet) Include() []string {
	return append([]string(nil), f.include...)
}

// Exclude returns a copy of the exclude patterns.
func (f FileSet) Exclude() []string {
	return append([]string(nil), f.exclude...)
}

// IsEmpty reports whether the set has no include patterns and so never matches.
func (f FileSet) IsEmpty() bool {
	return len(f.include) == 0
}

// Validate rejects patterns that cannot be parsed.
func (f FileSet) Validate() error {
	for _, p := range append(f.Include(), f.exclude...) {
		if p == "" || path.IsAbs(p) || !doublestar.ValidatePattern(p) {
			return apperrors.NewInvalidPatternError(p)
		}
	}
	return nil
}

// Matches reports whether a root-relative slash path belongs to the set by
// pattern alone. It does not touch the filesystem, so it also answers for
// paths that were just deleted.
func (f FileSet) Matches(rel string) bool {
	rel = normalizePattern(rel)
	if !matchAny(f.include, rel) {
		return false
	}
	return !matchAny(f.exclude, rel)
}

// String renders the set in the negation form used by the configuration.
func (f FileSet) String() string {
	parts := f.Include()
	for _, p := range f.exclude {
		parts = append(parts, "!"+p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func normalizePattern(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}
