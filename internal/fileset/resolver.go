package fileset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
)

// Resolver expands FileSets against a filesystem root.
//
// Resolution is recomputed on every call; nothing is cached across
// filesystem mutations.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for root. The root is made absolute; use
// CheckRoot to fail early when it is missing. Resolve checks it again.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.NewMissingRootError(root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string {
	return r.root
}

// CheckRoot fails with a configuration error unless the root is an existing
// directory.
func (r *Resolver) CheckRoot() error {
	info, err := os.Stat(r.root)
	if err != nil {
		return apperrors.NewMissingRootError(r.root, err)
	}
	if !info.IsDir() {
		return apperrors.NewMissingRootError(r.root, nil).
			WithContext("reason", "not a directory")
	}
	return nil
}

// Resolve expands fs into absolute paths of existing regular files.
//
// Each include pattern is expanded independently in lexical order, the
// results are unioned in first-seen order, and any path matched by an
// exclude pattern is dropped. A pattern matching nothing contributes nothing.
func (r *Resolver) Resolve(fs FileSet) ([]string, error) {
	if err := r.CheckRoot(); err != nil {
		return nil, err
	}
	if err := fs.Validate(); err != nil {
		return nil, err
	}

	fsys := os.DirFS(r.root)
	seen := make(map[string]struct{})
	paths := []string{}

	for _, pattern := range fs.include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, apperrors.NewInvalidPatternError(pattern).WithOriginalError(err)
		}
		sort.Strings(matches)

		for _, rel := range matches {
			if _, dup := seen[rel]; dup {
				continue
			}
			seen[rel] = struct{}{}
			if matchAny(fs.exclude, rel) {
				continue
			}
			paths = append(paths, filepath.Join(r.root, filepath.FromSlash(rel)))
		}
	}

	return paths, nil
}

// Rel converts an absolute path under the root to a root-relative slash path.
// The second result is false for paths outside the root.
func (r *Resolver) Rel(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), true
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Abs converts a root-relative path to an absolute path.
func (r *Resolver) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(r.root, filepath.FromSlash(rel))
}
