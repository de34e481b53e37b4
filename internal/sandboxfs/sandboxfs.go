// Package sandboxfs provides a per-session rooted filesystem view: a
// base scratch directory plus zero or more externally mounted "roots"
// the session has been granted access to. All operations reject
// traversal escapes, whether via ".." components or symlinks that
// resolve outside every permitted root.
package sandboxfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentserver/agentserver/internal/apierror"
)

// FS resolves paths for one session against its anonymous base
// directory and any additional roots it has been granted.
type FS struct {
	base  string
	roots []string
}

// New creates an FS rooted at base, creating it if necessary.
func New(base string, roots ...string) (*FS, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox base: %w", err)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	absRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		ar, err := filepath.Abs(r)
		if err != nil {
			return nil, err
		}
		absRoots = append(absRoots, ar)
	}
	return &FS{base: absBase, roots: absRoots}, nil
}

// Base returns the session's anonymous scratch directory, used as the
// working directory for sandboxed command execution.
func (f *FS) Base() string {
	return f.base
}

// AddRoot grants access to an additional externally mounted root.
func (f *FS) AddRoot(root string) error {
	ar, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	f.roots = append(f.roots, ar)
	return nil
}

// Roots returns the currently granted roots (not including the base).
func (f *FS) Roots() []string {
	out := make([]string, len(f.roots))
	copy(out, f.roots)
	return out
}

// Resolve accepts an absolute path inside a granted root, or a path
// relative to the session's base directory, and returns the absolute
// filesystem path — after confirming it does not escape its
// containing root via ".." components or symlinks.
func (f *FS) Resolve(path string) (string, error) {
	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(f.base, path))
	}

	root, err := f.containingRoot(candidate)
	if err != nil {
		return "", err
	}

	resolved, err := resolveSymlinks(candidate)
	if err != nil {
		return "", apierror.Wrap(apierror.KindInternal, "resolve symlinks", err)
	}
	if !isWithin(root, resolved) {
		return "", apierror.BadRequest("path %q escapes sandbox root", path)
	}
	return candidate, nil
}

func (f *FS) containingRoot(candidate string) (string, error) {
	if isWithin(f.base, candidate) {
		return f.base, nil
	}
	for _, r := range f.roots {
		if isWithin(r, candidate) {
			return r, nil
		}
	}
	return "", apierror.BadRequest("path %q is outside every sandbox root", candidate)
}

func isWithin(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// resolveSymlinks resolves symlinks in path up to and including its
// final, possibly-nonexistent component, walking up to the nearest
// existing ancestor the way EvalSymlinks requires.
func resolveSymlinks(path string) (string, error) {
	existing := path
	var missing []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		missing = append([]string{filepath.Base(existing)}, missing...)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	for _, component := range missing {
		resolved = filepath.Join(resolved, component)
	}
	return resolved, nil
}

// Glob matches pattern ("**" supported) against files under the base
// directory, returning sandbox-absolute paths.
func (f *FS) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(f.base), pattern)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindBadRequest, "invalid glob pattern", err)
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = "/" + m
	}
	return out, nil
}
