// Package workspace implements path confinement: every path a Task writes
// or reads must resolve strictly inside that Task's workspace directory.
// This is the sole gate between agent-generated file paths and the
// filesystem.
package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentforge/pipeline/pkg/taxonomy"
)

const maxPathLength = 512

var componentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// IsSafe reports whether rel is a path-safe relative path:
// non-empty, within the length cap, not absolute, free of `..`, null bytes,
// CR/LF, and composed of components matching [A-Za-z0-9_.-]+ that do not
// begin with a dot.
func IsSafe(rel string) bool {
	if rel == "" || len(rel) > maxPathLength {
		return false
	}
	if strings.ContainsAny(rel, "\x00\r\n") {
		return false
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return false
	}
	if strings.Contains(rel, "..") {
		return false
	}

	components := strings.Split(rel, "/")
	for _, c := range components {
		if c == "" {
			// Empty component means a doubled separator ("a//b") or a
			// leading/trailing slash.
			return false
		}
		if strings.HasPrefix(c, ".") {
			return false
		}
		if !componentPattern.MatchString(c) {
			return false
		}
	}
	return true
}

// Sanitize validates rel and returns the canonical absolute path it resolves
// to inside base. It is the only function C5 may use to turn a persisted or
// agent-supplied file_path into a filesystem path.
//
// Sanitize is idempotent modulo canonicalization: calling it again with the
// path it just returned (made relative to base) yields the same result.
func Sanitize(base, rel string) (string, error) {
	if !IsSafe(rel) {
		return "", taxonomy.NewValidationError("path", "unsafe relative path: "+rel)
	}
	return Resolve(base, rel)
}

// Resolve canonicalizes base and joins rel to it, then verifies the result
// lies inside base (or equals it). It assumes rel has already passed IsSafe;
// callers outside this package should use Sanitize instead.
//
// The destination file need not exist yet (writeFile calls this before
// creating it), so only base — which must already exist — is resolved
// through symlinks; the joined result is merely Clean'd.
func Resolve(base, rel string) (string, error) {
	absBase, err := canonicalize(base)
	if err != nil {
		return "", taxonomy.NewValidationError("path", "cannot resolve workspace root: "+err.Error())
	}

	resolved := filepath.Clean(filepath.Join(absBase, rel))

	if resolved != absBase && !strings.HasPrefix(resolved, absBase+string(filepath.Separator)) {
		return "", taxonomy.NewValidationError("path", "path escapes workspace root: "+rel)
	}
	return resolved, nil
}

// canonicalize returns the absolute, symlink-resolved form of p. If p does
// not exist yet, it falls back to filepath.Abs + Clean so a not-yet-created
// destination can still be confined.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", err
	}
	return resolved, nil
}

// Bootstrap creates the per-task workspace directory <root>/<taskID> with
// mode 0755 and returns its canonical path. Called exactly once, at intake,
// before the corresponding Task row is created: directory first, DB row
// second.
func Bootstrap(root, taskID string) (string, error) {
	if !componentPattern.MatchString(taskID) {
		return "", taxonomy.NewValidationError("path", "unsafe task id: "+taskID)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", taxonomy.NewValidationError("path", "cannot resolve workspace root: "+err.Error())
	}
	dir := filepath.Join(absRoot, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", taxonomy.NewValidationError("path", "cannot create workspace: "+err.Error())
	}
	return canonicalize(dir)
}
