// Package pathreg implements the Path Registry (spec §4.1): resolution and
// validation of caller-supplied paths against a configured root set, with
// the whole root set replaceable atomically under a lock (e.g. when the
// adapter renegotiates client roots).
package pathreg

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// Registry resolves and validates paths against a non-empty root set.
// Filesystem access is abstracted through afero.Fs so production code runs
// against the OS filesystem while tests run against an in-memory one.
type Registry struct {
	mu    sync.RWMutex
	roots []string
	fs    afero.Fs
}

// New creates a Registry with primary as the first (and default) root.
// fs is typically afero.NewOsFs() in production.
func New(fs afero.Fs, primary string, additional ...string) *Registry {
	r := &Registry{fs: fs}
	r.SetRoots(primary, additional...)
	return r
}

// SetRoots atomically replaces the full root set. primary becomes the new
// default root returned by GetRoot.
func (r *Registry) SetRoots(primary string, additional ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, 1+len(additional))
	roots = append(roots, normalizeRoot(primary))
	for _, a := range additional {
		roots = append(roots, normalizeRoot(a))
	}
	r.roots = roots
}

func normalizeRoot(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Clean(abs)
}

// GetRoot returns the primary configured root.
func (r *Registry) GetRoot() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.roots) == 0 {
		return ""
	}
	return r.roots[0]
}

// GetRoots returns the full configured root set, primary first. The
// returned slice is a copy and safe to retain.
func (r *Registry) GetRoots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Sanitize resolves input to an absolute, normalized path and verifies it
// falls under one of the configured roots. When mustExist is true, the
// path must also exist on disk.
func (r *Registry) Sanitize(input string, mustExist bool) (string, error) {
	if input == "" {
		return "", ntserr.New(ntserr.KindInvalidArgument, "empty path")
	}

	roots := r.GetRoots()

	var abs string
	if filepath.IsAbs(input) {
		abs = filepath.Clean(input)
	} else {
		abs = filepath.Clean(filepath.Join(roots[0], input))
	}

	if !underAnyRoot(abs, roots) {
		return "", ntserr.New(ntserr.KindPathEscape, "%s escapes configured roots", input)
	}

	if mustExist {
		if _, err := r.fs.Stat(abs); err != nil {
			return "", ntserr.Wrap(ntserr.KindNotFound, err, "%s not found", input)
		}
	}

	return abs, nil
}

func underAnyRoot(abs string, roots []string) bool {
	for _, root := range roots {
		if isDescendant(root, abs) {
			return true
		}
	}
	return false
}

// isDescendant reports whether target is root itself or a descendant of
// root, using filepath.Rel to reject ".." escapes robustly across
// platforms (avoids naive strings.HasPrefix path-confusion bugs, e.g.
// "/root-evil" being treated as under "/root").
func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

// FS returns the underlying filesystem handle for callers that need direct
// access (Encoding Probe, CRC/Diff Kit).
func (r *Registry) FS() afero.Fs {
	return r.fs
}
