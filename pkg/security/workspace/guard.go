// Package workspace confines file paths supplied by remote callers to a
// workspace directory. The server uses it for artifacts written by actions
// (screenshots) and files read by them (packages to install).
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned for paths that resolve outside the
// workspace and every allowed directory.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// Guard resolves paths against a workspace root and rejects any that escape
// it, including through symlinks.
type Guard struct {
	root    string   // absolute, symlinks evaluated
	allowed []string // additional readable directories
}

// NewGuard creates a guard for dir, creating it when missing.
func NewGuard(dir string) (*Guard, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace directory cannot be empty")
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate workspace directory symlinks: %w", err)
	}
	return &Guard{root: evalPath}, nil
}

// Root returns the workspace directory.
func (g *Guard) Root() string {
	return g.root
}

// Allow adds a directory whose files may be resolved in addition to the
// workspace. Allowed directories never receive writes through Output.
func (g *Guard) Allow(dir string) error {
	if dir == "" {
		return fmt.Errorf("allowed directory cannot be empty")
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve allowed directory: %w", err)
	}
	evalPath := resolveSymlinks(absPath)
	for _, existing := range g.allowed {
		if existing == evalPath {
			return nil
		}
	}
	g.allowed = append(g.allowed, evalPath)
	return nil
}

// Input resolves path for reading. Relative paths are taken from the
// workspace; absolute paths must lie in the workspace or an allowed
// directory.
func (g *Guard) Input(path string) (string, error) {
	resolved, err := g.resolve(path)
	if err != nil {
		return "", err
	}
	if within(resolved, g.root) {
		return resolved, nil
	}
	for _, dir := range g.allowed {
		if within(resolved, dir) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, path)
}

// Output resolves path for writing. Only the workspace itself is writable,
// and missing parent directories are created.
func (g *Guard) Output(path string) (string, error) {
	resolved, err := g.resolve(path)
	if err != nil {
		return "", err
	}
	if !within(resolved, g.root) || resolved == g.root {
		return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, path)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return resolved, nil
}

func (g *Guard) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(g.root, cleanPath)
	}
	return resolveSymlinks(cleanPath), nil
}

func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path+string(filepath.Separator), dir+string(filepath.Separator))
}

// resolveSymlinks evaluates symlinks in path. For paths that do not exist
// yet it resolves the deepest existing parent and re-appends the rest.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path
	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath || dir == "." {
			return filepath.Clean(path)
		}
		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
