// Package pathutil validates where export and trace files may be written.
//
// Export requests can arrive from MCP clients, so an output path is only
// accepted when it resolves, after symlink evaluation, inside one of the
// allowed directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExportsDir is the directory under ~/.hagerstrand that always accepts exports.
const ExportsDir = "exports"

// ErrOutsideAllowed is returned when a path escapes every allowed directory.
var ErrOutsideAllowed = errors.New("outside allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.hagerstrand/runs.db" becomes ".../.hagerstrand/runs.db".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ResolveOutput returns the absolute, symlink-resolved form of path if it
// lies within one of allowedDirs. The file itself need not exist.
func ResolveOutput(path string, allowedDirs []string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return "", fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return "", fmt.Errorf("path validation failed: path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// Only the parent is resolved; the file is usually about to be created.
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		base, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		if base, err = resolveExisting(base); err != nil {
			continue
		}
		if within(resolved, base) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("path validation failed: %q is %w", RedactPath(abs), ErrOutsideAllowed)
}

// ValidatePath checks that path is within one of the allowed directories.
func ValidatePath(path string, allowedDirs []string) error {
	_, err := ResolveOutput(path, allowedDirs)
	return err
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	head, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(head, filepath.Base(dir)), nil
}

// within reports whether path equals base or lies below it.
func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}

// DefaultOutputDirs returns the directories exports and traces may be
// written to: ~/.hagerstrand/exports and, when non-empty, workDir.
func DefaultOutputDirs(workDir string) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	dirs := []string{filepath.Join(home, ".hagerstrand", ExportsDir)}
	if workDir != "" {
		dirs = append(dirs, workDir)
	}
	return dirs, nil
}

// DefaultExportPath returns ~/.hagerstrand/exports/<name>-<kind>.arrow.
func DefaultExportPath(name, kind string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".hagerstrand", ExportsDir, name+"-"+kind+".arrow"), nil
}
