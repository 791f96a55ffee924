// Package security guards the upload directory against hostile
// filenames and path escapes.
package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrPathOutsideRoot  = errors.New("path escapes storage root")
	ErrSymlinkEscape    = errors.New("symlink escape detected")
	ErrInvalidPath      = errors.New("invalid path")
)

var traversalPatterns = []string{
	"..",
	"%2e%2e",
	"%252e%252e",
	"..%2f",
	"%2f..",
	"..\\",
	"\\..\\",
}

type SafePath struct {
	path string
}

func (sp *SafePath) Path() string {
	return sp.path
}

func (sp *SafePath) String() string {
	return sp.path
}

// ValidatePathInRoot resolves path against root and rejects anything
// that would land outside it, including via symlinks.
func ValidatePathInRoot(path, root string) (*SafePath, error) {
	if containsTraversalPattern(path) {
		return nil, ErrPathTraversal
	}

	rootPath := filepath.Clean(root)
	if !filepath.IsAbs(rootPath) {
		absRoot, err := filepath.Abs(rootPath)
		if err != nil {
			return nil, ErrInvalidPath
		}
		rootPath = absRoot
	}

	var targetPath string
	if filepath.IsAbs(path) {
		targetPath = filepath.Clean(path)
	} else {
		targetPath = filepath.Join(rootPath, path)
	}

	targetPath = filepath.Clean(targetPath)

	if err := checkSymlinkEscape(targetPath, rootPath); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(targetPath, rootPath+string(os.PathSeparator)) && targetPath != rootPath {
		return nil, ErrPathOutsideRoot
	}

	return &SafePath{path: targetPath}, nil
}

func containsTraversalPattern(path string) bool {
	lowerPath := strings.ToLower(path)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lowerPath, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func checkSymlinkEscape(targetPath, rootPath string) error {
	relPath, err := filepath.Rel(rootPath, targetPath)
	if err != nil {
		return nil
	}

	if strings.HasPrefix(relPath, "..") {
		return ErrPathOutsideRoot
	}

	currentPath := rootPath
	parts := strings.Split(relPath, string(os.PathSeparator))

	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}

		currentPath = filepath.Join(currentPath, part)

		info, err := os.Lstat(currentPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return ErrInvalidPath
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(currentPath)
			if err != nil {
				continue
			}

			resolved = filepath.Clean(resolved)
			if !strings.HasPrefix(resolved, rootPath+string(os.PathSeparator)) && resolved != rootPath {
				return ErrSymlinkEscape
			}
		}
	}

	return nil
}

func NormalizePath(path string) string {
	return filepath.Clean(path)
}

func IsPathInRoot(path, root string) bool {
	_, err := ValidatePathInRoot(path, root)
	return err == nil
}
