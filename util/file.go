package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDirectoryTraversal is returned for file names that would escape the
// target directory.
var ErrDirectoryTraversal = errors.New("path contains directory traversal")

// FileToBytes reads the whole file.
func FileToBytes(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// BytesToFile writes data to name, creating or truncating it.
func BytesToFile(name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ValidatePath cleans a file name received from a peer. Absolute paths and
// names containing ".." are rejected.
func ValidatePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(name, "/") {
		return "", ErrDirectoryTraversal
	}
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return "", ErrDirectoryTraversal
		}
	}
	return cleaned, nil
}
