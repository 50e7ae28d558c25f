package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetAbs returns an absolute representation of path.
// Absolute paths are returned unchanged.
func GetAbs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("fs: abs %q: %w", path, err)
	}
	return abs, nil
}

// Exists reports whether path exists on the OS filesystem.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("fs: stat %q: %w", path, err)
	}
}

// IsEmptyDir reports whether dir is missing or has no entries.
// A path that exists but is not a directory is an error.
func IsEmptyDir(fsys Filesystem, dir string) (bool, error) {
	ok, err := fsys.Exists(dir)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	info, err := fsys.Stat(dir)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("fs: %q is not a directory", dir)
	}
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
