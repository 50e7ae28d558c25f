// Package fs is the filesystem seam used by the archive codec, the
// filesystem artifact backend, plan files and config. fs/billy provides the
// OS and in-memory implementations.
package fs

import "os"

// Filesystem covers the operations release phase code performs on disk.
type Filesystem interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	// OpenFile opens name with os.O_* flags.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)

	Exists(path string) (bool, error)
	Stat(name string) (os.FileInfo, error)
	ReadDir(dirname string) ([]os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error

	ReadFile(path string) ([]byte, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error

	// Remove deletes a file or an empty directory.
	Remove(name string) error
	// Rename replaces newpath when it exists.
	Rename(oldpath, newpath string) error
}
