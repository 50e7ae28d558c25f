// Package billy implements fs.Filesystem with go-billy. The CLI runs on the
// OS variant and tests run on the in-memory one.
package billy

import (
	"errors"
	iofs "io/fs"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/heroku/buildpacks-release-phase/fs"
)

var _ fs.Filesystem = (*FS)(nil)

// FS is an fs.Filesystem backed by a billy.Filesystem.
type FS struct {
	fs billy.Filesystem
}

// NewFS adapts fsys.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewInMemoryFS returns an empty memfs.
func NewInMemoryFS() *FS {
	return NewFS(memfs.New())
}

// NewOSFS returns the host filesystem chrooted at root. With root "/"
// callers must pass absolute paths, see fs.GetAbs.
func NewOSFS(root string) *FS {
	return NewFS(osfs.New(root))
}

// pathErr labels err with the failing operation and path, keeping
// os.IsNotExist and errors.Is(err, iofs.ErrNotExist) working.
func pathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *iofs.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &iofs.PathError{Op: op, Path: path, Err: err}
}

func (b *FS) wrap(op, name string, f billy.File, err error) (fs.File, error) {
	if err != nil {
		return nil, pathErr(op, name, err)
	}
	return &File{file: f, fs: b}, nil
}

//nolint:ireturn // every backend returns fs.File
func (b *FS) Create(name string) (fs.File, error) {
	f, err := b.fs.Create(name)
	return b.wrap("create", name, f, err)
}

//nolint:ireturn // every backend returns fs.File
func (b *FS) Open(name string) (fs.File, error) {
	f, err := b.fs.Open(name)
	return b.wrap("open", name, f, err)
}

//nolint:ireturn // every backend returns fs.File
func (b *FS) OpenFile(name string, flag int, perm os.FileMode) (fs.File, error) {
	f, err := b.fs.OpenFile(name, flag, perm)
	return b.wrap("open", name, f, err)
}

// Exists treats only not-exist as absence. Other stat failures are errors.
func (b *FS) Exists(path string) (bool, error) {
	_, err := b.fs.Stat(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return err == nil, pathErr("stat", path, err)
}

func (b *FS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	return info, pathErr("stat", name, err)
}

func (b *FS) ReadDir(dirname string) ([]os.FileInfo, error) {
	entries, err := b.fs.ReadDir(dirname)
	return entries, pathErr("readdir", dirname, err)
}

func (b *FS) MkdirAll(path string, perm os.FileMode) error {
	return pathErr("mkdir", path, b.fs.MkdirAll(path, perm))
}

func (b *FS) ReadFile(path string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, path)
	return data, pathErr("read", path, err)
}

func (b *FS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return pathErr("write", filename, util.WriteFile(b.fs, filename, data, perm))
}

func (b *FS) Remove(name string) error {
	return pathErr("remove", name, b.fs.Remove(name))
}

func (b *FS) Rename(oldpath, newpath string) error {
	return pathErr("rename", oldpath, b.fs.Rename(oldpath, newpath))
}
