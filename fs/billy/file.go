package billy

import (
	iofs "io/fs"

	"github.com/go-git/go-billy/v5"
)

// File is an open billy file. Errors come back unwrapped so io.EOF and
// friends compare equal.
type File struct {
	file billy.File
	fs   *FS
}

func (f *File) Name() string                                 { return f.file.Name() }
func (f *File) Read(p []byte) (int, error)                   { return f.file.Read(p) }
func (f *File) Write(p []byte) (int, error)                  { return f.file.Write(p) }
func (f *File) Seek(offset int64, whence int) (int64, error) { return f.file.Seek(offset, whence) }
func (f *File) Close() error                                 { return f.file.Close() }

// Stat goes through the filesystem since billy files carry no stat.
func (f *File) Stat() (iofs.FileInfo, error) {
	return f.fs.Stat(f.file.Name())
}
