package fs

import "io/fs"

// File is an open file handle used by the archive codec and the artifact
// backends. Implementations should behave like *os.File.
type File interface {
	Close() error
	Name() string
	Read(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}
