// Package archive packs a directory tree into a deterministic gzip-compressed
// tar stream and unpacks such a stream back into a directory.
//
// Entries are written in a stable order: within each directory, child
// directories (with their contents) come before regular files, and siblings
// of the same kind are sorted by name. Every entry carries the Unix epoch as
// its modification time and no owner information, so packing the same tree
// twice yields identical bytes. Only directories and regular files are
// archived; symlinks and special files are skipped.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
)

// Extension is the file extension of archives produced by Pack.
const Extension = ".tgz"

var epoch = time.Unix(0, 0).UTC()

// Codec packs and unpacks archives over a filesystem.
type Codec struct {
	fs     fs.Filesystem
	level  int
	skip   func(path string) bool
	logger *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for skipped entries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCompressionLevel sets the gzip compression level.
func WithCompressionLevel(level int) Option {
	return func(c *Codec) {
		c.level = level
	}
}

// WithSkip leaves out every entry whose filesystem path matches skip.
// Skipped directories are not descended into.
func WithSkip(skip func(path string) bool) Option {
	return func(c *Codec) {
		c.skip = skip
	}
}

// New creates a Codec reading from and writing to fsys.
func New(fsys fs.Filesystem, opts ...Option) *Codec {
	c := &Codec{
		fs:     fsys,
		level:  gzip.DefaultCompression,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pack writes the contents of srcDir to w. srcDir itself is not part of the
// archive; entry names are relative to it.
func (c *Codec) Pack(ctx context.Context, srcDir string, w io.Writer) error {
	const op = "archive.pack"

	info, err := c.fs.Stat(srcDir)
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "stat source directory")
	}
	if !info.IsDir() {
		return rperrors.Newf(rperrors.CodeInvalidInput, op, "%s is not a directory", srcDir)
	}

	zw, err := gzip.NewWriterLevel(w, c.level)
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeInvalidInput, op, "create gzip writer")
	}
	tw := tar.NewWriter(zw)

	if err := c.packDir(ctx, tw, srcDir, ""); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "finish tar stream")
	}
	if err := zw.Close(); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "finish gzip stream")
	}
	return nil
}

func (c *Codec) packDir(ctx context.Context, tw *tar.Writer, dir, rel string) error {
	const op = "archive.pack"

	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "read directory")
	}

	var dirs, files []os.FileInfo
	for _, e := range entries {
		switch {
		case c.skip != nil && c.skip(filepath.Join(dir, e.Name())):
			c.logger.Debug("archive excluding entry", "path", path.Join(rel, e.Name()))
		case e.IsDir():
			dirs = append(dirs, e)
		case e.Mode().IsRegular():
			files = append(files, e)
		default:
			c.logger.Debug("archive skipping entry", "path", path.Join(rel, e.Name()), "mode", e.Mode().String())
		}
	}
	byName := func(s []os.FileInfo) {
		sort.Slice(s, func(i, j int) bool { return s[i].Name() < s[j].Name() })
	}
	byName(dirs)
	byName(files)

	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return rperrors.Wrap(err, rperrors.CodeCanceled, op, "pack interrupted")
		}
		name := path.Join(rel, d.Name())
		hdr := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     name + "/",
			Mode:     int64(d.Mode().Perm()),
			ModTime:  epoch,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return rperrors.Wrap(err, rperrors.CodeArchiveFormat, op, "write directory header "+name)
		}
		if err := c.packDir(ctx, tw, filepath.Join(dir, d.Name()), name); err != nil {
			return err
		}
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rperrors.Wrap(err, rperrors.CodeCanceled, op, "pack interrupted")
		}
		if err := c.packFile(tw, filepath.Join(dir, f.Name()), path.Join(rel, f.Name()), f); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) packFile(tw *tar.Writer, src, name string, info os.FileInfo) error {
	const op = "archive.pack"

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(info.Mode().Perm()),
		Size:     info.Size(),
		ModTime:  epoch,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return rperrors.Wrap(err, rperrors.CodeArchiveFormat, op, "write file header "+name)
	}

	f, err := c.fs.Open(src)
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "open "+name)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(tw, f); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "copy "+name)
	}
	return nil
}

// Unpack extracts the archive read from r into destDir, creating it if
// needed. Entries that would land outside destDir fail the whole operation
// with CodeArchiveFormat. Files already present in destDir are overwritten.
func (c *Codec) Unpack(ctx context.Context, r io.Reader, destDir string) error {
	const op = "archive.unpack"

	zr, err := gzip.NewReader(r)
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeArchiveFormat, op, "read gzip header")
	}
	defer func() { _ = zr.Close() }()

	if err := c.fs.MkdirAll(destDir, 0o755); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "create destination")
	}

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return rperrors.Wrap(err, rperrors.CodeCanceled, op, "unpack interrupted")
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return rperrors.Wrap(err, rperrors.CodeArchiveFormat, op, "read tar entry")
		}

		name, err := entryPath(hdr.Name)
		if err != nil {
			return rperrors.Wrap(err, rperrors.CodeArchiveFormat, op, "unsafe entry")
		}
		if name == "" {
			continue
		}
		target := filepath.Join(destDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := c.fs.MkdirAll(target, dirMode(hdr.Mode)); err != nil {
				return rperrors.Wrap(err, rperrors.CodeStorage, op, "create directory "+name)
			}
		case tar.TypeReg:
			if err := c.unpackFile(tr, target, name, hdr.Mode); err != nil {
				return err
			}
		default:
			c.logger.Debug("archive skipping entry", "path", name, "type", string(hdr.Typeflag))
		}
	}
}

func (c *Codec) unpackFile(r io.Reader, target, name string, mode int64) error {
	const op = "archive.unpack"

	if err := c.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "create parent of "+name)
	}
	f, err := c.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode(mode))
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "create "+name)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		if isTruncated(err) {
			return rperrors.Wrap(err, rperrors.CodeArchiveFormat, op, "read "+name)
		}
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "write "+name)
	}
	if err := f.Close(); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "close "+name)
	}
	return nil
}

// entryPath converts a tar entry name into a relative OS path. It returns an
// empty path for the archive root and an error for names escaping it.
func entryPath(name string) (string, error) {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%q is not a relative path", name)
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%q escapes the destination", name)
	}
	return filepath.FromSlash(clean), nil
}

func isTruncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, tar.ErrHeader) || errors.Is(err, gzip.ErrChecksum)
}

func dirMode(mode int64) os.FileMode {
	if perm := os.FileMode(mode).Perm(); perm != 0 {
		return perm | 0o700
	}
	return 0o755
}

func fileMode(mode int64) os.FileMode {
	if perm := os.FileMode(mode).Perm(); perm != 0 {
		return perm | 0o600
	}
	return 0o644
}
