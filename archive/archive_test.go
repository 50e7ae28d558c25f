package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
)

func writeTree(t *testing.T, fsys *billy.FS, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, fsys.WriteFile(p, []byte(content), 0o644))
	}
}

func tarNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(zr)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		require.NoError(t, err)
		assert.Equal(t, int64(0), hdr.ModTime.Unix(), "entry %s", hdr.Name)
		assert.Empty(t, hdr.Uname)
		names = append(names, hdr.Name)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys, "/src", map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	})
	codec := New(fsys)

	var buf bytes.Buffer
	require.NoError(t, codec.Pack(ctx, "/src", &buf))
	require.NoError(t, codec.Unpack(ctx, bytes.NewReader(buf.Bytes()), "/dest"))

	got, err := fsys.ReadFile("/dest/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = fsys.ReadFile("/dest/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestCodec_PackSkip(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys, "/src", map[string]string{
		"a.txt":           "a",
		"skip.txt":        "x",
		"cache/c.txt":     "c",
		"sub/keep.txt":    "k",
		"sub/skip.txt":    "y",
		"sub/cache/d.txt": "d",
	})
	codec := New(fsys, WithSkip(func(p string) bool {
		return filepath.Base(p) == "skip.txt" || p == "/src/cache"
	}))

	var buf bytes.Buffer
	require.NoError(t, codec.Pack(ctx, "/src", &buf))
	assert.Equal(t, []string{"sub/", "sub/cache/", "sub/cache/d.txt", "sub/keep.txt", "a.txt"}, tarNames(t, buf.Bytes()))
}

func TestCodec_PackIsDeterministic(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys, "/src", map[string]string{
		"z.txt":         "z",
		"a.txt":         "a",
		"sub/b.txt":     "b",
		"sub/deep/c.js": "c",
		"assets/d.css":  "d",
	})
	codec := New(fsys)

	var first, second bytes.Buffer
	require.NoError(t, codec.Pack(ctx, "/src", &first))
	require.NoError(t, codec.Pack(ctx, "/src", &second))
	assert.Equal(t, first.Bytes(), second.Bytes())

	assert.Equal(t, []string{
		"assets/",
		"assets/d.css",
		"sub/",
		"sub/deep/",
		"sub/deep/c.js",
		"sub/b.txt",
		"a.txt",
		"z.txt",
	}, tarNames(t, first.Bytes()))
}

func TestCodec_PackEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.MkdirAll("/src", 0o755))

	var buf bytes.Buffer
	require.NoError(t, New(fsys).Pack(ctx, "/src", &buf))
	assert.Empty(t, tarNames(t, buf.Bytes()))
}

func TestCodec_PackRejectsFile(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.WriteFile("/file", []byte("x"), 0o644))

	err := New(fsys).Pack(context.Background(), "/file", io.Discard)
	require.Error(t, err)
	assert.Equal(t, rperrors.CodeInvalidInput, rperrors.CodeOf(err))
}

func TestCodec_PackSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("real"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	var buf bytes.Buffer
	require.NoError(t, New(billy.NewOSFS("/")).Pack(context.Background(), root, &buf))
	assert.Equal(t, []string{"real.txt"}, tarNames(t, buf.Bytes()))
}

func TestCodec_PackCanceled(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys, "/src", map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(fsys).Pack(ctx, "/src", io.Discard)
	require.Error(t, err)
	assert.Equal(t, rperrors.CodeCanceled, rperrors.CodeOf(err))
}

func rawArchive(t *testing.T, entries []tar.Header, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, hdr := range entries {
		hdr := hdr
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(body))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestCodec_UnpackRejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "parent traversal", entry: "../evil.txt"},
		{name: "nested traversal", entry: "sub/../../evil.txt"},
		{name: "absolute", entry: "/etc/evil.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := billy.NewInMemoryFS()
			data := rawArchive(t, []tar.Header{{Typeflag: tar.TypeReg, Name: tt.entry, Mode: 0o644}}, "evil")

			err := New(fsys).Unpack(context.Background(), bytes.NewReader(data), "/dest")
			require.Error(t, err)
			assert.Equal(t, rperrors.CodeArchiveFormat, rperrors.CodeOf(err))

			ok, err := fsys.Exists("/evil.txt")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCodec_UnpackSkipsLinks(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	data := rawArchive(t, []tar.Header{
		{Typeflag: tar.TypeSymlink, Name: "link", Linkname: "/etc/passwd"},
		{Typeflag: tar.TypeReg, Name: "ok.txt", Mode: 0o644},
	}, "ok")

	require.NoError(t, New(fsys).Unpack(context.Background(), bytes.NewReader(data), "/dest"))

	ok, err := fsys.Exists("/dest/link")
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := fsys.ReadFile("/dest/ok.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
}

func TestCodec_UnpackCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not gzip", data: []byte("definitely not an archive")},
		{name: "empty", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(billy.NewInMemoryFS()).Unpack(context.Background(), bytes.NewReader(tt.data), "/dest")
			require.Error(t, err)
			assert.Equal(t, rperrors.CodeArchiveFormat, rperrors.CodeOf(err))
		})
	}
}

func TestCodec_UnpackOverwrites(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewInMemoryFS()
	writeTree(t, fsys, "/src", map[string]string{"a.txt": "new"})
	writeTree(t, fsys, "/dest", map[string]string{"a.txt": "old content that is longer"})
	codec := New(fsys)

	var buf bytes.Buffer
	require.NoError(t, codec.Pack(ctx, "/src", &buf))
	require.NoError(t, codec.Unpack(ctx, &buf, "/dest"))

	got, err := fsys.ReadFile("/dest/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
