package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heroku/buildpacks-release-phase/fs"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
)

func TestGetAbs(t *testing.T) {
	t.Run("absolute path passthrough", func(t *testing.T) {
		got, err := fs.GetAbs("/tmp")
		require.NoError(t, err)
		assert.Equal(t, "/tmp", got)
	})

	t.Run("relative path conversion", func(t *testing.T) {
		got, err := fs.GetAbs("static-artifacts")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
		assert.Equal(t, "static-artifacts", filepath.Base(got))
	})
}

func TestExists(t *testing.T) {
	t.Run("existing file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "present")
		require.NoError(t, os.WriteFile(p, nil, 0o644))

		ok, err := fs.Exists(p)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing file", func(t *testing.T) {
		ok, err := fs.Exists(filepath.Join(t.TempDir(), "missing"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestIsEmptyDir(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.MkdirAll("/empty", 0o755))
	require.NoError(t, fsys.MkdirAll("/full", 0o755))
	require.NoError(t, fsys.WriteFile("/full/a.txt", []byte("a"), 0o644))
	require.NoError(t, fsys.WriteFile("/file", []byte("x"), 0o644))

	tests := []struct {
		name    string
		path    string
		want    bool
		wantErr bool
	}{
		{name: "missing", path: "/missing", want: true},
		{name: "empty", path: "/empty", want: true},
		{name: "populated", path: "/full", want: false},
		{name: "regular file", path: "/file", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.IsEmptyDir(fsys, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
