package artifacts

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/heroku/buildpacks-release-phase/archive"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
)

// FileStore keeps artifacts as files in a directory.
type FileStore struct {
	loc    Location
	fs     fs.Filesystem
	codec  *archive.Codec
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

const (
	stagingPrefix = "."
	stagingSuffix = ".tmp"
)

// storeEntry matches archives and staging files directly under root, so a
// store root inside the directory being packed never archives itself.
func storeEntry(root string) func(string) bool {
	root = filepath.Clean(root)
	return func(p string) bool {
		if filepath.Dir(p) != root {
			return false
		}
		base := filepath.Base(p)
		if strings.HasPrefix(base, stagingPrefix+NamePrefix) && strings.HasSuffix(base, stagingSuffix) {
			return true
		}
		_, ok := ParseArchiveName(base)
		return ok
	}
}

func newFileStore(loc Location, o *options) *FileStore {
	return &FileStore{
		loc: loc,
		fs:  o.fs,
		codec: archive.New(o.fs,
			archive.WithLogger(o.logger),
			archive.WithSkip(storeEntry(loc.Path)),
		),
		logger: o.logger,
	}
}

// Location implements Store.Location.
func (s *FileStore) Location() Location {
	return s.loc
}

// Put packs sourceDir into a temporary file in the store root and renames it
// into place, so readers never observe a partial archive.
func (s *FileStore) Put(ctx context.Context, sourceDir, releaseID string) (Location, error) {
	const op = "artifacts.put"

	name, err := ArchiveName(releaseID)
	if err != nil {
		return Location{}, err
	}
	target := s.loc.WithName(name)

	if err := s.fs.MkdirAll(s.loc.Path, 0o755); err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "create store directory")
	}

	tmp := filepath.Join(s.loc.Path, stagingPrefix+name+"."+uuid.NewString()+stagingSuffix)
	f, err := s.fs.Create(tmp)
	if err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "create temporary archive")
	}

	s.logger.Info("save-release-artifacts writing archive", "source", sourceDir, "location", target.String())
	packErr := s.codec.Pack(ctx, sourceDir, f)
	closeErr := f.Close()
	if packErr == nil && closeErr != nil {
		packErr = rperrors.Wrap(closeErr, rperrors.CodeStorage, op, "close temporary archive")
	}
	if packErr != nil {
		s.removeQuietly(tmp)
		return Location{}, rperrors.Wrap(packErr, rperrors.CodeStorage, op, "pack "+sourceDir)
	}

	if err := s.fs.Rename(tmp, filepath.Join(s.loc.Path, name)); err != nil {
		s.removeQuietly(tmp)
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "move archive into place")
	}
	return target, nil
}

// Get unpacks the artifact for releaseID into destDir.
func (s *FileStore) Get(ctx context.Context, releaseID, destDir string) (Location, error) {
	const op = "artifacts.get"

	name, err := ArchiveName(releaseID)
	if err != nil {
		return Location{}, err
	}
	target := s.loc.WithName(name)
	path := filepath.Join(s.loc.Path, name)

	ok, err := s.fs.Exists(path)
	if err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "stat "+target.String())
	}
	if !ok {
		return Location{}, rperrors.Newf(rperrors.CodeNotFound, op, "no artifact at %s", target)
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "open "+target.String())
	}
	defer func() { _ = f.Close() }()

	s.logger.Info("load-release-artifacts unpacking archive", "location", target.String(), "destination", destDir)
	if err := s.codec.Unpack(ctx, f, destDir); err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "unpack "+target.String())
	}
	return target, nil
}

// List returns the artifacts in the store root sorted by name. A missing
// root holds no artifacts.
func (s *FileStore) List(_ context.Context) ([]Artifact, error) {
	const op = "artifacts.list"

	ok, err := s.fs.Exists(s.loc.Path)
	if err != nil {
		return nil, rperrors.Wrap(err, rperrors.CodeStorage, op, "stat store directory")
	}
	if !ok {
		return nil, nil
	}

	entries, err := s.fs.ReadDir(s.loc.Path)
	if err != nil {
		return nil, rperrors.Wrap(err, rperrors.CodeStorage, op, "read store directory")
	}

	var out []Artifact
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		id, ok := ParseArchiveName(e.Name())
		if !ok {
			continue
		}
		out = append(out, Artifact{Name: e.Name(), ReleaseID: id, Size: e.Size(), ModTime: e.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the named artifact.
func (s *FileStore) Delete(_ context.Context, name string) error {
	const op = "artifacts.delete"

	if _, ok := ParseArchiveName(name); !ok {
		return rperrors.Newf(rperrors.CodeInvalidInput, op, "%q is not an artifact name", name)
	}
	path := filepath.Join(s.loc.Path, name)
	ok, err := s.fs.Exists(path)
	if err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "stat "+name)
	}
	if !ok {
		return rperrors.Newf(rperrors.CodeNotFound, op, "no artifact named %s", name)
	}
	if err := s.fs.Remove(path); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "remove "+name)
	}
	return nil
}

func (s *FileStore) removeQuietly(path string) {
	if err := s.fs.Remove(path); err != nil {
		s.logger.Debug("artifacts failed to remove temporary file", "path", path, "error", err)
	}
}
