package artifacts

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/heroku/buildpacks-release-phase/archive"
	s3client "github.com/heroku/buildpacks-release-phase/aws/s3"
	s3errors "github.com/heroku/buildpacks-release-phase/aws/s3/errors"
	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
)

// ObjectClient is the subset of the S3 client the object store uses.
type ObjectClient interface {
	Upload(ctx context.Context, bucket, key string, reader io.Reader, opts ...s3types.UploadOption) (*s3types.UploadResult, error)
	Download(ctx context.Context, bucket, key string, writer io.Writer) (*s3types.DownloadResult, error)
	List(ctx context.Context, bucket, prefix string) ([]s3types.Object, error)
	Delete(ctx context.Context, bucket, key string) error
}

var _ ObjectClient = (*s3client.Client)(nil)

// ObjectStore keeps artifacts as objects in an S3 bucket under a prefix.
type ObjectStore struct {
	loc     Location
	client  ObjectClient
	fs      fs.Filesystem
	codec   *archive.Codec
	tempDir string
	logger  *slog.Logger
}

var _ Store = (*ObjectStore)(nil)

func newObjectStore(loc Location, o *options) *ObjectStore {
	tempDir := o.tempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ObjectStore{
		loc:     loc,
		client:  o.client,
		fs:      o.fs,
		codec:   archive.New(o.fs, archive.WithLogger(o.logger)),
		tempDir: tempDir,
		logger:  o.logger,
	}
}

// Location implements Store.Location.
func (s *ObjectStore) Location() Location {
	return s.loc
}

// Put packs sourceDir into a staged archive and uploads it as one object.
func (s *ObjectStore) Put(ctx context.Context, sourceDir, releaseID string) (Location, error) {
	const op = "artifacts.put"

	name, err := ArchiveName(releaseID)
	if err != nil {
		return Location{}, err
	}
	target := s.loc.WithName(name)

	f, tmp, err := s.stage(target.Key)
	if err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "stage archive")
	}
	defer s.cleanup(f, tmp)

	if err := s.codec.Pack(ctx, sourceDir, f); err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "pack "+sourceDir)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "rewind staged archive")
	}

	s.logger.Info("save-release-artifacts uploading archive",
		"source", sourceDir, "location", target.String(), "region", s.loc.Region)
	res, err := s.client.Upload(ctx, s.loc.Bucket, target.Key, f)
	if err != nil {
		return Location{}, mapObjectError(err, op, "upload "+target.String())
	}
	s.logger.Debug("save-release-artifacts uploaded archive",
		"key", res.Key, "size", res.Size, "content_type", res.ContentType, "duration", res.Duration)
	return target, nil
}

// Get downloads the artifact for releaseID to a staged file and unpacks it
// into destDir.
func (s *ObjectStore) Get(ctx context.Context, releaseID, destDir string) (Location, error) {
	const op = "artifacts.get"

	name, err := ArchiveName(releaseID)
	if err != nil {
		return Location{}, err
	}
	target := s.loc.WithName(name)

	f, tmp, err := s.stage(target.Key)
	if err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "stage archive")
	}
	defer s.cleanup(f, tmp)

	s.logger.Info("load-release-artifacts downloading archive",
		"location", target.String(), "region", s.loc.Region)
	res, err := s.client.Download(ctx, s.loc.Bucket, target.Key, f)
	if err != nil {
		return Location{}, mapObjectError(err, op, "download "+target.String())
	}
	s.logger.Debug("load-release-artifacts downloaded archive", "size", res.Size, "duration", res.Duration)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "rewind staged archive")
	}
	if err := s.codec.Unpack(ctx, f, destDir); err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeStorage, op, "unpack "+target.String())
	}
	return target, nil
}

// List returns the artifacts directly under the prefix sorted by name.
func (s *ObjectStore) List(ctx context.Context) ([]Artifact, error) {
	const op = "artifacts.list"

	objects, err := s.client.List(ctx, s.loc.Bucket, s.loc.objectKey(NamePrefix))
	if err != nil {
		return nil, mapObjectError(err, op, "list "+s.loc.String())
	}

	var out []Artifact
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, s.loc.objectKey(""))
		id, ok := ParseArchiveName(name)
		if !ok {
			continue
		}
		out = append(out, Artifact{Name: name, ReleaseID: id, Size: obj.Size, ModTime: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the named artifact.
func (s *ObjectStore) Delete(ctx context.Context, name string) error {
	const op = "artifacts.delete"

	if _, ok := ParseArchiveName(name); !ok {
		return rperrors.Newf(rperrors.CodeInvalidInput, op, "%q is not an artifact name", name)
	}
	key := s.loc.objectKey(name)
	if err := s.client.Delete(ctx, s.loc.Bucket, key); err != nil {
		return mapObjectError(err, op, "delete "+s.loc.WithName(name).String())
	}
	return nil
}

// stage creates a uniquely named file in the temp directory for key.
//
//nolint:ireturn // fs.File is the contract shared by every backend.
func (s *ObjectStore) stage(key string) (fs.File, string, error) {
	if err := s.fs.MkdirAll(s.tempDir, 0o755); err != nil {
		return nil, "", err
	}
	name := "static-artifacts-temp--" + strings.ReplaceAll(path.Clean(key), "/", "-") + "--" + uuid.NewString()
	tmp := filepath.Join(s.tempDir, name)
	f, err := s.fs.Create(tmp)
	if err != nil {
		return nil, "", err
	}
	return f, tmp, nil
}

func (s *ObjectStore) cleanup(f fs.File, tmp string) {
	_ = f.Close()
	if err := s.fs.Remove(tmp); err != nil {
		s.logger.Debug("artifacts failed to remove staged archive", "path", tmp, "error", err)
	}
}

// mapObjectError translates S3 client errors into platform codes.
func mapObjectError(err error, op, message string) error {
	code := rperrors.CodeStorage
	switch {
	case s3errors.IsObjectNotFound(err), s3errors.IsBucketNotFound(err):
		code = rperrors.CodeNotFound
	case s3errors.IsAccessDenied(err):
		code = rperrors.CodeForbidden
	case s3errors.IsConnection(err):
		code = rperrors.CodeNetwork
	case s3errors.IsInvalidInput(err):
		code = rperrors.CodeInvalidInput
	case s3errors.IsRegionMismatch(err):
		code = rperrors.CodeInvalidConfig
	case rperrors.Is(err, context.Canceled):
		code = rperrors.CodeCanceled
	}
	return rperrors.Wrap(err, code, op, message)
}
