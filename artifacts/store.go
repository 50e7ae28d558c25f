// Package artifacts stores release-build output as one archive per release
// identifier on a filesystem or in an S3 bucket.
//
// The backend is chosen once by New from the Location's scheme. Callers only
// see the Store interface.
package artifacts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	s3client "github.com/heroku/buildpacks-release-phase/aws/s3"
	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
	"github.com/heroku/buildpacks-release-phase/secrets"
)

// Environment variable names reported when object store credentials are missing.
const (
	AccessKeyIDVar     = "STATIC_ARTIFACTS_ACCESS_KEY_ID"
	SecretAccessKeyVar = "STATIC_ARTIFACTS_SECRET_ACCESS_KEY"
)

// Store persists and retrieves release artifacts.
type Store interface {
	// Put packs sourceDir and stores it as the artifact for releaseID.
	Put(ctx context.Context, sourceDir, releaseID string) (Location, error)

	// Get unpacks the artifact for releaseID into destDir.
	Get(ctx context.Context, releaseID, destDir string) (Location, error)

	// List returns the artifacts directly under the store root.
	List(ctx context.Context) ([]Artifact, error)

	// Delete removes the artifact with the given name.
	Delete(ctx context.Context, name string) error

	// Location returns the store root.
	Location() Location
}

// Artifact describes one stored archive.
type Artifact struct {
	Name      string
	ReleaseID string
	Size      int64
	ModTime   time.Time
}

type options struct {
	fs          fs.Filesystem
	logger      *slog.Logger
	credentials secrets.Credentials
	client      ObjectClient
	s3Options   []s3types.Option
	tempDir     string
}

// Option configures a Store.
type Option func(*options)

// WithFilesystem sets the filesystem used for source, destination and
// filesystem-backend paths. Defaults to the OS filesystem.
func WithFilesystem(fsys fs.Filesystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCredentials sets the object store credentials.
func WithCredentials(creds secrets.Credentials) Option {
	return func(o *options) {
		o.credentials = creds
	}
}

// WithObjectClient replaces the S3 client built by New.
func WithObjectClient(client ObjectClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithS3Options passes extra options to the S3 client built by New.
func WithS3Options(opts ...s3types.Option) Option {
	return func(o *options) {
		o.s3Options = append(o.s3Options, opts...)
	}
}

// WithTempDir sets where the object store stages archives. Defaults to the
// system temp directory.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// New returns the Store for loc.
//
// Object stores require complete credentials; their absence is a
// configuration error raised before any network call.
//
//nolint:ireturn // callers depend on the Store abstraction only.
func New(ctx context.Context, loc Location, opts ...Option) (Store, error) {
	const op = "artifacts.new"

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = billy.NewOSFS("/")
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	switch loc.Backend {
	case BackendFilesystem:
		return newFileStore(loc, o), nil
	case BackendObjectStore:
		if missing := o.credentials.Missing(AccessKeyIDVar, SecretAccessKeyVar); len(missing) > 0 {
			return nil, rperrors.Newf(rperrors.CodeInvalidConfig, op,
				"s3 storage requires %s", strings.Join(missing, " and "))
		}
		if o.client == nil {
			client, err := newS3Client(ctx, loc, o)
			if err != nil {
				return nil, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "configure s3 client")
			}
			o.client = client
		}
		return newObjectStore(loc, o), nil
	default:
		return nil, rperrors.Newf(rperrors.CodeInvalidConfig, op, "unknown backend %q", loc.Backend)
	}
}

func newS3Client(ctx context.Context, loc Location, o *options) (*s3client.Client, error) {
	s3opts := []s3types.Option{
		s3client.WithRegion(loc.Region),
		s3client.WithCredentials(o.credentials),
		s3client.WithForcePathStyle(loc.Style == s3types.PathStyle),
		s3client.WithLogger(o.logger),
	}
	if loc.Endpoint != "" {
		s3opts = append(s3opts, s3client.WithEndpoint(loc.Endpoint))
	}
	return s3client.New(ctx, append(s3opts, o.s3Options...)...)
}
