// Package retrieval restores the artifact of the current release into the
// serving directory before the application starts.
package retrieval

import (
	"context"
	"io"
	"log/slog"

	"github.com/pelletier/go-toml/v2"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
)

// DefaultDir is where artifacts are unpacked, relative to the working directory.
const DefaultDir = "static-artifacts"

// LoadedFromKeyVar is the exec.d output naming the loaded artifact.
const LoadedFromKeyVar = "STATIC_ARTIFACTS_LOADED_FROM_KEY"

// Loader fetches one release's artifact. There is no fallback: a missing
// artifact fails the load.
type Loader struct {
	store     artifacts.Store
	releaseID string
	dir       string
	execD     io.Writer
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithDir sets the destination directory.
func WithDir(dir string) Option {
	return func(l *Loader) {
		l.dir = dir
	}
}

// WithExecDOutput writes the exec.d TOML output to w after a successful load.
func WithExecDOutput(w io.Writer) Option {
	return func(l *Loader) {
		l.execD = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a Loader for releaseID backed by store.
func New(store artifacts.Store, releaseID string, opts ...Option) *Loader {
	l := &Loader{
		store:     store,
		releaseID: releaseID,
		dir:       DefaultDir,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load unpacks the artifact into the destination directory and returns
// where it came from.
func (l *Loader) Load(ctx context.Context) (artifacts.Location, error) {
	const op = "retrieval.load"

	if l.store == nil {
		return artifacts.Location{}, rperrors.New(rperrors.CodeInvalidConfig, op, "STATIC_ARTIFACTS_URL is required")
	}
	if err := artifacts.ValidateReleaseID(l.releaseID); err != nil {
		return artifacts.Location{}, err
	}

	l.logger.Info("load-release-artifacts starting", "release_id", l.releaseID, "dir", l.dir)
	loc, err := l.store.Get(ctx, l.releaseID, l.dir)
	if err != nil {
		return artifacts.Location{}, err
	}
	l.logger.Info("load-release-artifacts complete", "location", loc.String())

	if l.execD != nil {
		if err := writeExecD(l.execD, loc.Key); err != nil {
			return loc, rperrors.Wrap(err, rperrors.CodeInternal, op, "write exec.d output")
		}
	}
	return loc, nil
}

func writeExecD(w io.Writer, key string) error {
	return toml.NewEncoder(w).Encode(map[string]string{LoadedFromKeyVar: key})
}
