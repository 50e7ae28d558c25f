package config

import (
	"strings"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
)

// Validate checks settings every command needs.
func (c *Config) Validate() error {
	_, err := c.Level()
	return err
}

// RequireReleaseID checks that a usable release identifier is configured.
func (c *Config) RequireReleaseID() error {
	if c.ReleaseID == "" {
		return rperrors.New(rperrors.CodeInvalidConfig, "config",
			"RELEASE_ID is required (or "+DefaultReleaseIDFile+")")
	}
	return artifacts.ValidateReleaseID(c.ReleaseID)
}

// RequireStorage checks that the artifact store is fully configured and
// returns its location. Object stores also need both credentials.
func (c *Config) RequireStorage() (artifacts.Location, error) {
	const op = "config"

	if !c.Artifacts.HasStore() {
		return artifacts.Location{}, rperrors.New(rperrors.CodeInvalidConfig, op, "STATIC_ARTIFACTS_URL is required")
	}
	loc, err := c.Artifacts.Location()
	if err != nil {
		return artifacts.Location{}, err
	}
	if loc.Backend == artifacts.BackendObjectStore {
		missing := c.Artifacts.Credentials.Missing(artifacts.AccessKeyIDVar, artifacts.SecretAccessKeyVar)
		if len(missing) > 0 {
			return artifacts.Location{}, rperrors.Newf(rperrors.CodeInvalidConfig, op,
				"s3 storage requires %s", strings.Join(missing, " and "))
		}
	}
	return loc, nil
}
