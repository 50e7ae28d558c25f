// Package config reads release phase configuration from the environment and
// the release identifier file.
//
// Configuration is read once at process start and passed explicitly to the
// components that need it.
package config

import (
	"log/slog"
	"strings"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/secrets"
)

// DefaultReleaseIDFile takes precedence over RELEASE_ID when it holds a
// non-empty value.
const DefaultReleaseIDFile = "/etc/heroku/release_id"

// Config is the resolved release phase configuration.
//
// WARNING: Credentials must not be logged other than through their
// redacting LogValue.
type Config struct {
	ReleaseID string
	Artifacts ArtifactsConfig
	LogLevel  string
}

// ArtifactsConfig locates and authenticates the artifact store.
type ArtifactsConfig struct {
	URL         string
	Region      string
	Endpoint    string
	Credentials secrets.Credentials
}

// Location parses the configured store URL.
func (a ArtifactsConfig) Location() (artifacts.Location, error) {
	return artifacts.ParseLocation(a.URL, a.Region, a.Endpoint)
}

// HasStore reports whether a store URL is configured.
func (a ArtifactsConfig) HasStore() bool {
	return strings.TrimSpace(a.URL) != ""
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, rperrors.Wrap(err, rperrors.CodeInvalidConfig, "config",
			"RELEASE_PHASE_LOG_LEVEL must be one of debug, info, warn or error")
	}
	return level, nil
}

// LogValue keeps credentials redacted in structured logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("release_id", c.ReleaseID),
		slog.String("url", c.Artifacts.URL),
		slog.String("region", c.Artifacts.Region),
		slog.String("endpoint", c.Artifacts.Endpoint),
		slog.Any("credentials", c.Artifacts.Credentials),
		slog.String("log_level", c.LogLevel),
	)
}
