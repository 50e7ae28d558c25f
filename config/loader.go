package config

import (
	"slices"
	"strings"

	"github.com/spf13/viper"

	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
	"github.com/heroku/buildpacks-release-phase/secrets"
)

// Configuration keys.
const (
	KeyReleaseID       = "release_id"
	KeyURL             = "static_artifacts.url"
	KeyRegion          = "static_artifacts.region"
	KeyEndpoint        = "static_artifacts.endpoint"
	KeyAccessKeyID     = "static_artifacts.access_key_id"
	KeySecretAccessKey = "static_artifacts.secret_access_key"
	KeyLogLevel        = "log_level"
)

// envBindings maps configuration keys to the environment variables that
// provide them, in order of preference.
var envBindings = map[string][]string{
	KeyReleaseID:       {"RELEASE_ID"},
	KeyURL:             {"STATIC_ARTIFACTS_URL"},
	KeyRegion:          {"STATIC_ARTIFACTS_REGION"},
	KeyEndpoint:        {"STATIC_ARTIFACTS_ENDPOINT"},
	KeyAccessKeyID:     {"STATIC_ARTIFACTS_ACCESS_KEY_ID"},
	KeySecretAccessKey: {"STATIC_ARTIFACTS_SECRET_ACCESS_KEY"},
	KeyLogLevel:        {"RELEASE_PHASE_LOG_LEVEL"},
}

// rawConfig is the shape viper decodes into.
type rawConfig struct {
	ReleaseID       string `mapstructure:"release_id"`
	LogLevel        string `mapstructure:"log_level"`
	StaticArtifacts struct {
		URL             string `mapstructure:"url"`
		Region          string `mapstructure:"region"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
	} `mapstructure:"static_artifacts"`
}

// LoadOptions controls Load.
type LoadOptions struct {
	// ReleaseIDFile overrides DefaultReleaseIDFile. Set to "-" to ignore the file.
	ReleaseIDFile string
}

// LoadOption configures Load.
type LoadOption func(*LoadOptions)

// WithReleaseIDFile reads the release identifier from path instead of
// DefaultReleaseIDFile.
func WithReleaseIDFile(path string) LoadOption {
	return func(o *LoadOptions) {
		o.ReleaseIDFile = path
	}
}

// WithoutReleaseIDFile ignores the release identifier file.
func WithoutReleaseIDFile() LoadOption {
	return func(o *LoadOptions) {
		o.ReleaseIDFile = "-"
	}
}

// Load binds the environment to v, reads the release identifier file from
// fsys and returns the resolved configuration. A nil v or fsys uses a fresh
// viper instance and the OS filesystem. Flags bound to v before Load take
// precedence over the environment.
func Load(v *viper.Viper, fsys fs.Filesystem, opts ...LoadOption) (*Config, error) {
	const op = "config.load"

	o := LoadOptions{ReleaseIDFile: DefaultReleaseIDFile}
	for _, opt := range opts {
		opt(&o)
	}
	if v == nil {
		v = viper.New()
	}
	if fsys == nil {
		fsys = billy.NewOSFS("/")
	}

	if err := bindEnvs(v); err != nil {
		return nil, rperrors.Wrap(err, rperrors.CodeInternal, op, "bind environment")
	}
	v.SetDefault(KeyLogLevel, "info")

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "decode configuration")
	}

	releaseID := raw.ReleaseID
	if o.ReleaseIDFile != "-" && o.ReleaseIDFile != "" {
		fromFile, err := readReleaseIDFile(fsys, o.ReleaseIDFile)
		if err != nil {
			return nil, err
		}
		if fromFile != "" {
			releaseID = fromFile
		}
	}

	a := raw.StaticArtifacts
	cfg := &Config{
		ReleaseID: releaseID,
		LogLevel:  strings.TrimSpace(raw.LogLevel),
		Artifacts: ArtifactsConfig{
			URL:      strings.TrimSpace(a.URL),
			Region:   strings.TrimSpace(a.Region),
			Endpoint: strings.TrimSpace(a.Endpoint),
			Credentials: secrets.Credentials{
				AccessKeyID:     secrets.New(a.AccessKeyID),
				SecretAccessKey: secrets.New(a.SecretAccessKey),
			},
		},
	}
	return cfg, nil
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)
		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}
	return nil
}

// readReleaseIDFile returns the trimmed content of path, or "" when the
// file does not exist.
func readReleaseIDFile(fsys fs.Filesystem, path string) (string, error) {
	const op = "config.release_id_file"

	ok, err := fsys.Exists(path)
	if err != nil {
		return "", rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "stat "+path)
	}
	if !ok {
		return "", nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return "", rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "read "+path)
	}
	return strings.TrimSpace(string(data)), nil
}
