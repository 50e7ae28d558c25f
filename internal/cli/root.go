// Package cli implements the release-phase command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	"github.com/heroku/buildpacks-release-phase/config"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// App holds what every subcommand shares.
type App struct {
	v      *viper.Viper
	fs     fs.Filesystem
	stdout io.Writer
	stderr io.Writer
	execD  io.Writer

	storeOpts []artifacts.Option

	releaseIDFile string
	cfg           *config.Config
	logger        *slog.Logger
}

// Option configures an App.
type Option func(*App)

// WithOutput sets the writers for command output and logs.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithFilesystem sets the filesystem used by every subcommand.
func WithFilesystem(fsys fs.Filesystem) Option {
	return func(a *App) {
		a.fs = fsys
	}
}

// WithExecDWriter sets where `load --exec-d` writes. Defaults to file
// descriptor 3.
func WithExecDWriter(w io.Writer) Option {
	return func(a *App) {
		a.execD = w
	}
}

// WithStoreOptions passes extra options to the artifact store.
func WithStoreOptions(opts ...artifacts.Option) Option {
	return func(a *App) {
		a.storeOpts = append(a.storeOpts, opts...)
	}
}

func newApp(opts ...Option) *App {
	a := &App{
		v:      viper.New(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fs == nil {
		a.fs = billy.NewOSFS("/")
	}
	return a
}

// NewRootCommand builds the release-phase command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := newApp(opts...)

	root := &cobra.Command{
		Use:   "release-phase",
		Short: "Run release commands and manage static release artifacts",
		Long: `release-phase resolves release commands declared by buildpacks and project.toml,
runs them in order, and stores the release-build output as an archive keyed
by the release identifier for retrieval when the application starts.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (env RELEASE_PHASE_LOG_LEVEL)")
	_ = a.v.BindPFlag(config.KeyLogLevel, root.PersistentFlags().Lookup("log-level"))
	root.PersistentFlags().StringVar(&a.releaseIDFile, "release-id-file", config.DefaultReleaseIDFile,
		"file whose content overrides RELEASE_ID")

	root.AddCommand(
		a.newPlanCmd(),
		a.newExecCmd(),
		a.newSaveCmd(),
		a.newLoadCmd(),
		a.newListCmd(),
		a.newGCCmd(),
	)
	return root
}

// setup loads configuration and builds the logger once per invocation.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.fs, config.WithReleaseIDFile(a.releaseIDFile))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	a.logger.Debug("release-phase configuration", "command", cmd.Name(), "config", cfg)
	return nil
}

// store builds the configured artifact store.
//
//nolint:ireturn // subcommands depend on the Store abstraction only.
func (a *App) store(ctx context.Context) (artifacts.Store, error) {
	loc, err := a.cfg.RequireStorage()
	if err != nil {
		return nil, err
	}
	opts := append([]artifacts.Option{
		artifacts.WithFilesystem(a.fs),
		artifacts.WithLogger(a.logger),
		artifacts.WithCredentials(a.cfg.Artifacts.Credentials),
	}, a.storeOpts...)
	return artifacts.New(ctx, loc, opts...)
}

// Execute runs the command line with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts ...Option) int {
	root := NewRootCommand(opts...)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "release-phase: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error onto the process exit status: configuration errors
// exit 2, everything else that failed exits 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case rperrors.CodeOf(err).IsConfiguration():
		return ExitConfigError
	default:
		return ExitFailure
	}
}
