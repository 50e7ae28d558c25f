// Package phase runs a resolved release plan: every release command in
// order, then the release-build command, then hands the build output
// directory to the artifact store.
package phase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	"github.com/heroku/buildpacks-release-phase/commands"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/executor"
	"github.com/heroku/buildpacks-release-phase/fs"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
)

// OutputDirName is the release-build output directory, relative to the
// working directory.
const OutputDirName = "static-artifacts"

// OutputDirVar carries the absolute output directory to every command.
const OutputDirVar = "STATIC_ARTIFACTS_DIR"

// ExecutorFactory builds the executor for one command.
type ExecutorFactory func(program string, args ...string) executor.Executor

// Report describes what a run did.
type Report struct {
	// Executed lists the commands that were spawned, in order, including a
	// failing one.
	Executed []commands.Entry

	// Artifact is where the build output was stored, or nil when there was
	// no release-build command or it produced nothing.
	Artifact *artifacts.Location
}

// CommandError is the cause carried by a failed run. It names the failing
// entry and its exit code (-1 when it could not be spawned).
type CommandError struct {
	Kind     commands.Kind
	Entry    commands.Entry
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command %q exited with code %d: %v", e.Kind, e.Entry.String(), e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes release plans.
type Runner struct {
	store       artifacts.Store
	releaseID   string
	workingDir  string
	outputDir   string
	stdout      io.Writer
	stderr      io.Writer
	fs          fs.Filesystem
	newExecutor ExecutorFactory
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore sets the artifact store used for release-build output.
func WithStore(store artifacts.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithReleaseID sets the release identifier artifacts are stored under.
func WithReleaseID(id string) Option {
	return func(r *Runner) {
		r.releaseID = id
	}
}

// WithWorkingDir sets the directory commands run in. Defaults to the
// process working directory.
func WithWorkingDir(dir string) Option {
	return func(r *Runner) {
		r.workingDir = dir
	}
}

// WithOutputDir overrides the release-build output directory. Relative
// paths are resolved against the working directory.
func WithOutputDir(dir string) Option {
	return func(r *Runner) {
		r.outputDir = dir
	}
}

// WithOutput sets where command stdout and stderr are streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithFilesystem sets the filesystem used to inspect the output directory.
func WithFilesystem(fsys fs.Filesystem) Option {
	return func(r *Runner) {
		r.fs = fsys
	}
}

// WithExecutorFactory replaces how commands are spawned.
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(r *Runner) {
		r.newExecutor = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdout: os.Stdout,
		stderr: os.Stderr,
		newExecutor: func(program string, args ...string) executor.Executor {
			return executor.New(program, args...)
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fs == nil {
		r.fs = billy.NewOSFS("/")
	}
	return r
}

// Run executes plan. Release commands run one at a time in order and the
// first failure stops the run; the release-build command runs only when
// every release command succeeded. Configuration needed by the build step
// is validated before anything is spawned.
func (r *Runner) Run(ctx context.Context, plan commands.ReleasePlan) (*Report, error) {
	report := &Report{}

	outputDir, err := r.resolveOutputDir()
	if err != nil {
		return report, err
	}
	if plan.ReleaseBuild != nil {
		if err := r.validateBuild(); err != nil {
			return report, err
		}
	}

	r.logger.Info("release-phase plan", "plan", plan.String())

	for _, entry := range plan.Release {
		report.Executed = append(report.Executed, entry)
		if err := r.execute(ctx, commands.KindRelease, entry, outputDir); err != nil {
			return report, err
		}
	}

	if plan.ReleaseBuild == nil {
		r.logger.Info("release-phase no release-build command")
		return report, nil
	}

	report.Executed = append(report.Executed, *plan.ReleaseBuild)
	if err := r.execute(ctx, commands.KindReleaseBuild, *plan.ReleaseBuild, outputDir); err != nil {
		return report, err
	}

	loc, err := r.save(ctx, outputDir)
	if err != nil {
		return report, err
	}
	report.Artifact = loc
	return report, nil
}

func (r *Runner) resolveOutputDir() (string, error) {
	const op = "release-phase"

	wd := r.workingDir
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			return "", rperrors.Wrap(err, rperrors.CodeInternal, op, "determine working directory")
		}
	}
	wd, err := fs.GetAbs(wd)
	if err != nil {
		return "", rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "resolve working directory")
	}
	r.workingDir = wd

	out := r.outputDir
	if out == "" {
		out = OutputDirName
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(wd, out)
	}
	return filepath.Clean(out), nil
}

func (r *Runner) validateBuild() error {
	const op = "release-build"

	if r.store == nil {
		return rperrors.New(rperrors.CodeInvalidConfig, op, "STATIC_ARTIFACTS_URL is required for release-build")
	}
	if err := artifacts.ValidateReleaseID(r.releaseID); err != nil {
		return rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "release-build needs a release identifier")
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, kind commands.Kind, entry commands.Entry, outputDir string) error {
	r.logger.Info("release-phase executing "+string(kind)+" command",
		"command", entry.Command, "args", entry.Args, "source", entry.Source)

	cmd := r.newExecutor(entry.Command, entry.Args...)
	res, err := cmd.Execute(ctx,
		executor.StreamOnly(r.stdout, r.stderr),
		executor.WithWorkingDir(r.workingDir),
		executor.WithEnvVar(OutputDirVar, outputDir),
		executor.WithLogger(r.logger),
	)
	if err == nil {
		return nil
	}

	code := -1
	if res != nil {
		code = res.ExitCode
	}
	cause := &CommandError{Kind: kind, Entry: entry, ExitCode: code, Err: err}

	errCode := rperrors.CodeExecutionFailed
	if kind == commands.KindReleaseBuild {
		errCode = rperrors.CodeBuildFailed
	}
	if ctx.Err() != nil {
		errCode = rperrors.CodeCanceled
	}

	r.logger.Error("release-phase "+string(kind)+" command failed",
		"command", entry.String(), "exit_code", code, "error", err)
	return rperrors.Wrap(cause, errCode, string(kind), string(kind)+" command failed")
}

func (r *Runner) save(ctx context.Context, outputDir string) (*artifacts.Location, error) {
	const op = "release-build"

	empty, err := fs.IsEmptyDir(r.fs, outputDir)
	if err != nil {
		return nil, rperrors.Wrap(err, rperrors.CodeStorage, op, "inspect "+outputDir)
	}
	if empty {
		r.logger.Info("release-phase release-build produced no static artifacts", "dir", outputDir)
		return nil, nil
	}

	loc, err := r.store.Put(ctx, outputDir, r.releaseID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("release-phase saved static artifacts", "location", loc.String())
	return &loc, nil
}
