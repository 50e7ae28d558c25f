// Package executor runs external commands with live output streaming, exit
// code capture and cancellation that reaches the whole process group.
//
// Stdout and stderr are drained concurrently while the process runs and
// forwarded to the configured writers as they arrive. When the context is
// cancelled the process group receives SIGTERM and, if it is still alive
// after the grace period, SIGKILL. Execute returns once the process exits;
// output from background processes it leaves behind is read for at most
// the output drain period.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultOutputDrain is how long Execute keeps reading output after the
// process exits while a background process still holds the pipes open.
const DefaultOutputDrain = time.Second

// DefaultGracePeriod is how long a cancelled process group has between
// SIGTERM and SIGKILL.
const DefaultGracePeriod = 10 * time.Second

// Result holds the output and outcome of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	// ExitCode is the process exit status, or -1 if the process could not be
	// started or was terminated by a signal.
	ExitCode int
	Err      error
}

// Executor defines the interface for command execution.
type Executor interface {
	// Execute runs a command with the given options.
	Execute(ctx context.Context, opts ...Option) (*Result, error)
}

// CommandExecutor implements the Executor interface for one program and its arguments.
type CommandExecutor struct {
	program string
	args    []string
	options *Options
}

var _ Executor = (*CommandExecutor)(nil)

// Options configures command execution behavior.
type Options struct {
	// Output handling
	CaptureStdout   bool
	CaptureStderr   bool
	CaptureCombined bool

	// Working directory
	WorkingDir string

	// Environment variables added on top of the parent environment
	Env map[string]string

	// Live stdout/stderr destinations
	StdoutWriter io.Writer
	StderrWriter io.Writer

	// Stdin, if set, is connected to the process
	Stdin io.Reader

	// GracePeriod between SIGTERM and SIGKILL on cancellation
	GracePeriod time.Duration

	// OutputDrain bounds reading output after the process has exited
	OutputDrain time.Duration

	Logger *slog.Logger
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns default execution options.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		Env:           make(map[string]string),
		GracePeriod:   DefaultGracePeriod,
		OutputDrain:   DefaultOutputDrain,
		Logger:        slog.New(slog.DiscardHandler),
	}
}

// New creates a new CommandExecutor.
func New(program string, args ...string) *CommandExecutor {
	return &CommandExecutor{
		program: program,
		args:    args,
		options: DefaultOptions(),
	}
}

// String renders the command line for logs.
func (c *CommandExecutor) String() string {
	return strings.Join(append([]string{c.program}, c.args...), " ")
}

// Execute runs the command once. A non-nil error is returned when the
// process cannot be started, exits non-zero, or is cancelled; the Result is
// populated in every case.
func (c *CommandExecutor) Execute(ctx context.Context, opts ...Option) (*Result, error) {
	options := c.mergeOptions(opts...)

	cmd := exec.Command(c.program, c.args...)
	c.setupCommand(cmd, options)
	setProcessGroup(cmd)

	sinks := newOutputSinks(options)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return sinks.result(err, -1), fmt.Errorf("command setup failed: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return sinks.result(err, -1), fmt.Errorf("command setup failed: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := ctx.Err(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return sinks.result(err, -1), fmt.Errorf("command not started: %w", err)
	}
	err = cmd.Start()
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)
	if err != nil {
		closeAll(stdoutR, stderrR)
		return sinks.result(err, -1), fmt.Errorf("command start failed: %w", err)
	}
	options.Logger.Debug("executor started process", "command", c.String(), "pid", cmd.Process.Pid)

	exited := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			options.Logger.Debug("executor terminating process group", "pid", cmd.Process.Pid, "grace", options.GracePeriod)
			terminate(cmd, options.GracePeriod, exited)
		case <-exited:
		}
	}()

	var g errgroup.Group
	g.Go(func() error { return drain(sinks.stdout, stdoutR) })
	g.Go(func() error { return drain(sinks.stderr, stderrR) })
	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()

	waitErr := cmd.Wait()
	close(exited)
	<-watcherDone

	copyErr := awaitOutput(drained, options.OutputDrain, func() {
		options.Logger.Warn("executor abandoning output still held open by a background process",
			"command", c.String(), "drain", options.OutputDrain)
		closeAll(stdoutR, stderrR)
	})
	closeAll(stdoutR, stderrR)

	err = waitErr
	if err == nil && copyErr != nil {
		err = copyErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		err = errors.Join(ctxErr, err)
	}

	result := sinks.result(err, exitCode(waitErr))
	if err != nil {
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}

// setupCommand configures the exec.Cmd with working directory, environment and input.
func (c *CommandExecutor) setupCommand(cmd *exec.Cmd, options *Options) {
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	if len(options.Env) > 0 {
		keys := make([]string, 0, len(options.Env))
		for k := range options.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+options.Env[k])
		}
	}

	if options.Stdin != nil {
		cmd.Stdin = options.Stdin
	}
}

func (c *CommandExecutor) mergeOptions(opts ...Option) *Options {
	merged := *c.options
	merged.Env = make(map[string]string, len(c.options.Env))
	for k, v := range c.options.Env {
		merged.Env[k] = v
	}

	for _, opt := range opts {
		opt(&merged)
	}

	if merged.Logger == nil {
		merged.Logger = slog.New(slog.DiscardHandler)
	}
	if merged.GracePeriod <= 0 {
		merged.GracePeriod = DefaultGracePeriod
	}
	if merged.OutputDrain <= 0 {
		merged.OutputDrain = DefaultOutputDrain
	}
	return &merged
}

// awaitOutput waits for the drainers to reach EOF. Once the direct child has
// exited, background processes it left behind may keep the pipes open; after
// timeout abandon is called to close the read ends and the drainers' errors
// are discarded.
func awaitOutput(drained <-chan error, timeout time.Duration, abandon func()) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-drained:
		return err
	case <-timer.C:
		abandon()
		<-drained
		return nil
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// drain copies r to w until EOF. Write errors stop forwarding but the pipe
// is still drained so the child never blocks on a full pipe.
func drain(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, r)
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// outputSinks fans each stream out to its capture buffers and live writers.
// All writes share one lock because the two drainers run concurrently and
// may target the same buffer or writer.
type outputSinks struct {
	mu       sync.Mutex
	stdoutB  bytes.Buffer
	stderrB  bytes.Buffer
	combined bytes.Buffer
	stdout   io.Writer
	stderr   io.Writer
}

func newOutputSinks(options *Options) *outputSinks {
	s := &outputSinks{}

	var outs, errs []io.Writer
	if options.CaptureStdout {
		outs = append(outs, &s.stdoutB)
	}
	if options.CaptureStderr {
		errs = append(errs, &s.stderrB)
	}
	if options.CaptureCombined {
		outs = append(outs, &s.combined)
		errs = append(errs, &s.combined)
	}
	if options.StdoutWriter != nil {
		outs = append(outs, options.StdoutWriter)
	}
	if options.StderrWriter != nil {
		errs = append(errs, options.StderrWriter)
	}

	s.stdout = &lockedWriter{mu: &s.mu, w: io.MultiWriter(outs...)}
	s.stderr = &lockedWriter{mu: &s.mu, w: io.MultiWriter(errs...)}
	return s
}

func (s *outputSinks) result(err error, code int) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Result{
		Stdout:   s.stdoutB.String(),
		Stderr:   s.stderrB.String(),
		Combined: s.combined.String(),
		ExitCode: code,
		Err:      err,
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Option functions for fluent configuration

// WithCapture configures output capture.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithStdoutWriter streams stdout to w as it is produced.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter streams stderr to w as it is produced.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// WithStdin connects r to the process's standard input.
func WithStdin(r io.Reader) Option {
	return func(o *Options) {
		o.Stdin = r
	}
}

// WithGracePeriod sets the delay between SIGTERM and SIGKILL on cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		o.GracePeriod = d
	}
}

// WithOutputDrain bounds how long output is still read after the process
// exits. Background processes that outlive it lose their pipes.
func WithOutputDrain(d time.Duration) Option {
	return func(o *Options) {
		o.OutputDrain = d
	}
}

// WithLogger sets the logger for process lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// StreamOnly forwards output to the given writers without capturing it.
func StreamOnly(stdout, stderr io.Writer) Option {
	return func(o *Options) {
		o.CaptureStdout = false
		o.CaptureStderr = false
		o.CaptureCombined = false
		o.StdoutWriter = stdout
		o.StderrWriter = stderr
	}
}
