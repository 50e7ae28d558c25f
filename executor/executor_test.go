package executor_test

import (
	"bytes"
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heroku/buildpacks-release-phase/executor"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes a test may
// observe while the process is still running.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		opts       []executor.Option
		wantErr    bool
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "stdout",
			script:     "echo hello world",
			wantStdout: "hello world\n",
		},
		{
			name:       "stderr",
			script:     "echo oops >&2",
			wantStderr: "oops\n",
		},
		{
			name:     "non zero exit",
			script:   "echo partial; exit 3",
			wantErr:  true,
			wantCode: 3,

			wantStdout: "partial\n",
		},
		{
			name:       "environment variable",
			script:     `printf %s "$STATIC_ARTIFACTS_DIR"`,
			opts:       []executor.Option{executor.WithEnvVar("STATIC_ARTIFACTS_DIR", "/workspace/static-artifacts")},
			wantStdout: "/workspace/static-artifacts",
		},
		{
			name:       "stdin",
			script:     "cat",
			opts:       []executor.Option{executor.WithStdin(strings.NewReader("from stdin"))},
			wantStdout: "from stdin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.New("sh", "-c", tt.script).Execute(context.Background(), tt.opts...)
			require.NotNil(t, result)
			if tt.wantErr {
				require.Error(t, err)
				assert.Error(t, result.Err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCode, result.ExitCode)
			assert.Equal(t, tt.wantStdout, result.Stdout)
			assert.Equal(t, tt.wantStderr, result.Stderr)
		})
	}
}

func TestExecute_SpawnFailure(t *testing.T) {
	result, err := executor.New("/definitely/not/a/binary").Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, -1, result.ExitCode)

	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, result.Err, fs.ErrNotExist)
}

func TestExecute_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	result, err := executor.New("pwd").Execute(context.Background(), executor.WithWorkingDir(dir))
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExecute_StreamsToWriters(t *testing.T) {
	var stdout, stderr syncBuffer
	result, err := executor.New("sh", "-c", "echo out; echo err >&2; echo out2").
		Execute(context.Background(), executor.StreamOnly(&stdout, &stderr))
	require.NoError(t, err)

	assert.Equal(t, "out\nout2\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
	assert.Empty(t, result.Stdout, "capture disabled")
}

func TestExecute_CombinedOutput(t *testing.T) {
	result, err := executor.New("sh", "-c", "echo a; echo b >&2").
		Execute(context.Background(), executor.WithCapture(false, false, true))
	require.NoError(t, err)
	assert.Contains(t, result.Combined, "a\n")
	assert.Contains(t, result.Combined, "b\n")
}

func TestExecute_LargeOutputDoesNotDeadlock(t *testing.T) {
	// Enough output on both streams to fill pipe buffers several times over.
	script := `i=0; while [ $i -lt 5000 ]; do echo "line $i"; echo "err $i" >&2; i=$((i+1)); done`
	result, err := executor.New("sh", "-c", script).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, strings.Count(result.Stdout, "\n"))
	assert.Equal(t, 5000, strings.Count(result.Stderr, "\n"))
}

func TestExecute_BackgroundProcessDoesNotBlock(t *testing.T) {
	tests := []struct {
		name  string
		opts  []executor.Option
		limit time.Duration
	}{
		{name: "short drain", opts: []executor.Option{executor.WithOutputDrain(100 * time.Millisecond)}, limit: 2 * time.Second},
		{name: "default drain", limit: executor.DefaultOutputDrain + 2*time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			result, err := executor.New("sh", "-c", "sleep 5 & echo started").Execute(context.Background(), tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, 0, result.ExitCode)
			assert.Equal(t, "started\n", result.Stdout)
			assert.Less(t, time.Since(start), tt.limit)
		})
	}
}

func TestExecute_Cancellation(t *testing.T) {
	t.Run("sigterm stops the process group", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		// The background sleep holds stdout open; only a group signal ends it.
		result, err := executor.New("sh", "-c", "sleep 30 & wait").Execute(ctx, executor.WithGracePeriod(5*time.Second))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.NotEqual(t, 0, result.ExitCode)
	})

	t.Run("sigkill after grace period", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		result, err := executor.New("sh", "-c", "trap '' TERM; while :; do sleep 0.1; done").
			Execute(ctx, executor.WithGracePeriod(300*time.Millisecond))
		require.Error(t, err)
		assert.Less(t, time.Since(start), 10*time.Second)
		assert.Equal(t, -1, result.ExitCode)
	})

	t.Run("already cancelled never starts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		marker := filepath.Join(t.TempDir(), "ran")
		result, err := executor.New("touch", marker).Execute(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, -1, result.ExitCode)
		assert.NoFileExists(t, marker)
	})
}

func TestCommandExecutor_String(t *testing.T) {
	assert.Equal(t, "bin/migrate --up", executor.New("bin/migrate", "--up").String())
}
