package phase

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	"github.com/heroku/buildpacks-release-phase/commands"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/executor"
	"github.com/heroku/buildpacks-release-phase/fs/billy"
)

// fakeSpawner records spawned programs and exits with the code configured
// for each program (0 when unset).
type fakeSpawner struct {
	mu      sync.Mutex
	codes   map[string]int
	spawned []string
	env     []map[string]string
	onRun   map[string]func()
}

func (f *fakeSpawner) factory(program string, args ...string) executor.Executor {
	return &fakeExecutor{spawner: f, program: program}
}

type fakeExecutor struct {
	spawner *fakeSpawner
	program string
}

func (e *fakeExecutor) Execute(_ context.Context, opts ...executor.Option) (*executor.Result, error) {
	o := executor.DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	f := e.spawner
	f.mu.Lock()
	f.spawned = append(f.spawned, e.program)
	f.env = append(f.env, o.Env)
	code := f.codes[e.program]
	hook := f.onRun[e.program]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if code != 0 {
		err := fmt.Errorf("command execution failed: exit status %d", code)
		return &executor.Result{ExitCode: code, Err: err}, err
	}
	return &executor.Result{}, nil
}

// recordingStore records Put calls.
type recordingStore struct {
	artifacts.Store
	puts []string
}

func (s *recordingStore) Put(_ context.Context, sourceDir, releaseID string) (artifacts.Location, error) {
	s.puts = append(s.puts, sourceDir+"@"+releaseID)
	name, err := artifacts.ArchiveName(releaseID)
	if err != nil {
		return artifacts.Location{}, err
	}
	return artifacts.Location{Backend: artifacts.BackendFilesystem, Path: "/store"}.WithName(name), nil
}

func entry(cmd string) commands.Entry {
	return commands.Entry{Command: cmd, Source: "project.toml"}
}

func TestRunner_Run(t *testing.T) {
	tests := []struct {
		name         string
		plan         commands.ReleasePlan
		codes        map[string]int
		buildOutput  bool
		noStore      bool
		releaseID    string
		wantSpawned  []string
		wantPuts     []string
		wantCode     rperrors.ErrorCode
		wantExitCode int
		wantArtifact bool
	}{
		{
			name:        "release commands run in order",
			plan:        commands.ReleasePlan{Release: []commands.Entry{entry("one"), entry("two"), entry("three")}},
			wantSpawned: []string{"one", "two", "three"},
		},
		{
			name: "first failure stops the run",
			plan: commands.ReleasePlan{
				Release:      []commands.Entry{entry("ok"), entry("fail"), entry("never")},
				ReleaseBuild: &commands.Entry{Command: "build"},
			},
			codes:        map[string]int{"fail": 7},
			buildOutput:  true,
			releaseID:    "rel-42",
			wantSpawned:  []string{"ok", "fail"},
			wantCode:     rperrors.CodeExecutionFailed,
			wantExitCode: 7,
		},
		{
			name: "release-build output is stored",
			plan: commands.ReleasePlan{
				Release:      []commands.Entry{entry("migrate")},
				ReleaseBuild: &commands.Entry{Command: "build"},
			},
			buildOutput:  true,
			releaseID:    "rel-42",
			wantSpawned:  []string{"migrate", "build"},
			wantPuts:     []string{"/app/static-artifacts@rel-42"},
			wantArtifact: true,
		},
		{
			name:        "empty release-build output is a no-op",
			plan:        commands.ReleasePlan{ReleaseBuild: &commands.Entry{Command: "build"}},
			releaseID:   "rel-42",
			wantSpawned: []string{"build"},
		},
		{
			name:         "release-build failure",
			plan:         commands.ReleasePlan{ReleaseBuild: &commands.Entry{Command: "build"}},
			codes:        map[string]int{"build": 2},
			buildOutput:  true,
			releaseID:    "rel-42",
			wantSpawned:  []string{"build"},
			wantCode:     rperrors.CodeBuildFailed,
			wantExitCode: 2,
		},
		{
			name:        "no release-build means no upload",
			plan:        commands.ReleasePlan{Release: []commands.Entry{entry("migrate")}},
			buildOutput: true,
			wantSpawned: []string{"migrate"},
		},
		{
			name: "missing store fails before any command",
			plan: commands.ReleasePlan{
				Release:      []commands.Entry{entry("migrate")},
				ReleaseBuild: &commands.Entry{Command: "build"},
			},
			noStore:   true,
			releaseID: "rel-42",
			wantCode:  rperrors.CodeInvalidConfig,
		},
		{
			name: "missing release id fails before any command",
			plan: commands.ReleasePlan{
				Release:      []commands.Entry{entry("migrate")},
				ReleaseBuild: &commands.Entry{Command: "build"},
			},
			wantCode: rperrors.CodeInvalidConfig,
		},
		{
			name: "empty plan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := billy.NewInMemoryFS()
			spawner := &fakeSpawner{codes: tt.codes}
			if tt.buildOutput {
				spawner.onRun = map[string]func(){
					"build": func() {
						_ = fsys.MkdirAll("/app/static-artifacts", 0o755)
						_ = fsys.WriteFile("/app/static-artifacts/index.html", []byte("hi"), 0o644)
					},
				}
			}
			store := &recordingStore{}

			opts := []Option{
				WithFilesystem(fsys),
				WithWorkingDir("/app"),
				WithReleaseID(tt.releaseID),
				WithExecutorFactory(spawner.factory),
				WithOutput(&bytes.Buffer{}, &bytes.Buffer{}),
			}
			if !tt.noStore {
				opts = append(opts, WithStore(store))
			}

			report, err := New(opts...).Run(context.Background(), tt.plan)
			require.NotNil(t, report)
			assert.Equal(t, tt.wantSpawned, spawner.spawned)
			assert.Equal(t, tt.wantPuts, store.puts)
			assert.Len(t, report.Executed, len(tt.wantSpawned))

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, rperrors.CodeOf(err))
				if tt.wantExitCode != 0 {
					var cmdErr *CommandError
					require.ErrorAs(t, err, &cmdErr)
					assert.Equal(t, tt.wantExitCode, cmdErr.ExitCode)
					assert.Equal(t, tt.wantSpawned[len(tt.wantSpawned)-1], cmdErr.Entry.Command)
				}
				assert.Nil(t, report.Artifact)
				return
			}

			require.NoError(t, err)
			if tt.wantArtifact {
				require.NotNil(t, report.Artifact)
				assert.Equal(t, "release-rel-42.tgz", report.Artifact.Key)
			} else {
				assert.Nil(t, report.Artifact)
			}
		})
	}
}

func TestRunner_ExportsOutputDir(t *testing.T) {
	spawner := &fakeSpawner{}
	_, err := New(
		WithFilesystem(billy.NewInMemoryFS()),
		WithWorkingDir("/app"),
		WithOutputDir("build/out"),
		WithExecutorFactory(spawner.factory),
	).Run(context.Background(), commands.ReleasePlan{Release: []commands.Entry{entry("a"), entry("b")}})
	require.NoError(t, err)

	require.Len(t, spawner.env, 2)
	for _, env := range spawner.env {
		assert.Equal(t, "/app/build/out", env[OutputDirVar])
	}
}

func TestRunner_RealProcesses(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	storeDir := t.TempDir()
	serveDir := t.TempDir()
	osfs := billy.NewOSFS("/")

	loc, err := artifacts.ParseLocation("file://"+storeDir, "", "")
	require.NoError(t, err)
	store, err := artifacts.New(ctx, loc, artifacts.WithFilesystem(osfs))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	runner := New(
		WithStore(store),
		WithReleaseID("rel-42"),
		WithWorkingDir(work),
		WithFilesystem(osfs),
		WithOutput(&stdout, &stderr),
	)

	plan := commands.ReleasePlan{
		Release: []commands.Entry{
			{Command: "sh", Args: []string{"-c", "echo migrating; echo warn >&2"}},
		},
		ReleaseBuild: &commands.Entry{
			Command: "sh",
			Args:    []string{"-c", `mkdir -p "$STATIC_ARTIFACTS_DIR/css" && printf hello > "$STATIC_ARTIFACTS_DIR/css/site.css"`},
		},
	}

	report, err := runner.Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, "migrating\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())
	require.NotNil(t, report.Artifact)
	assert.FileExists(t, filepath.Join(storeDir, "release-rel-42.tgz"))

	_, err = store.Get(ctx, "rel-42", serveDir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(serveDir, "css", "site.css"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRunner_SpawnFailureStopsRun(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "never")
	plan := commands.ReleasePlan{
		Release: []commands.Entry{
			{Command: "/definitely/not/a/program"},
			{Command: "touch", Args: []string{marker}},
		},
	}

	report, err := New(WithWorkingDir(t.TempDir()), WithOutput(&bytes.Buffer{}, &bytes.Buffer{})).
		Run(context.Background(), plan)
	require.Error(t, err)
	assert.Equal(t, rperrors.CodeExecutionFailed, rperrors.CodeOf(err))

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, -1, cmdErr.ExitCode)
	assert.Len(t, report.Executed, 1)
	assert.NoFileExists(t, marker)
}
