package commands

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
)

// PlanFileName is the file the resolved plan is written to.
const PlanFileName = "release-commands.toml"

// ProjectSource labels entries declared in project.toml that carry no source.
const ProjectSource = "project.toml"

// projectNamespace is where project.toml keeps release declarations.
var projectNamespace = []string{"com", "heroku", "phase"}

// LoadProject reads the release declarations under [com.heroku.phase] in the
// project descriptor at path. A missing file yields an empty declaration.
func LoadProject(fsys fs.Filesystem, path string) (Declaration, error) {
	const op = "commands.load_project"

	raw, ok, err := readTOML(fsys, path, op)
	if err != nil || !ok {
		return Declaration{}, err
	}

	table := raw
	for _, key := range projectNamespace {
		next, ok := table[key].(map[string]any)
		if !ok {
			return Declaration{}, nil
		}
		table = next
	}

	decl, err := decodeDeclaration(table, op, ProjectSource)
	if err != nil {
		return Declaration{}, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "configuration error in "+filepath.Base(path))
	}
	return decl, nil
}

// LoadInherited reads inherited declarations, one per file, in the order
// given. Each file holds top-level `release` and `release-build` keys.
// Missing files are skipped.
func LoadInherited(fsys fs.Filesystem, paths ...string) ([]Declaration, error) {
	const op = "commands.load_inherited"

	decls := make([]Declaration, 0, len(paths))
	for _, path := range paths {
		raw, ok, err := readTOML(fsys, path, op)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		decl, err := decodeDeclaration(raw, op, filepath.Base(path))
		if err != nil {
			return nil, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "configuration error in "+filepath.Base(path))
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// ReadPlan reads a plan written by WritePlan. A missing file yields an empty plan.
func ReadPlan(fsys fs.Filesystem, path string) (ReleasePlan, error) {
	const op = "commands.read_plan"

	raw, ok, err := readTOML(fsys, path, op)
	if err != nil || !ok {
		return ReleasePlan{}, err
	}
	decl, err := decodeDeclaration(raw, op, "")
	if err != nil {
		return ReleasePlan{}, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "configuration error in "+PlanFileName)
	}
	return ReleasePlan{Release: decl.Release, ReleaseBuild: decl.ReleaseBuild}, nil
}

// WritePlan writes plan as TOML to path.
func WritePlan(fsys fs.Filesystem, path string, plan ReleasePlan) error {
	const op = "commands.write_plan"

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(plan); err != nil {
		return rperrors.Wrap(err, rperrors.CodeInternal, op, "encode plan")
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "create plan directory")
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return rperrors.Wrap(err, rperrors.CodeStorage, op, "write "+PlanFileName)
	}
	return nil
}

func readTOML(fsys fs.Filesystem, path, op string) (map[string]any, bool, error) {
	ok, err := fsys.Exists(path)
	if err != nil {
		return nil, false, rperrors.Wrap(err, rperrors.CodeStorage, op, "stat "+path)
	}
	if !ok {
		return nil, false, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, false, rperrors.Wrap(err, rperrors.CodeStorage, op, "read "+path)
	}

	raw := map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, false, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "parse "+filepath.Base(path))
	}
	return raw, true, nil
}

// decodeDeclaration checks the shape of the release keys in table, decodes
// them and fills empty sources with defaultSource.
func decodeDeclaration(table map[string]any, op, defaultSource string) (Declaration, error) {
	subset := map[string]any{}
	if v, ok := table[string(KindRelease)]; ok {
		if _, isArray := v.([]any); !isArray {
			return Declaration{}, rperrors.New(rperrors.CodeInvalidConfig, op,
				"configuration of `release` must be an array of commands")
		}
		subset[string(KindRelease)] = v
	}
	if v, ok := table[string(KindReleaseBuild)]; ok {
		if _, isTable := v.(map[string]any); !isTable {
			return Declaration{}, rperrors.New(rperrors.CodeInvalidConfig, op,
				"configuration of `release-build` must be a single command")
		}
		subset[string(KindReleaseBuild)] = v
	}

	var decl Declaration
	if len(subset) > 0 {
		data, err := toml.Marshal(subset)
		if err != nil {
			return Declaration{}, fmt.Errorf("re-encode declaration: %w", err)
		}
		if err := toml.Unmarshal(data, &decl); err != nil {
			return Declaration{}, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "decode declaration")
		}
	}

	if defaultSource != "" {
		for i := range decl.Release {
			if decl.Release[i].Source == "" {
				decl.Release[i].Source = defaultSource
			}
		}
		if decl.ReleaseBuild != nil && decl.ReleaseBuild.Source == "" {
			decl.ReleaseBuild.Source = defaultSource
		}
	}

	if err := decl.Validate(); err != nil {
		return Declaration{}, err
	}
	return decl, nil
}
