// Package commands models release command declarations and resolves the
// declarations of every contributor into one ordered ReleasePlan.
package commands

import (
	"fmt"
	"strings"

	rperrors "github.com/heroku/buildpacks-release-phase/errors"
)

// Kind tags a declared entry as a release command or the release-build command.
type Kind string

const (
	KindRelease      Kind = "release"
	KindReleaseBuild Kind = "release-build"
)

// Entry is one command: a program, its arguments and where it was declared.
type Entry struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args,omitempty"`
	Source  string   `toml:"source,omitempty"`
}

// String renders the entry as "command args (source)".
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Command)
	if len(e.Args) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(e.Args, " "))
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " (%s)", e.Source)
	}
	return b.String()
}

// Declared is an entry tagged with its kind.
type Declared struct {
	Kind  Kind
	Entry Entry
}

// Declaration is what a single contributor declares, as decoded from TOML.
type Declaration struct {
	Release      []Entry `toml:"release,omitempty"`
	ReleaseBuild *Entry  `toml:"release-build,omitempty"`
}

// Validate rejects entries without a command.
func (d Declaration) Validate() error {
	for i, e := range d.Release {
		if strings.TrimSpace(e.Command) == "" {
			return rperrors.Newf(rperrors.CodeInvalidConfig, "commands.validate",
				"release command %d%s has no command", i+1, sourceSuffix(e.Source))
		}
	}
	if d.ReleaseBuild != nil && strings.TrimSpace(d.ReleaseBuild.Command) == "" {
		return rperrors.Newf(rperrors.CodeInvalidConfig, "commands.validate",
			"release-build command%s has no command", sourceSuffix(d.ReleaseBuild.Source))
	}
	return nil
}

func sourceSuffix(source string) string {
	if source == "" {
		return ""
	}
	return " from " + source
}

// Flatten converts declarations into a tagged list, keeping contributor
// order and, within a contributor, release entries before its release-build.
func Flatten(decls ...Declaration) []Declared {
	var out []Declared
	for _, d := range decls {
		for _, e := range d.Release {
			out = append(out, Declared{Kind: KindRelease, Entry: e})
		}
		if d.ReleaseBuild != nil {
			out = append(out, Declared{Kind: KindReleaseBuild, Entry: *d.ReleaseBuild})
		}
	}
	return out
}

// ReleasePlan is the resolved, ordered set of commands for one release.
type ReleasePlan struct {
	Release      []Entry `toml:"release,omitempty"`
	ReleaseBuild *Entry  `toml:"release-build,omitempty"`
}

// IsEmpty reports whether the plan has nothing to run.
func (p ReleasePlan) IsEmpty() bool {
	return len(p.Release) == 0 && p.ReleaseBuild == nil
}

// String renders the plan the way it is logged before execution.
func (p ReleasePlan) String() string {
	var b strings.Builder
	b.WriteString("commands:\n  release-build: ")
	if p.ReleaseBuild != nil {
		b.WriteString(p.ReleaseBuild.String())
	} else {
		b.WriteString("None")
	}
	b.WriteString("\n  release:")
	if len(p.Release) == 0 {
		b.WriteString(" None")
	}
	for _, e := range p.Release {
		b.WriteString("\n    ")
		b.WriteString(e.String())
	}
	return b.String()
}

// Resolve merges inherited and local entries into a plan.
//
// Release entries are the inherited ones in the order received followed by
// the local ones in declared order, with no reordering or de-duplication.
// A local release-build wins outright; otherwise the last inherited one
// does. Resolve is pure and never fails.
func Resolve(inherited, local []Declared) ReleasePlan {
	var plan ReleasePlan

	for _, d := range inherited {
		switch d.Kind {
		case KindRelease:
			plan.Release = append(plan.Release, d.Entry)
		case KindReleaseBuild:
			e := d.Entry
			plan.ReleaseBuild = &e
		}
	}

	var localBuild *Entry
	for _, d := range local {
		switch d.Kind {
		case KindRelease:
			plan.Release = append(plan.Release, d.Entry)
		case KindReleaseBuild:
			e := d.Entry
			localBuild = &e
		}
	}
	if localBuild != nil {
		plan.ReleaseBuild = localBuild
	}

	return plan
}
