package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heroku/buildpacks-release-phase/artifacts"
	"github.com/heroku/buildpacks-release-phase/commands"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
	"github.com/heroku/buildpacks-release-phase/fs"
	"github.com/heroku/buildpacks-release-phase/phase"
	"github.com/heroku/buildpacks-release-phase/retrieval"
)

func (a *App) newPlanCmd() *cobra.Command {
	var (
		project   string
		inherited []string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve release commands into " + commands.PlanFileName,
		Long: `Merges the release commands inherited from buildpacks (in the order given)
with those declared under [com.heroku.phase] in project.toml and writes the
resolved plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := absPaths(append([]string{project, output}, inherited...)...)
			if err != nil {
				return err
			}
			projectPath, outputPath, inheritedPaths := paths[0], paths[1], paths[2:]

			decls, err := commands.LoadInherited(a.fs, inheritedPaths...)
			if err != nil {
				return err
			}
			local, err := commands.LoadProject(a.fs, projectPath)
			if err != nil {
				return err
			}

			plan := commands.Resolve(commands.Flatten(decls...), commands.Flatten(local))
			if err := commands.WritePlan(a.fs, outputPath, plan); err != nil {
				return err
			}
			a.logger.Info("release-phase wrote plan", "path", outputPath)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), plan.String())
			return err
		},
	}
	cmd.Flags().StringVar(&project, "project", "project.toml", "project descriptor")
	cmd.Flags().StringSliceVar(&inherited, "inherited", nil, "inherited declaration files, in precedence order")
	cmd.Flags().StringVarP(&output, "output", "o", commands.PlanFileName, "where to write the plan")
	return cmd
}

func (a *App) newExecCmd() *cobra.Command {
	var (
		planPath   string
		workingDir string
		outputDir  string
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run the release commands in " + commands.PlanFileName,
		Long: `Runs every release command in order, stopping at the first failure, then
the release-build command. A non-empty release-build output directory is
archived and saved to STATIC_ARTIFACTS_URL under RELEASE_ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := absPaths(planPath)
			if err != nil {
				return err
			}
			plan, err := commands.ReadPlan(a.fs, paths[0])
			if err != nil {
				return err
			}

			opts := []phase.Option{
				phase.WithWorkingDir(workingDir),
				phase.WithOutputDir(outputDir),
				phase.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
				phase.WithFilesystem(a.fs),
				phase.WithLogger(a.logger),
			}
			if plan.ReleaseBuild != nil {
				if err := a.cfg.RequireReleaseID(); err != nil {
					return err
				}
				store, err := a.store(cmd.Context())
				if err != nil {
					return err
				}
				opts = append(opts, phase.WithStore(store), phase.WithReleaseID(a.cfg.ReleaseID))
			}

			report, err := phase.New(opts...).Run(cmd.Context(), plan)
			if err != nil {
				return err
			}
			if report.Artifact != nil {
				a.logger.Info("release-phase complete", "commands", len(report.Executed), "artifact", report.Artifact.String())
			} else {
				a.logger.Info("release-phase complete", "commands", len(report.Executed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", commands.PlanFileName, "resolved plan to run")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "directory commands run in (default: current directory)")
	cmd.Flags().StringVar(&outputDir, "output-dir", phase.OutputDirName, "release-build output directory")
	return cmd
}

func (a *App) newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <dir>",
		Short: "Archive a directory and save it under RELEASE_ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireReleaseID(); err != nil {
				return err
			}
			paths, err := absPaths(args[0])
			if err != nil {
				return err
			}
			store, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := store.Put(cmd.Context(), paths[0], a.cfg.ReleaseID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), loc.String())
			return err
		},
	}
}

func (a *App) newLoadCmd() *cobra.Command {
	var (
		dir   string
		execD bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Unpack the artifact for RELEASE_ID into the serving directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireReleaseID(); err != nil {
				return err
			}
			store, err := a.store(cmd.Context())
			if err != nil {
				return err
			}

			paths, err := absPaths(dir)
			if err != nil {
				return err
			}

			opts := []retrieval.Option{retrieval.WithDir(paths[0]), retrieval.WithLogger(a.logger)}
			if execD {
				w := a.execD
				if w == nil {
					f := os.NewFile(3, "exec.d")
					defer func() { _ = f.Close() }()
					w = f
				}
				opts = append(opts, retrieval.WithExecDOutput(w))
			}

			_, err = retrieval.New(store, a.cfg.ReleaseID, opts...).Load(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", retrieval.DefaultDir, "directory to unpack into")
	cmd.Flags().BoolVar(&execD, "exec-d", false, "write "+retrieval.LoadedFromKeyVar+" as exec.d TOML to file descriptor 3")
	return cmd
}

func (a *App) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored release artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tRELEASE\tSIZE\tMODIFIED")
			for _, art := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", art.Name, art.ReleaseID, art.Size, art.ModTime.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return tw.Flush()
		},
	}
}

func (a *App) newGCCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete all but the most recent release artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			deleted, err := artifacts.GC(cmd.Context(), store, keep)
			for _, art := range deleted {
				a.logger.Info("gc-release-artifacts deleted", "name", art.Name)
				fmt.Fprintln(cmd.OutOrStdout(), art.Name)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&keep, "keep", artifacts.DefaultKeep, "number of most recent artifacts to keep")
	return cmd
}

// absPaths resolves paths against the working directory. The filesystem
// adapters are rooted at "/" and only take absolute paths.
func absPaths(paths ...string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := fs.GetAbs(p)
		if err != nil {
			return nil, rperrors.Wrap(err, rperrors.CodeInvalidInput, "cli", "resolve "+p)
		}
		out[i] = abs
	}
	return out, nil
}
