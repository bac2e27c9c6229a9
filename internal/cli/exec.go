package cli

import (
	"fmt"

	"github.com/rtbox/rtbox/internal/runner"
	"github.com/spf13/cobra"
)

// execFlags are shared by run and build
type execFlags struct {
	libPaths   []string
	env        []string
	cwd        string
	cleanEnv   bool
	replace    bool
	fromRootfs bool
}

func newRunCmd(app *App) *cobra.Command {
	cmd := newExecCmd(app, "run", "Run a command with a specific glibc version", `Run a command with the glibc of a Debian release.

DISTRO is the distribution name (e.g. bookworm) or version (e.g. 12).
COMMAND is the command and arguments to run. The rootfs is downloaded
first if it is not installed yet.

Examples:
  rtbox run bookworm ./myapp --arg1 --arg2
  rtbox run bookworm -L /opt/mylibs ./myapp
  rtbox run bookworm -e LD_DEBUG=libs ./myapp`)
	return cmd
}

func newBuildCmd(app *App) *cobra.Command {
	cmd := newExecCmd(app, "build", "Run a build command with a specific glibc version", `Run a build command with the glibc of a Debian release.

This behaves exactly like run.

Examples:
  rtbox build bookworm make -j4
  rtbox build bookworm cmake --build build/
  rtbox build trixie cargo build --release`)
	return cmd
}

func newExecCmd(app *App, use, short, long string) *cobra.Command {
	var flags execFlags

	cmd := &cobra.Command{
		Use:   use + " [flags] <distro> <command> [args...]",
		Short: short,
		Long:  long,
		Args:  usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runner.ParseEnv(flags.env); err != nil {
				return err
			}
			distro, err := app.lookup(args[0])
			if err != nil {
				return err
			}
			s, err := app.store()
			if err != nil {
				return err
			}

			if use == "build" {
				fmt.Fprintln(cmd.ErrOrStderr(), SubtitleStyle.Render(
					fmt.Sprintf("Building with glibc %s from %s...", distro.GlibcVersion, distro.Name)))
			}

			r := runner.New(s, app.spawner(flags.replace), runner.WithEnviron(app.deps.Environ))
			code, err := r.Run(cmd.Context(), distro, args[1:], runner.Options{
				ExtraLibDirs: flags.libPaths,
				Env:          flags.env,
				CleanEnv:     flags.cleanEnv,
				FromRootfs:   flags.fromRootfs,
				Dir:          flags.cwd,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	// Everything after the distro belongs to the command.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringArrayVarP(&flags.libPaths, "lib-path", "L", nil, "Additional library directory (repeatable)")
	cmd.Flags().StringArrayVarP(&flags.env, "env", "e", nil, "Set an environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVarP(&flags.cwd, "cwd", "C", "", "Working directory for the command")
	cmd.Flags().BoolVar(&flags.cleanEnv, "clean-env", false, "Pass only a minimal set of host environment variables")
	cmd.Flags().BoolVar(&flags.replace, "exec", false, "Replace the rtbox process instead of waiting for the command")
	cmd.Flags().BoolVar(&flags.fromRootfs, "from-rootfs", false, "Run absolute command paths from inside the rootfs")
	return cmd
}
