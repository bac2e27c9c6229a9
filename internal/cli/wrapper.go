package cli

import (
	"fmt"

	"github.com/rtbox/rtbox/internal/linker"
	"github.com/rtbox/rtbox/internal/shellwrap"
	"github.com/rtbox/rtbox/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newShellWrapperCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "shell-wrapper <distro>",
		Short: "Generate a shell wrapper script for a distro",
		Long: `Print a shell script that sets up the environment for running commands
with the glibc of an installed rootfs.

Example:
  rtbox shell-wrapper bookworm > rtbox-bookworm.sh
  source rtbox-bookworm.sh
  rtbox_run ./myapp`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			distro, err := app.lookup(args[0])
			if err != nil {
				return err
			}
			s, err := app.store()
			if err != nil {
				return err
			}
			rf, err := s.Lookup(distro.Name)
			if err != nil {
				return err
			}
			layout, err := linker.Locate(rf.Path, rf.Architecture)
			if err != nil {
				return err
			}

			script, err := shellwrap.Render(shellwrap.Params{
				Distro:       distro.Name,
				GlibcVersion: distro.GlibcVersion,
				Rootfs:       rf.Path,
				Interpreter:  layout.Interpreter,
				LibraryDirs:  layout.LibraryDirs,
			})
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), script)
				return nil
			}
			if err := utils.WriteFile(output, []byte(script), 0755); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			logrus.Infof("Wrote %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the script to a file instead of stdout")
	return cmd
}
