package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newPullCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull <distro>",
		Short: "Download a Debian rootfs",
		Long: `Download and install the rootfs of a Debian release.

DISTRO can be a codename (e.g. bookworm) or a version number (e.g. 12).
An installed rootfs is kept as is unless --force is given, in which case
it is downloaded again and replaced atomically.`,
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

			if n, err := s.CleanStaging(app.cfg.StagingMaxAge); err != nil {
				logrus.Warnf("Failed to clean abandoned staging directories: %v", err)
			} else if n > 0 {
				logrus.Infof("Removed %d abandoned staging directories", n)
			}

			out := cmd.OutOrStdout()
			if !force && s.IsInstalled(distro.Name) {
				if _, err := s.Lookup(distro.Name); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s is already installed (use --force to download it again)\n", CmdStyle.Render(distro.Name))
				return nil
			}

			fmt.Fprintf(out, "Pulling rootfs for %s (Debian %s, glibc %s)\n",
				CmdStyle.Render(distro.Name), distro.Version, distro.GlibcVersion)
			rf, err := s.Pull(cmd.Context(), distro, force)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("Successfully installed %s into %s", distro.Name, rf.Path)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Download again even if installed")
	return cmd
}
