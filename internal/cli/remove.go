package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <distro>",
		Short: "Remove an installed rootfs",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			distro, err := app.lookup(args[0])
			if err != nil {
				return err
			}
			s, err := app.store()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := os.Lstat(s.Path(distro.Name)); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, WarningStyle.Render(fmt.Sprintf("Rootfs for %s is not installed.", distro.Name)))
				return nil
			}
			// An unmarked leftover is removed too.
			if err := s.Remove(distro.Name); err != nil {
				return err
			}
			fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("Removed rootfs for %s", distro.Name)))
			return nil
		},
	}
}
