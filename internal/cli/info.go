package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info <distro>",
		Short: "Show information about an installed rootfs",
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
			rf, err := s.Describe(distro.Name)
			if err != nil {
				return err
			}

			glibc := rf.GlibcVersion
			if glibc == "" {
				glibc = distro.GlibcVersion + " (expected)"
			}
			rows := [][]string{
				{"Name", distro.Name},
				{"Debian Version", distro.Version},
				{"glibc Version", glibc},
				{"Architecture", string(rf.Architecture)},
				{"Path", rf.Path},
				{"Size", fmt.Sprintf("%.1f MB", float64(rf.SizeBytes)/(1024*1024))},
				{"Source", rf.SourceURL},
				{"Installed", rf.InstalledAt.Local().Format(time.RFC3339)},
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("Rootfs Info: "+distro.Name))
			fmt.Fprintln(out, renderTable([]string{"Property", "Value"}, rows, func(row, col int) lipgloss.Style {
				if col == 0 {
					return CmdStyle
				}
				return SuccessStyle
			}))
			return nil
		},
	}
}
