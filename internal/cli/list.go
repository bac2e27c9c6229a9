package cli

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newListCmd(app *App) *cobra.Command {
	var installedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available Debian distributions",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The catalog is listed even when the store cannot be opened.
			var installed []string
			s, err := app.store()
			if err != nil {
				logrus.Warnf("Cannot read installed rootfs: %v", err)
			} else if installed, err = s.Installed(); err != nil {
				logrus.Warnf("Cannot read installed rootfs: %v", err)
			}

			var rows [][]string
			for _, d := range app.deps.Catalog.All() {
				isInstalled := slices.Contains(installed, d.Name)
				if installedOnly && !isInstalled {
					continue
				}
				status := ""
				switch {
				case isInstalled:
					status = "installed"
				case s != nil && !d.Supports(s.Arch()):
					status = "unsupported"
				}
				rows = append(rows, []string{d.Name, d.Version, d.GlibcVersion, status})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, SubtitleStyle.Render("No rootfs installed. Run: rtbox pull <distro>"))
				return nil
			}
			fmt.Fprintln(out, TitleStyle.Render("Available Debian Distributions"))
			fmt.Fprintln(out, renderTable([]string{"Name", "Version", "glibc", "Status"}, rows, func(row, col int) lipgloss.Style {
				switch col {
				case 0:
					return CmdStyle
				case 2:
					return SuccessStyle
				case 3:
					if rows[row][3] == "installed" {
						return SuccessStyle
					}
					return WarningStyle
				}
				return lipgloss.NewStyle()
			}))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&installedOnly, "installed", "i", false, "Show only installed rootfs")
	return cmd
}

// renderTable draws rows under headers. cellStyle picks the style of a
// data cell; padding is added on top of it.
func renderTable(headers []string, rows [][]string, cellStyle func(row, col int) lipgloss.Style) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if cellStyle == nil {
				return tableCellStyle
			}
			return cellStyle(row, col).Inherit(tableCellStyle)
		})
	return t.Render()
}
