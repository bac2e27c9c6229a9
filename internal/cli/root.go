package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// version is overridden at link time.
var version = "dev"

// NewRootCmd creates the root command
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rtbox",
		Short: "Run binaries with different glibc versions",
		Long: `rtbox runs binaries or builds software against the glibc of a Debian
release without containers. It downloads a minimal Debian root filesystem
and starts commands through that rootfs's own dynamic linker.

Examples:
  rtbox list                    # List available distros
  rtbox pull bookworm           # Download Debian bookworm rootfs
  rtbox run bookworm ./myapp    # Run myapp with bookworm's glibc
  rtbox build bookworm make     # Run make with bookworm's glibc`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}

			home, _ := cmd.Flags().GetString("home")
			configFile, _ := cmd.Flags().GetString("config")
			return app.loadConfig(home, configFile)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("home", "", "rtbox home directory (default $RTBOX_HOME or ~/.rtbox)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <home>/config.toml)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	// Add subcommands
	rootCmd.AddCommand(
		newListCmd(app),
		newPullCmd(app),
		newRemoveCmd(app),
		newInfoCmd(app),
		newRunCmd(app),
		newBuildCmd(app),
		newShellWrapperCmd(app),
	)

	return rootCmd
}
