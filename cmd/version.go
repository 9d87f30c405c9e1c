package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/version"
)

var (
	versionFormat = newFormatFlag("text", "text", "json", "yaml")
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for assetpipe: version, git commit, build
time, Go version and platform.

Examples:
  assetpipe version                # Show version info
  assetpipe version --short        # Version only
  assetpipe version --format json  # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	addFormatFlag(versionCmd, versionFormat)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if versionShort {
		fmt.Fprintln(out, version.Short())
		return nil
	}

	info := version.Info()
	if versionFormat.value != "text" {
		return writeStructured(out, versionFormat.value, info)
	}

	fmt.Fprintln(out, info.String())
	return nil
}
