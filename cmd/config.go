package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFormat = newFormatFlag("yaml", "yaml", "json")

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect assetpipe configuration",
	Long: `Inspect the configuration assetpipe resolves from flags, environment
variables, the config file and defaults.

Examples:
  assetpipe config show                 # Show configuration as YAML
  assetpipe config show --format json   # Show configuration as JSON
  assetpipe config validate             # Check the configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	addFormatFlag(configShowCmd, configFormat)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, _, err := loadProject(cmd)
	if err != nil {
		return err
	}

	return writeStructured(cmd.OutOrStdout(), configFormat.value, cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, _, _, err := loadProject(cmd); err != nil {
		return err
	}

	source := viper.ConfigFileUsed()
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s)\n", source)

	return nil
}
