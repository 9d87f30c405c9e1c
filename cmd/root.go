package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/tasks"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "Front-end asset pipeline with a live-reload dev server",
	Long: `assetpipe builds a static site's front-end assets: it copies pages and
static files, compiles and prefixes stylesheets, bundles and minifies
scripts, generates an icon font from SVG glyphs and lints stylesheets.

Run without arguments it builds everything, serves the output directory and
rebuilds on every change, reloading connected browsers.

Quick Start:
  assetpipe                   Build, serve and watch
  assetpipe build             Build once
  assetpipe run icons         Run single tasks
  assetpipe tasks             List tasks`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDefault,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the running graph.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printErrors(rootCmd.ErrOrStderr(), err)
	}

	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetpipe.yml, can also use ASSETPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	addServerFlags(rootCmd)

	bindRootFlags()
}

// bindRootFlags binds the persistent flags to their configuration keys.
func bindRootFlags() {
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
		"port":       "server.port",
		"host":       "server.host",
		"open":       "server.open",
	})
}

// initConfig points viper at the config file and the environment.
//
// Config file lookup, first match wins:
//  1. --config flag
//  2. ASSETPIPE_CONFIG_FILE environment variable
//  3. .assetpipe.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetpipe")
	}

	config.BindEnv(viper.GetViper())
}

// loadProject reads the configuration and builds the logger and task graph
// for the current directory.
func loadProject(cmd *cobra.Command) (*config.Config, logging.Logger, *tasks.Graph, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}

	tools := tasks.DefaultToolchain(cfg, cmd.OutOrStdout(), logger)

	return cfg, logger, tasks.NewGraph(cfg, tools, logger), nil
}

func runDefault(cmd *cobra.Command, args []string) error {
	_, _, graph, err := loadProject(cmd)
	if err != nil {
		return err
	}

	return graph.Default().Run(cmd.Context())
}

// printErrors prints every failure of a joined error on its own line.
// Groups nest, so joins are flattened all the way down.
func printErrors(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	for _, e := range flattenErrors(err) {
		fmt.Fprintln(w, "Error:", e)
	}
}

func flattenErrors(err error) []error {
	if _, ok := err.(interface{ Unwrap() []error }); !ok {
		return multierr.Errors(err)
	}
	var out []error
	for _, e := range multierr.Errors(err) {
		out = append(out, flattenErrors(e)...)
	}
	return out
}
