package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <task>...",
	Short: "Run named tasks in parallel",
	Long: `Run one or more tasks once. Tasks run in parallel; a failing task does
not stop the others, and every failure is reported.

Tasks: html, assets, styles, scripts, icons, lint, robots, watch.
Build file names such as copyAss, iconTask and robotsTask are accepted.

Examples:
  assetpipe run icons
  assetpipe run styles scripts
  assetpipe run copyAss robotsTask`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTasks,
}

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build every task once",
	Long: `Run html, assets, styles, scripts, icons and robots in parallel and exit.
This is the default command without the dev server and watcher.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	_, _, graph, err := loadProject(cmd)
	if err != nil {
		return err
	}

	// Resolve everything before running anything
	runnables := make([]pipeline.Runnable, 0, len(args))
	for _, name := range args {
		r, err := graph.Lookup(name)
		if err != nil {
			return err
		}
		runnables = append(runnables, r)
	}

	if len(runnables) == 1 {
		return runnables[0].Run(cmd.Context())
	}
	return pipeline.Parallel(runnables...).Run(cmd.Context())
}

func runBuild(cmd *cobra.Command, args []string) error {
	_, _, graph, err := loadProject(cmd)
	if err != nil {
		return err
	}

	return graph.Build().Run(cmd.Context())
}
