package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tasksFormat = newFormatFlag("text", "text", "json", "yaml")

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List every task with its aliases, input patterns and output directory.

Examples:
  assetpipe tasks
  assetpipe tasks --format json`,
	Args: cobra.NoArgs,
	RunE: runListTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	addFormatFlag(tasksCmd, tasksFormat)
}

func runListTasks(cmd *cobra.Command, args []string) error {
	_, _, graph, err := loadProject(cmd)
	if err != nil {
		return err
	}

	infos := graph.Describe()
	if tasksFormat.value != "text" {
		return writeStructured(cmd.OutOrStdout(), tasksFormat.value, infos)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tALIASES\tPATTERNS\tOUTPUT")
	for _, info := range infos {
		aliases := strings.Join(info.Aliases, ",")
		if aliases == "" {
			aliases = "-"
		}
		output := info.Output
		if output == "" {
			output = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, aliases, strings.Join(info.Patterns, " "), output)
	}

	return w.Flush()
}
