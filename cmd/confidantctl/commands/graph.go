package commands

import (
	"github.com/spf13/cobra"

	cli "github.com/kurame123/confidant/internal/cliutil"
)

var graphClearAll bool

var graphClearCmd = &cobra.Command{
	Use:   "graph-clear [user-id]",
	Short: "Clear a user's knowledge graph, or every user's with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if graphClearAll {
			if err := adminRequest("DELETE", "/api/graph", nil, nil); err != nil {
				return err
			}
			cli.PrintSuccess("cleared every user's knowledge graph")
			return nil
		}
		if len(args) != 1 {
			return cmd.Usage()
		}
		if err := adminRequest("DELETE", "/api/graph/"+args[0], nil, nil); err != nil {
			return err
		}
		cli.PrintSuccess("cleared knowledge graph for %s", args[0])
		return nil
	},
}

var graphEntitiesCmd = &cobra.Command{
	Use:   "graph-entities <user-id>",
	Short: "List a user's knowledge-graph entities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := adminRequest("GET", "/api/graph/"+args[0]+"/entities", nil, &out); err != nil {
			return err
		}
		return printResult(out)
	},
}

func init() {
	graphClearCmd.Flags().BoolVar(&graphClearAll, "all", false, "clear every user's graph")
	rootCmd.AddCommand(graphClearCmd, graphEntitiesCmd)
}
