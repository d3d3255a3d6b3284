package commands

import "github.com/spf13/cobra"

var affectionCmd = &cobra.Command{
	Use:   "affection <user-id>",
	Short: "Show a user's affection score and level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := adminRequest("GET", "/api/affection/"+args[0], nil, &out); err != nil {
			return err
		}
		return printResult(out)
	},
}

var affectionScore float64

var affectionSetCmd = &cobra.Command{
	Use:   "affection-set <user-id>",
	Short: "Override a user's affection score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := adminRequest("POST", "/api/affection/"+args[0], map[string]any{"score": affectionScore}, &out); err != nil {
			return err
		}
		return printResult(out)
	},
}

func init() {
	affectionSetCmd.Flags().Float64Var(&affectionScore, "score", 0, "new affection score")
	rootCmd.AddCommand(affectionCmd, affectionSetCmd)
}
