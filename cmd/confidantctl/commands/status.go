package commands

import "github.com/spf13/cobra"

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show global message/token/cost counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := adminRequest("GET", "/api/stats/global", nil, &out); err != nil {
			return err
		}
		return printResult(out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
