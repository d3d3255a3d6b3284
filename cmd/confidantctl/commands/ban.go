package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cli "github.com/kurame123/confidant/internal/cliutil"
)

var banMinutes int
var banReason string

var banCmd = &cobra.Command{
	Use:   "ban <user-id>",
	Short: "Temporarily blacklist a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		body := map[string]any{"minutes": banMinutes, "reason": banReason}
		if err := adminRequest("POST", "/api/blacklist/"+args[0], body, &out); err != nil {
			return err
		}
		cli.PrintSuccess("banned %s for %d minutes", args[0], banMinutes)
		return printResult(out)
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban <user-id>",
	Short: "Remove a user's blacklist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := adminRequest("DELETE", "/api/blacklist/"+args[0], nil, &out); err != nil {
			return err
		}
		cli.PrintSuccess("unbanned %s", args[0])
		return printResult(out)
	},
}

var banlistCmd = &cobra.Command{
	Use:   "banlist",
	Short: "List every active ban",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Bans []map[string]any `json:"bans"`
		}
		if err := adminRequest("GET", "/api/blacklist", nil, &out); err != nil {
			return err
		}
		if format == "text" {
			for _, b := range out.Bans {
				fmt.Printf("%-24v expires=%v reason=%v hits=%v\n", b["user_id"], b["expires_at"], b["reason"], b["hit_count"])
			}
			return nil
		}
		return printResult(out.Bans)
	},
}

func init() {
	banCmd.Flags().IntVar(&banMinutes, "minutes", 60, "ban duration in minutes")
	banCmd.Flags().StringVar(&banReason, "reason", "", "ban reason")
	rootCmd.AddCommand(banCmd, unbanCmd, banlistCmd)
}
