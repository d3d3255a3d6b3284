package commands

import (
	"github.com/spf13/cobra"

	cli "github.com/kurame123/confidant/internal/cliutil"
)

var configSetAddr string
var configSetToken string

var configSetCmd = &cobra.Command{
	Use:   "config-set",
	Short: "Save --addr/--token as the default context for future invocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig("confidantctl")
		if err != nil {
			return err
		}
		if err := cfg.AddContext("default", &cli.Context{
			BaseURL: configSetAddr,
			APIKey:  configSetToken,
		}); err != nil {
			return err
		}
		if err := cfg.UseContext("default"); err != nil {
			return err
		}
		cli.PrintSuccess("saved default context to %s", cfg.Path())
		return nil
	},
}

func init() {
	configSetCmd.Flags().StringVar(&configSetAddr, "addr", "http://127.0.0.1:8090", "confidantd admin HTTP address")
	configSetCmd.Flags().StringVar(&configSetToken, "token", "", "admin shared token")
	rootCmd.AddCommand(configSetCmd)
}
