package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	cli "github.com/kurame123/confidant/internal/cliutil"
)

var (
	addr   string
	token  string
	format string
)

var rootCmd = &cobra.Command{
	Use:   "confidantctl",
	Short: "Administrative CLI for a confidantd daemon",
	Long: `confidantctl drives a running confidantd's admin HTTP surface:
affection overrides, knowledge-graph clearing, and the temporary
blacklist (ban/unban/banlist), the same mutations the in-chat "/"
commands expose to operators.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "confidantd admin HTTP address")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "admin shared token")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format: text|yaml|json")
	rootCmd.PersistentPreRunE = applyConfigDefaults
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// applyConfigDefaults fills --addr/--token from, in order, the flag itself,
// an environment variable, then the "default" context of
// ~/.giztoy/confidantctl/config.yaml (BaseURL/APIKey repurposed as the
// admin address/token, the same context shape the teacher's doubao/minimax
// CLIs use for their own API credentials). Missing config is not an error:
// a fresh confidantctl has neither flags nor a config file yet.
func applyConfigDefaults(cmd *cobra.Command, args []string) error {
	if addr != "" && token != "" {
		return nil
	}
	if addr == "" {
		addr = envOr("CONFIDANTCTL_ADDR", addr)
	}
	if token == "" {
		token = envOr("CONFIDANTCTL_TOKEN", token)
	}
	if addr != "" && token != "" {
		return nil
	}

	// No config file yet is fine; the default address below still applies.
	if cfg, err := cli.LoadConfig("confidantctl"); err == nil {
		if ctx, err := cfg.GetContext("default"); err == nil {
			if addr == "" {
				addr = ctx.BaseURL
			}
			if token == "" {
				token = ctx.APIKey
			}
		}
	}
	if addr == "" {
		addr = "http://127.0.0.1:8090"
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// adminRequest issues method against path on the configured admin server,
// with body marshaled as JSON when non-nil, and decodes the JSON response
// into out (which may be nil to discard the body).
func adminRequest(method, path string, body, out any) error {
	if token == "" {
		return fmt.Errorf("admin token not set (--token or CONFIDANTCTL_TOKEN)")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, addr+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// printResult renders v per the --format flag via cliutil.Output, the same
// yaml/json output path the teacher's giztoy CLI uses for get-style
// commands. "text" falls back to Go's default struct formatting, since
// cliutil has no bespoke plain-text renderer and most admin responses are
// small enough that %+v reads fine.
func printResult(v any) error {
	switch format {
	case "json":
		return cli.Output(v, cli.OutputOptions{Format: cli.FormatJSON})
	case "yaml":
		return cli.Output(v, cli.OutputOptions{Format: cli.FormatYAML})
	default:
		fmt.Printf("%+v\n", v)
		return nil
	}
}
