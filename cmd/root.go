// Package cmd defines and implements the CLI commands for the sizewatch
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sizewatch/internal/config"
)

type rootFlags struct {
	configFile string
	envFile    string
}

// loadConfig is a variable so tests can inject a config without files.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "sizewatch",
		Short: "Watches retailer product pages for sizes coming back in stock.",
		Long: `sizewatch loads a watch-list of product pages in headless Chrome,
checks whether any requested size can be bought, and raises a local sound
plus a Telegram message the first time one can. A small HTTP API starts,
stops and inspects the monitoring loop.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with BOT_API / CHAT_ID")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newStoresCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
