package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sizewatch/internal/server"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var autoStart bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the control API and monitor the watch-list",
		Long: `Serves the control API until SIGINT or SIGTERM. With --start (or
monitor.auto_start) the configured items are monitored right away;
otherwise POST /v1/run starts a run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configFile, flags.envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("start") {
				cfg.Monitor.AutoStart = autoStart
			}
			app, err := server.Build(cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&autoStart, "start", false, "start monitoring the configured items immediately")
	return cmd
}
