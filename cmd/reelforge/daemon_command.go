package main

import (
	"github.com/spf13/cobra"

	"reelforge/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel    string
		development bool
	)
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the job queue and HTTP API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr := ctx.apiAddress(); addr != "" {
				cfg.Paths.APIBind = addr
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in logs")
	return cmd
}
