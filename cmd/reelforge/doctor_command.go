package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, disk space, external tools, and the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			printSection(out, "Configuration", colorize)
			path := ctx.configPath
			if !ctx.configExists {
				path += " (missing, using defaults)"
			}
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, path, colorize))
			failed := 0
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			fmt.Fprintln(out)

			printSection(out, "Optional tools", colorize)
			for _, dep := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				kind, detail := statusOK, "Ready (command: "+dep.Command+")"
				if !dep.Available {
					kind, detail = statusWarn, dep.Detail+"; built-in backends will be used"
				}
				fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
			}
			fmt.Fprintln(out)

			printSection(out, "Daemon", colorize)
			daemon := preflight.CheckDaemon(cmd.Context(), api.BaseURL(ctx.apiAddress()), cfg.Paths.APIToken)
			kind := statusOK
			if !daemon.Passed {
				kind = statusInfo
			}
			fmt.Fprintln(out, renderStatusLine(daemon.Name, kind, daemon.Detail, colorize))

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}
