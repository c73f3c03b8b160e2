package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/daemonrun"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect stage backend selection",
	}
	providersCmd.AddCommand(newProvidersPreviewCommand(ctx))
	return providersCmd
}

func newProvidersPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		stageName  string
		tier       string
		offline    bool
		fromDaemon bool
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show which backend each stage would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			var selections []api.Selection
			if fromDaemon {
				err := ctx.withClient(func(client *api.Client) error {
					var err error
					selections, err = client.Preview(cmd.Context(), stageName, tier, offline)
					return err
				})
				if err != nil {
					return err
				}
			} else {
				local, err := previewLocally(cmd, ctx, stageName, tier, offline)
				if err != nil {
					return err
				}
				selections = local
			}

			if jsonOut {
				return writeJSON(cmd, api.PreviewResponse{Selections: selections})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderSelectionTable(selections))
			for _, sel := range selections {
				for _, skip := range sel.Skipped {
					fmt.Fprintf(out, "  %s: skipped %s (%s)\n", sel.Stage, skip.Backend, skip.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&stageName, "stage", "s", "", "Only preview this stage")
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Requested tier or backend name")
	cmd.Flags().BoolVar(&offline, "offline", false, "Exclude network-bound backends")
	cmd.Flags().BoolVar(&fromDaemon, "daemon", false, "Ask the running daemon instead of the local config")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	return cmd
}

func previewLocally(cmd *cobra.Command, ctx *commandContext, stageName, tier string, offline bool) ([]api.Selection, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	stages := generation.Stages()
	if stageName != "" {
		st, ok := generation.ParseStage(stageName)
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", stageName)
		}
		stages = []generation.Stage{st}
	}
	coord, err := daemonrun.NewCoordinator(cfg, logging.NewNop())
	if err != nil {
		return nil, err
	}
	selections := make([]provider.Selection, 0, len(stages))
	for _, st := range stages {
		selections = append(selections, coord.PreviewStage(cmd.Context(), st, tier, offline))
	}
	return api.FromSelections(selections), nil
}
