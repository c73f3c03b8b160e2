package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and stage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if !isDialError(err) {
					return err
				}
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return cfgErr
				}
				status = api.DaemonStatus{
					Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cmd.Context(), cfg)),
				}
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			printStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	return cmd
}

func printStatus(w io.Writer, status api.DaemonStatus, colorize bool) {
	printSection(w, "Daemon", colorize)
	if !status.Running {
		fmt.Fprintln(w, renderStatusLine("Running", statusWarn, "Daemon not running", colorize))
		fmt.Fprintln(w)
		printDependencies(w, status.Dependencies, colorize)
		return
	}
	fmt.Fprintln(w, renderStatusLine("Running", statusOK, yesNo(status.Running), colorize))
	fmt.Fprintln(w, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
	fmt.Fprintln(w, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))
	if status.LogPath != "" {
		fmt.Fprintln(w, renderStatusLine("Log file", statusInfo, status.LogPath, colorize))
	}
	if status.Workflow.LastError != "" {
		fmt.Fprintln(w, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}
	fmt.Fprintln(w)

	printSection(w, "Stages", colorize)
	for _, health := range status.Workflow.StageHealth {
		kind := statusOK
		if !health.Ready {
			kind = statusWarn
		}
		fmt.Fprintln(w, renderStatusLine(health.Name, kind, health.Detail, colorize))
	}
	fmt.Fprintln(w)

	printDependencies(w, status.Dependencies, colorize)

	printSection(w, "Queue", colorize)
	q := status.Queue
	if q.Throttled {
		fmt.Fprintln(w, renderStatusLine("Admission", statusWarn, "paused: "+q.ThrottleReason, colorize))
	}
	if q.Total == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	rows := [][]string{
		{"Queued", strconv.Itoa(q.Queued)},
		{"Running", strconv.Itoa(q.Running)},
		{"Succeeded", strconv.Itoa(q.Succeeded)},
		{"Failed", strconv.Itoa(q.Failed)},
		{"Canceled", strconv.Itoa(q.Canceled)},
	}
	fmt.Fprint(w, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printDependencies(w io.Writer, dependencies []api.DependencyStatus, colorize bool) {
	printSection(w, "Dependencies", colorize)
	for _, dep := range dependencies {
		kind, detail := statusOK, "Ready"
		if dep.Command != "" {
			detail = fmt.Sprintf("Ready (command: %s)", dep.Command)
		}
		if !dep.Available {
			kind, detail = statusWarn, dep.Detail
			if detail == "" {
				detail = "not available"
			}
		}
		fmt.Fprintln(w, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	fmt.Fprintln(w)
}
