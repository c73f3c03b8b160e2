package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/logging"
	"reelforge/internal/logtail"
	"reelforge/internal/workflow"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		limit  int
		jobID  string
		local  bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		Long: "Logs reads the daemon's in-memory log stream over the API. With --local\n" +
			"it reads log files under paths.log_dir instead, which works without a daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				return tailLocalLogs(cmd, ctx, jobID, limit, follow)
			}
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				var cursor uint64
				for {
					resp, err := client.Logs(cmd.Context(), cursor, limit, jobID, follow)
					if err != nil {
						if cmd.Context().Err() != nil {
							return nil
						}
						return err
					}
					for _, evt := range resp.Events {
						printLogEvent(out, evt)
					}
					cursor = resp.Next
					if !follow {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().IntVarP(&limit, "limit", "n", 200, "Maximum events per fetch")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show events for this job id")
	cmd.Flags().BoolVar(&local, "local", false, "Read log files directly instead of asking the daemon")
	return cmd
}

func printLogEvent(w io.Writer, evt api.LogEvent) {
	var subject []string
	for _, part := range []string{evt.Component, shortID(evt.JobID), evt.Stage} {
		if part != "" {
			subject = append(subject, part)
		}
	}
	line := fmt.Sprintf("%s %-5s %s", formatStamp(evt.Timestamp), strings.ToUpper(evt.Level), evt.Message)
	if len(subject) > 0 {
		line += " [" + strings.Join(subject, "/") + "]"
	}
	fmt.Fprintln(w, line)
}

func tailLocalLogs(cmd *cobra.Command, ctx *commandContext, jobID string, limit int, follow bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	if jobID != "" {
		path, err = logtail.FindJobLog(filepath.Join(cfg.Paths.LogDir, workflow.JobLogDir), jobID)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	opts := logtail.Options{Offset: -1, Limit: limit}
	for {
		res, err := logtail.Tail(cmd.Context(), path, opts)
		if err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range res.Lines {
			fmt.Fprintln(out, line)
		}
		if !follow {
			return nil
		}
		opts = logtail.Options{Offset: res.Offset, Wait: 5 * time.Second}
	}
}
