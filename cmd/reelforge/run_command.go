package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/daemonrun"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/queue"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		brief    briefFlags
		jsonOut  bool
		quiet    bool
		notify   bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "run [topic]",
		Short: "Generate one video in-process and stream its progress",
		Long: "Run executes a brief without a daemon. Progress events stream to stdout;\n" +
			"the command exits non-zero when the job fails or is interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req, err := brief.request(args)
			if err != nil {
				return err
			}

			level := logLevel
			if level == "" {
				level = "warn"
			}
			runID := time.Now().UTC().Format("20060102T150405")
			logger, err := logging.New(logging.Options{
				Level:       level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
				FilePath:    filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelforge-run-%s.log", runID)),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			coord, err := daemonrun.NewCoordinator(cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var publish func(queue.Event)
			if !jsonOut && !quiet {
				fmt.Fprintf(out, "Generating %q (%s)\n", req.Topic, req.TargetDuration)
				publish = func(evt queue.Event) {
					fmt.Fprintln(out, formatEvent(api.FromEvent(evt)))
				}
			}

			job, err := coord.RunRequest(cmd.Context(), req, publish)
			if err != nil {
				return err
			}

			if notify {
				if event, payload, ok := notifications.Outcome(job); ok {
					if err := notifications.NewService(cfg).Publish(cmd.Context(), event, payload); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: notification failed: %v\n", err)
					}
				}
			}

			view := api.FromJob(job)
			if jsonOut {
				if err := writeJSON(cmd, view); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out)
				printJobDetail(out, view, colorize)
			}
			return jobOutcomeError(view)
		},
	}

	brief.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the finished job as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final summary")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send the configured ntfy notification when the job ends")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level for stderr (default warn)")
	return cmd
}

// jobOutcomeError turns a non-successful terminal job into a command error so
// the process exits non-zero.
func jobOutcomeError(job api.Job) error {
	switch job.Status {
	case "Succeeded":
		return nil
	case "Canceled":
		reason := job.CancelReason
		if reason == "" {
			reason = "canceled"
		}
		return fmt.Errorf("job %s canceled: %s", shortID(job.ID), reason)
	default:
		if n := len(job.Errors); n > 0 {
			rec := job.Errors[n-1]
			return fmt.Errorf("job %s %s: %s", shortID(job.ID), job.Status, rec.Code)
		}
		return errors.New("job " + shortID(job.ID) + " " + job.Status)
	}
}
