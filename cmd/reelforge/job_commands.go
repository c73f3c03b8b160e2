package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newJobsCommand(ctx),
		newShowCommand(ctx),
		newWatchCommand(ctx),
		newCancelCommand(ctx),
		newPurgeCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		brief   briefFlags
		wait    bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "submit [topic]",
		Short: "Queue a brief on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := brief.request(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), api.FromRequest(req))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut && !wait {
					return writeJSON(cmd, resp)
				}
				if resp.Duplicate {
					fmt.Fprintf(out, "Already queued as job %s\n", resp.JobID)
				} else {
					fmt.Fprintf(out, "Queued job %s\n", resp.JobID)
				}
				if !wait {
					return nil
				}
				return watchJob(cmd, client, resp.JobID, jsonOut)
			})
		},
	}
	brief.register(cmd)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Stream events until the job finishes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"ls"},
		Short:   "List jobs known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderJobTable(jobs))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (Queued, Running, Succeeded, Failed, Canceled)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its stage results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.JobResponse{Job: job})
				}
				out := cmd.OutOrStdout()
				printJobDetail(out, job, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON output")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream a job's events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				return watchJob(cmd, client, args[0], jsonOut)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print events as JSON lines")
	return cmd
}

// watchJob streams events for id, then prints the final job and returns an
// error when it did not succeed.
func watchJob(cmd *cobra.Command, client *api.Client, id string, jsonOut bool) error {
	out := cmd.OutOrStdout()
	err := client.Watch(cmd.Context(), id, func(evt api.Event) error {
		if jsonOut {
			return writeJSON(cmd, evt)
		}
		_, err := fmt.Fprintln(out, formatEvent(evt))
		return err
	})
	if err != nil {
		return err
	}
	job, err := client.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !jsonOut {
		fmt.Fprintln(out)
		printJobDetail(out, job, shouldColorize(out))
	}
	return jobOutcomeError(job)
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", args[0])
			})
		},
	}
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <job-id>...",
		Short: "Forget finished jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				for _, id := range args {
					if err := client.Purge(cmd.Context(), id); err != nil {
						return fmt.Errorf("purge %s: %w", id, err)
					}
					if err := printf(cmd.OutOrStdout(), "Purged job %s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func printf(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
