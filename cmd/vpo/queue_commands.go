package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vpo/internal/config"
	"vpo/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

// queueStatusOrder fixes the display order of status rows.
var queueStatusOrder = []store.JobStatus{
	store.JobQueued,
	store.JobRunning,
	store.JobCompleted,
	store.JobFailed,
	store.JobCancelled,
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a queue summary by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				counts, err := st.QueueCounts(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(counts) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				var rows [][]string
				for _, status := range queueStatusOrder {
					if count, ok := counts[status]; ok {
						rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
					}
				}
				fmt.Fprintln(out, renderTable(out, []string{"Status", "Count"}, rows, 2))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				filter := store.JobFilter{
					SortColumn: "created_at",
					SortDesc:   true,
					Limit:      limit,
				}
				for _, status := range statusFilters {
					filter.Statuses = append(filter.Statuses, store.JobStatus(strings.ToLower(status)))
				}

				jobs, total, err := st.ListJobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs match")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						shortID(job.ID),
						string(job.Type),
						string(job.Status),
						fmt.Sprintf("%.0f%%", job.ProgressPercent),
						formatTime(job.CreatedAt),
						truncatePath(job.FilePath, 60),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Type", "Status", "Progress", "Created", "Path"}, rows, 4))
				if total > len(jobs) {
					fmt.Fprintf(out, "Showing %d of %d jobs\n", len(jobs), total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobID...]",
		Short: "Return failed jobs to the queue",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				ids, err := resolveJobIDs(cmd, st, args)
				if err != nil {
					return err
				}
				updated, err := st.RetryFailedJobs(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed jobs\n", updated)
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobID>",
		Short: "Cancel a queued or running job",
		Long: "Cancellation is cooperative: a running worker stops at its next " +
			"progress checkpoint, so in-flight external tool invocations finish first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				ids, err := resolveJobIDs(cmd, st, args[:1])
				if err != nil {
					return err
				}
				ok, err := st.CancelJob(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s is not queued or running", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s\n", shortID(ids[0]))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed, failed, and cancelled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				removed, err := st.ClearTerminalJobs(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d terminal jobs\n", removed)
				return nil
			})
		},
	}
}

// resolveJobIDs expands abbreviated job IDs to full UUIDs. An unambiguous
// prefix of any length is accepted.
func resolveJobIDs(cmd *cobra.Command, st *store.Store, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	jobs, _, err := st.ListJobs(cmd.Context(), store.JobFilter{})
	if err != nil {
		return nil, err
	}

	resolved := make([]string, 0, len(args))
	for _, arg := range args {
		var matches []string
		for _, job := range jobs {
			if strings.HasPrefix(job.ID, arg) {
				matches = append(matches, job.ID)
			}
		}
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("no job matches %q", arg)
		case 1:
			resolved = append(resolved, matches[0])
		default:
			return nil, fmt.Errorf("job id %q is ambiguous (%d matches)", arg, len(matches))
		}
	}
	return resolved, nil
}
