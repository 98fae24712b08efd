package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vpo/internal/config"
	"vpo/internal/policy"
	"vpo/internal/store"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Enqueue a library scan of a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("scan target: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("scan target %s is not a directory", root)
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				job, err := st.InsertJob(cmd.Context(), &store.Job{
					Type:     store.JobScan,
					FilePath: root,
					Priority: priority,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued scan %s for %s\n", shortID(job.ID), root)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&priority, "priority", store.PriorityDefault, "Job priority (0 claims first, 1000 last)")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return newPolicyJobCommand(ctx, "process", store.JobProcess,
		"Enqueue policy processing for a file or directory")
}

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	return newPolicyJobCommand(ctx, "transcode", store.JobTranscode,
		"Enqueue only the transcode phases of a policy")
}

func newPolicyJobCommand(ctx *commandContext, use string, jobType store.JobType, short string) *cobra.Command {
	var policyPath string
	var priority int

	cmd := &cobra.Command{
		Use:   use + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			schema, err := policy.LoadSchemaFile(policyPath)
			if err != nil {
				return err
			}
			policyJSON, err := json.Marshal(schema)
			if err != nil {
				return fmt.Errorf("encode policy: %w", err)
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				info, statErr := os.Stat(target)
				if statErr == nil && info.IsDir() {
					return enqueueBatch(cmd, st, jobType, target, schema.Name, string(policyJSON), priority)
				}
				return enqueueOne(cmd, st, jobType, target, schema.Name, string(policyJSON), priority, "")
			})
		},
	}

	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy schema file (JSON or TOML)")
	cmd.Flags().IntVar(&priority, "priority", store.PriorityDefault, "Job priority (0 claims first, 1000 last)")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

// enqueueBatch inserts one job per cataloged file under the directory,
// all sharing a batch identifier.
func enqueueBatch(cmd *cobra.Command, st *store.Store, jobType store.JobType, root, policyName, policyJSON string, priority int) error {
	files, err := st.ListFilesUnderPrefix(cmd.Context(), root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no cataloged files under %s; run `vpo scan` first", root)
	}

	batchID := uuid.NewString()
	queued, skipped := 0, 0
	for _, file := range files {
		err := enqueueOne(cmd, st, jobType, file.Path, policyName, policyJSON, priority, batchID)
		switch {
		case errors.Is(err, store.ErrDuplicateJob):
			skipped++
		case err != nil:
			return err
		default:
			queued++
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued %d %s jobs (batch %s)\n", queued, jobType, shortID(batchID))
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped %d files with active jobs\n", skipped)
	}
	return nil
}

func enqueueOne(cmd *cobra.Command, st *store.Store, jobType store.JobType, path, policyName, policyJSON string, priority int, batchID string) error {
	fileRec, err := st.GetFileByPath(cmd.Context(), path)
	if err != nil {
		return err
	}
	if fileRec == nil {
		return fmt.Errorf("%s is not cataloged; run `vpo scan` first", path)
	}

	job := &store.Job{
		Type:       jobType,
		FileID:     &fileRec.ID,
		FilePath:   path,
		PolicyName: policyName,
		PolicyJSON: policyJSON,
		Priority:   priority,
		BatchID:    batchID,
	}
	stored, err := st.InsertJob(cmd.Context(), job)
	if err != nil {
		return err
	}
	if batchID == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s for %s\n", jobType, shortID(stored.ID), path)
	}
	return nil
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune [directory]",
		Short: "Enqueue removal of catalog rows whose files vanished",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				prefix = abs
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				job, err := st.InsertJob(cmd.Context(), &store.Job{
					Type:     store.JobPrune,
					FilePath: prefix,
					Priority: store.PriorityDefault,
				})
				if err != nil {
					return err
				}
				scope := prefix
				if scope == "" {
					scope = "entire library"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued prune %s for %s\n", shortID(job.ID), scope)
				return nil
			})
		},
	}
	return cmd
}
