package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vpo/internal/config"
	"vpo/internal/media/ffprobe"
	"vpo/internal/policy"
	"vpo/internal/store"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var policyPath string
	var persist bool

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Evaluate a policy against a file without touching it",
		Long: "Probes the file, runs every policy phase through the evaluator, and " +
			"prints the resulting actions. With --save the plan is persisted as " +
			"pending for later approval.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			schema, err := policy.LoadSchemaFile(policyPath)
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				prober := ffprobe.NewProber(cfg.FFprobeBinary())
				info, err := prober.Probe(cmd.Context(), target)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				var (
					actions       []policy.PlannedAction
					removed       int
					requiresRemux bool
				)
				for _, phase := range schema.Phases {
					plan, err := policy.Evaluate(info, schema.Config, phase, policy.Enrichment{})
					if err != nil {
						var policyErr *policy.PolicyError
						if errors.As(err, &policyErr) {
							fmt.Fprintf(out, "Phase %s skipped: %s\n", phase.Name, policyErr.Reason)
							continue
						}
						return err
					}
					actions = append(actions, plan.Actions...)
					removed += plan.TracksRemoved
					requiresRemux = requiresRemux || plan.RequiresRemux
				}

				if len(actions) == 0 && removed == 0 {
					fmt.Fprintln(out, "Policy matches the file; nothing to do")
					return nil
				}

				rows := make([][]string, 0, len(actions))
				for _, action := range actions {
					track := "-"
					if action.TrackIndex != nil {
						track = fmt.Sprintf("%d", *action.TrackIndex)
					}
					rows = append(rows, []string{string(action.Type), track, action.Current, action.Desired})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Action", "Track", "Current", "Desired"}, rows, 2))
				if removed > 0 {
					fmt.Fprintf(out, "Tracks removed: %d\n", removed)
				}

				if !persist {
					return nil
				}
				actionsJSON, err := json.Marshal(actions)
				if err != nil {
					return fmt.Errorf("encode actions: %w", err)
				}
				var fileID *int64
				if rec, err := st.GetFileByPath(cmd.Context(), target); err == nil && rec != nil {
					fileID = &rec.ID
				}
				plan, err := st.CreatePlan(cmd.Context(), &store.Plan{
					FileID:        fileID,
					FilePath:      target,
					PolicyName:    schema.Name,
					PolicyVersion: schema.Version,
					ActionsJSON:   string(actionsJSON),
					ActionCount:   len(actions),
					RequiresRemux: requiresRemux,
					Status:        store.PlanPending,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Saved plan %s (pending approval)\n", shortID(plan.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy schema file (JSON or TOML)")
	cmd.Flags().BoolVar(&persist, "save", false, "Persist the plan for approval")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

func newPlansCommand(ctx *commandContext) *cobra.Command {
	plansCmd := &cobra.Command{
		Use:   "plans",
		Short: "Review and gate persisted plans",
	}

	plansCmd.AddCommand(newPlansListCommand(ctx))
	plansCmd.AddCommand(newPlansShowCommand(ctx))
	plansCmd.AddCommand(newPlansTransitionCommand(ctx, "approve", store.PlanApproved))
	plansCmd.AddCommand(newPlansTransitionCommand(ctx, "reject", store.PlanRejected))
	plansCmd.AddCommand(newPlansApplyCommand(ctx))

	return plansCmd
}

func newPlansApplyCommand(ctx *commandContext) *cobra.Command {
	var policyPath string
	var priority int

	cmd := &cobra.Command{
		Use:   "apply <planID>",
		Short: "Enqueue an approved plan for execution",
		Long: "Queues an apply job for the plan's file. Only approved plans can be " +
			"applied; the plan is marked applied once the job is queued.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := policy.LoadSchemaFile(policyPath)
			if err != nil {
				return err
			}
			policyJSON, err := json.Marshal(schema)
			if err != nil {
				return fmt.Errorf("encode policy: %w", err)
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				plan, err := resolvePlan(cmd, st, args[0])
				if err != nil {
					return err
				}
				if plan.Status != store.PlanApproved {
					return fmt.Errorf("plan %s is %s; only approved plans can be applied", shortID(plan.ID), plan.Status)
				}
				if err := enqueueOne(cmd, st, store.JobApply, plan.FilePath, schema.Name, string(policyJSON), priority, ""); err != nil {
					return err
				}
				return st.UpdatePlanStatus(cmd.Context(), plan.ID, store.PlanApplied)
			})
		},
	}

	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy schema file (JSON or TOML)")
	cmd.Flags().IntVar(&priority, "priority", store.PriorityDefault, "Queue priority (lower runs first)")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

func newPlansListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				plans, err := st.ListPlans(cmd.Context(), store.PlanStatus(strings.ToLower(statusFilter)), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(plans) == 0 {
					fmt.Fprintln(out, "No plans match")
					return nil
				}
				rows := make([][]string, 0, len(plans))
				for _, plan := range plans {
					rows = append(rows, []string{
						shortID(plan.ID),
						plan.PolicyName,
						string(plan.Status),
						fmt.Sprintf("%d", plan.ActionCount),
						formatTime(plan.CreatedAt),
						truncatePath(plan.FilePath, 50),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Policy", "Status", "Actions", "Created", "Path"}, rows, 4))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by plan status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show")
	return cmd
}

func newPlansShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <planID>",
		Short: "Show a plan's actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				plan, err := resolvePlan(cmd, st, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Plan %s\n", plan.ID)
				fmt.Fprintf(out, "  Policy:  %s\n", joinNonEmpty([]string{plan.PolicyName, plan.PolicyVersion}, " "))
				fmt.Fprintf(out, "  File:    %s\n", plan.FilePath)
				fmt.Fprintf(out, "  Status:  %s\n", plan.Status)
				fmt.Fprintf(out, "  Remux:   %v\n", plan.RequiresRemux)

				var actions []policy.PlannedAction
				if err := json.Unmarshal([]byte(plan.ActionsJSON), &actions); err != nil {
					return fmt.Errorf("decode plan actions: %w", err)
				}
				rows := make([][]string, 0, len(actions))
				for _, action := range actions {
					track := "-"
					if action.TrackIndex != nil {
						track = fmt.Sprintf("%d", *action.TrackIndex)
					}
					rows = append(rows, []string{string(action.Type), track, action.Current, action.Desired})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Action", "Track", "Current", "Desired"}, rows, 2))
				return nil
			})
		},
	}
}

func newPlansTransitionCommand(ctx *commandContext, verb string, to store.PlanStatus) *cobra.Command {
	short := "Approve a pending plan"
	if to == store.PlanRejected {
		short = "Reject a pending plan"
	}
	return &cobra.Command{
		Use:   verb + " <planID>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				plan, err := resolvePlan(cmd, st, args[0])
				if err != nil {
					return err
				}
				if err := st.UpdatePlanStatus(cmd.Context(), plan.ID, to); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Plan %s %s\n", shortID(plan.ID), to)
				return nil
			})
		},
	}
}

func resolvePlan(cmd *cobra.Command, st *store.Store, arg string) (*store.Plan, error) {
	if plan, err := st.GetPlan(cmd.Context(), arg); err != nil {
		return nil, err
	} else if plan != nil {
		return plan, nil
	}

	plans, err := st.ListPlans(cmd.Context(), "", 0)
	if err != nil {
		return nil, err
	}
	var matches []*store.Plan
	for _, plan := range plans {
		if strings.HasPrefix(plan.ID, arg) {
			matches = append(matches, plan)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no plan matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("plan id %q is ambiguous (%d matches)", arg, len(matches))
	}
}
