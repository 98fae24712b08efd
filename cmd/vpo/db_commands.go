package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vpo/internal/config"
	"vpo/internal/store"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Library database maintenance",
	}

	dbCmd.AddCommand(newDBCheckCommand(ctx))
	dbCmd.AddCommand(newDBOptimizeCommand(ctx))

	return dbCmd
}

func newDBCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run database integrity checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				report, err := st.RunIntegrityCheck(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if report.OK {
					fmt.Fprintln(out, "Database integrity OK")
					return nil
				}
				for _, violation := range report.IntegrityViolations {
					fmt.Fprintf(out, "integrity: %s\n", violation)
				}
				for _, violation := range report.ForeignKeyViolations {
					fmt.Fprintf(out, "foreign key: %s\n", violation)
				}
				return fmt.Errorf("database integrity check failed")
			})
		},
	}
}

func newDBOptimizeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Reclaim free space and refresh planner statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				result, err := st.RunOptimize(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Reclaimable: %s\n", humanize.IBytes(uint64(result.ReclaimableBytes)))
				if result.DryRun {
					fmt.Fprintln(out, "Dry run; nothing was changed")
					return nil
				}
				if result.Vacuumed {
					fmt.Fprintln(out, "Vacuum complete")
				}
				if result.Analyzed {
					fmt.Fprintln(out, "Statistics refreshed")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only estimate reclaimable space")
	return cmd
}
