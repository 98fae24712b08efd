package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vpo/internal/config"
	"vpo/internal/store"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show processing statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()

				summary, err := st.GetStatsSummary(cmd.Context())
				if err != nil {
					return err
				}
				if summary.FilesProcessed == 0 {
					fmt.Fprintln(out, "No files processed yet")
					return nil
				}

				fmt.Fprintf(out, "Files processed:  %d\n", summary.FilesProcessed)
				fmt.Fprintf(out, "Size before:      %s\n", humanize.IBytes(uint64(summary.TotalSizeBefore)))
				fmt.Fprintf(out, "Size after:       %s\n", humanize.IBytes(uint64(summary.TotalSizeAfter)))
				fmt.Fprintf(out, "Bytes saved:      %s\n", formatSaved(summary.BytesSaved))
				fmt.Fprintf(out, "Tracks removed:   %d\n", summary.TracksRemoved)

				policies, err := st.GetPolicyStats(cmd.Context())
				if err != nil {
					return err
				}
				if len(policies) > 0 {
					rows := make([][]string, 0, len(policies))
					for _, p := range policies {
						rows = append(rows, []string{
							p.PolicyName,
							fmt.Sprintf("%d", p.Runs),
							formatSaved(p.BytesSaved),
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable(out, []string{"Policy", "Runs", "Saved"}, rows, 2, 3))
				}

				if recent <= 0 {
					return nil
				}
				entries, err := st.GetRecentStats(cmd.Context(), recent)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.PolicyName,
						humanize.IBytes(uint64(entry.SizeBefore)),
						humanize.IBytes(uint64(entry.SizeAfter)),
						fmt.Sprintf("%d", entry.RemovedCount),
						string(entry.EncoderType),
						formatTime(entry.CreatedAt),
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(out,
					[]string{"Policy", "Before", "After", "Removed", "Encoder", "When"}, rows, 2, 3, 4))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "Also show the N most recent runs")
	return cmd
}

// formatSaved renders a byte delta; negative deltas mean the run grew the
// file (a transcode to a higher-rate codec can legitimately do this).
func formatSaved(delta int64) string {
	if delta < 0 {
		return "-" + humanize.IBytes(uint64(-delta))
	}
	return humanize.IBytes(uint64(delta))
}
