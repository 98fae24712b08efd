package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vpo/internal/deps"
)

func newToolsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			rows := make([][]string, 0, len(statuses))
			missingRequired := false
			for _, status := range statuses {
				state := "ok"
				if !status.Available {
					state = "missing"
					if !status.Optional {
						missingRequired = true
					}
				}
				requirement := "required"
				if status.Optional {
					requirement = "optional"
				}
				detail := status.Command
				if status.Detail != "" {
					detail = status.Detail
				}
				rows = append(rows, []string{status.Name, requirement, state, detail})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Tool", "Requirement", "State", "Detail"}, rows))
			if missingRequired {
				return fmt.Errorf("required tools are missing")
			}
			return nil
		},
	}
}
