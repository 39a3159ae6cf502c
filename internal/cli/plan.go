package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/corun/internal/workload"
)

func newPlanCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "plan <file.yaml>",
		Short: "Run a YAML plan of units and print a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := workload.LoadPlan(args[0])
			if err != nil {
				return err
			}

			runner := workload.NewRunner(orch, cmd.OutOrStdout(), logger)
			report, runErr := runner.Run(cmd.Context(), p)

			if err := workload.WriteReport(cmd.OutOrStdout(), report, output); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if runErr != nil {
				return fmt.Errorf("plan %s: %w", p.Name, runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", workload.FormatText, "Report format (text, json, yaml)")
	return cmd
}
