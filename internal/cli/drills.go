package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/corun/internal/workload"
)

func newMonitorCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run a primary task while a stopwatch reports elapsed seconds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := workload.MonitorDrill(cmd.Context(), orch, cmd.OutOrStdout(), duration)
			if err != nil {
				return fmt.Errorf("monitor drill: %w", err)
			}
			logger.Debug("monitor drill finished", "primary_state", res.PrimaryState, "monitor_state", res.MonitorState)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long the primary task sleeps")
	return cmd
}

func newPitStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pitstop",
		Short: "Change tires and refuel concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := workload.PitStop(cmd.Context(), orch, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("pit stop: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Results: %v\n", results)
			return nil
		},
	}
}

func newUploadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uploads",
		Short: "Upload a photo, a video and a text file concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := workload.Uploads(cmd.Context(), orch, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("uploads: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Results: %v\n", results)
			return nil
		},
	}
}
