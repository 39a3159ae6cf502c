package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/corun/internal/assistant"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answerer, err := newAnswerer(cmd.Context(), cfg.LLM, logger)
			if err != nil {
				return err
			}
			svc := assistant.NewService(orch, answerer, logger)

			reply, err := svc.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Answer)
			return nil
		},
	}
}
