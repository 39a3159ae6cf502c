package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/corun/internal/assistant"
	"github.com/me/corun/internal/config"
	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/orchestrator"
	"github.com/me/corun/internal/scheduler"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagClock     string

	cfg    *config.Config
	logger *slog.Logger
	orch   *orchestrator.Orchestrator
)

// newAnswerer builds the language model client used by ask and serve.
// Tests replace it with a fake.
var newAnswerer = func(ctx context.Context, c config.LLMConfig, logger *slog.Logger) (assistant.Answerer, error) {
	a, err := assistant.NewGeminiAnswerer(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewRootCmd creates the root cobra command for the corun CLI.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "corun",
		Short: "corun runs work as cooperative tasks",
		Long: "corun runs units of work as cooperative tasks on a single logical thread:\n" +
			"a primary with a background monitor, fan-out/join of siblings, and deadlines.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				c.Log.Level = flagLogLevel
			}
			if flags.Changed("log-format") {
				c.Log.Format = flagLogFormat
			}
			if flagDebug {
				c.Log.Level = "debug"
			}
			if flags.Changed("clock") {
				c.Scheduler.Clock = flagClock
			}
			if err := c.Validate(); err != nil {
				return err
			}

			clock, err := scheduler.ClockFor(c.Scheduler.Clock)
			if err != nil {
				return fmt.Errorf("scheduler clock: %w", err)
			}
			cfg = c
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(c.Log.Level), c.Log.Format, cmd.ErrOrStderr())
			orch = orchestrator.New(scheduler.New(clock, logger), logger)
			logger.Debug("config loaded", "clock", c.Scheduler.Clock, "config_file", flagConfig)
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ./corun.yaml if present)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", defaults.Log.Format, "Log format (text, json)")
	pf.StringVar(&flagClock, "clock", defaults.Scheduler.Clock, "Scheduler clock (real, virtual)")

	root.AddCommand(
		newMonitorCmd(),
		newPitStopCmd(),
		newUploadsCmd(),
		newPlanCmd(),
		newAskCmd(),
		newServeCmd(),
	)

	return root
}
