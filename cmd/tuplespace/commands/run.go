package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/config"
	"github.com/dyluth/tuplespace/internal/host"
	"github.com/dyluth/tuplespace/internal/printer"
	"github.com/dyluth/tuplespace/internal/scenario"
	"github.com/dyluth/tuplespace/pkg/space"
)

var (
	runManualClock bool
)

var runCmd = &cobra.Command{
	Use:   "run SCENARIO.yml [SCENARIO.yml...]",
	Short: "Replay scenarios against a fresh tuple space",
	Long: `Run one or more YAML scenarios. Each scenario gets its own space built
from the configuration, so Redis and journal sinks see its events.

With --manual-clock, sleep steps advance a simulated clock instead of waiting,
which makes lease expiry scenarios instant.

Exits non-zero when any expectation fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScenarios,
}

func init() {
	runCmd.Flags().BoolVar(&runManualClock, "manual-clock", false, "Advance a simulated clock on sleep steps")
	rootCmd.AddCommand(runCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Scenarios never serve HTTP.
	cfg.HTTP = nil

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := 0
	for _, path := range args {
		sc, err := scenario.Load(path)
		if err != nil {
			return printer.Error("invalid scenario", err.Error(), nil)
		}

		report, err := runOne(ctx, cfg, sc)
		if err != nil {
			return err
		}
		failed += report.Failed()
	}

	if failed > 0 {
		return printer.Error(
			fmt.Sprintf("%d step(s) failed", failed),
			"One or more scenario expectations did not hold.",
			nil,
		)
	}
	printer.Success("All scenarios passed\n")
	return nil
}

func runOne(ctx context.Context, cfg *config.Config, sc *scenario.Scenario) (*scenario.Report, error) {
	var opts []host.Option
	if runManualClock {
		opts = append(opts, host.WithClock(space.NewManualClock(time.Now())))
	}

	h, err := host.Start(ctx, cfg, opts...)
	if err != nil {
		return nil, printer.Error("failed to start tuple space", err.Error(), nil)
	}
	defer h.Close()

	printer.Step("%s\n", sc.Name)
	runner := scenario.NewRunner(h.Space(), scenario.WithDefaultLease(cfg.DefaultLeaseDuration()))
	report, err := runner.Run(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("scenario interrupted: %w", err)
	}

	for _, res := range report.Results {
		printer.Check(res.Passed, res.Label, res.Failures)
	}
	printer.Printf("  %d/%d steps passed\n\n", len(report.Results)-report.Failed(), len(report.Results))
	return report, nil
}
