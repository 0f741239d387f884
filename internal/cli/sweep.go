package cli

import (
	"context"
	"fmt"

	"auction-house/utils"

	"github.com/spf13/cobra"
)

// sweepCmd runs a single sweeper pass, for cron-driven deployments
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one pass of the auction sweeper and exit",
	Long: `Run one pass of the auction sweeper: auctions past their end time are
closed and their winner and seller notified, and upcoming auctions whose
start time has passed are opened.

Notifications only reach subscribers of this process, so this command is
meant for stores shared with a running server that also sweeps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(contextOrBackground(cmd.Context()))
	},
}

func runSweep(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	a, err := newApp(cfg, backend)
	if err != nil {
		return err
	}

	report, err := a.sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}

	utils.Info("sweep finished", map[string]any{
		"ended":   report.Ended,
		"started": report.Started,
		"failed":  report.Failed,
	})
	if report.Failed > 0 {
		return fmt.Errorf("sweep: %d auctions could not be updated", report.Failed)
	}
	return nil
}
