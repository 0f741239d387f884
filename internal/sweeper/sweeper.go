// Package sweeper reconciles stored auction status with the clock: it ends
// expired auctions, notifying the winner and the seller, and opens auctions
// whose start time has passed.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"auction-house/internal/clock"
	model "auction-house/internal/models"
	"auction-house/internal/notify"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// DefaultInterval is how often Run sweeps when no interval is configured
const DefaultInterval = time.Minute

// Report summarises one sweep
type Report struct {
	Ended   int
	Started int
	Failed  int
}

// Sweeper finalizes auctions on a fixed interval
type Sweeper struct {
	store    repository.AuctionStore
	notifier notify.Publisher
	clock    clock.Clock
	interval time.Duration
}

// New creates a Sweeper. A non-positive interval falls back to DefaultInterval.
func New(store repository.AuctionStore, notifier notify.Publisher, clk clock.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:    store,
		notifier: notifier,
		clock:    clk,
		interval: interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	utils.Info("sweeper: started", map[string]any{"interval": s.interval.String()})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			utils.Info("sweeper: stopped", nil)
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	report, err := s.SweepOnce(ctx)
	if err != nil {
		utils.Error("sweeper: sweep failed", map[string]any{"error": err.Error()})
		return
	}
	fields := map[string]any{
		"ended":   report.Ended,
		"started": report.Started,
		"failed":  report.Failed,
	}
	if report.Ended+report.Started+report.Failed == 0 {
		utils.Debug("sweeper: nothing to do", fields)
		return
	}
	utils.Info("sweeper: sweep finished", fields)
}

// SweepOnce performs a single reconciliation pass against one snapshot of now.
// Only the initial listing can fail the pass; a failure on one auction is
// logged and counted while the rest are still processed.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	now := s.clock.Now()

	stale, err := s.store.ListStaleAuctions(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("sweeper: list stale auctions: %w", err)
	}

	var report Report
	for _, auction := range stale {
		if ctx.Err() != nil {
			break
		}
		switch clock.ResolveStatus(auction.StartTime, auction.EndTime, now) {
		case model.StatusEnded:
			done, err := s.finalize(ctx, auction, now)
			if err != nil {
				report.Failed++
				utils.Error("sweeper: failed to finalize auction", map[string]any{
					"auction_id": auction.ID,
					"error":      err.Error(),
				})
				continue
			}
			if done {
				report.Ended++
			}
		case model.StatusActive:
			done, err := s.open(ctx, auction, now)
			if err != nil {
				report.Failed++
				utils.Error("sweeper: failed to open auction", map[string]any{
					"auction_id": auction.ID,
					"error":      err.Error(),
				})
				continue
			}
			if done {
				report.Started++
			}
		}
	}
	return report, nil
}

// finalize ends one auction. Notifications go out only if this call made the
// transition, and name the winner as stored by it, so a bid committed after
// the listing is never announced to the wrong user.
func (s *Sweeper) finalize(ctx context.Context, auction model.Auction, now time.Time) (bool, error) {
	ended, changed, err := s.store.TransitionStatus(ctx, auction.ID, auction.Status, model.StatusEnded, now)
	if err != nil || !changed {
		return false, err
	}

	utils.Info("sweeper: auction ended", map[string]any{
		"auction_id": ended.ID,
		"title":      ended.Title,
	})
	notify.AuctionEnded(s.notifier, ended, now)
	return true, nil
}

func (s *Sweeper) open(ctx context.Context, auction model.Auction, now time.Time) (bool, error) {
	opened, changed, err := s.store.TransitionStatus(ctx, auction.ID, auction.Status, model.StatusActive, now)
	if err != nil || !changed {
		return false, err
	}

	notify.AuctionStarted(s.notifier, opened, now)
	return true, nil
}
