// Package jobs runs the economy's background schedule: bot ticks, the
// treasury daily reset, and idempotency-record garbage collection.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/amberforum/economy/internal/bots"
	"github.com/amberforum/economy/internal/metrics"
	"github.com/amberforum/economy/pkg/economy"
)

const (
	dailyResetSpec = "0 0 * * *"
	purgeSpec      = "30 3 * * *"
)

// Scheduler owns the cron instance driving periodic economy work.
type Scheduler struct {
	cron         *cron.Cron
	ledger       *economy.Service
	botService   *bots.Service
	logger       *zap.Logger
	tickInterval time.Duration
}

// NewScheduler wires the background schedule. tickInterval controls how
// often bots act; resets run on fixed UTC boundaries.
func NewScheduler(ledger *economy.Service, botService *bots.Service, tickInterval time.Duration, logger *zap.Logger) *Scheduler {
	if tickInterval < time.Minute {
		tickInterval = time.Minute
	}
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		ledger:       ledger,
		botService:   botService,
		logger:       logger,
		tickInterval: tickInterval,
	}
}

// Start registers all jobs and starts the cron loop.
func (scheduler *Scheduler) Start(ctx context.Context) error {
	tickSpec := fmt.Sprintf("@every %s", scheduler.tickInterval)
	if _, err := scheduler.cron.AddFunc(tickSpec, func() {
		report, err := scheduler.botService.RunTick(ctx)
		if err != nil {
			scheduler.logger.Error("bot tick failed", zap.Error(err))
			return
		}
		metrics.TickDuration.Observe(report.Duration.Seconds())
	}); err != nil {
		return err
	}

	if _, err := scheduler.cron.AddFunc(dailyResetSpec, func() {
		reset, err := scheduler.ledger.ResetTreasuryDay(ctx)
		if err != nil {
			scheduler.logger.Error("treasury daily reset failed", zap.Error(err))
			return
		}
		scheduler.logger.Info("treasury daily reset", zap.Bool("reset", reset))
	}); err != nil {
		return err
	}

	if _, err := scheduler.cron.AddFunc(purgeSpec, func() {
		purged, err := scheduler.ledger.PurgeIdempotencyRecords(ctx)
		if err != nil {
			scheduler.logger.Error("idempotency purge failed", zap.Error(err))
			return
		}
		scheduler.logger.Info("idempotency records purged", zap.Int64("purged", purged))
	}); err != nil {
		return err
	}

	scheduler.cron.Start()
	scheduler.logger.Info("job scheduler started", zap.Duration("tick_interval", scheduler.tickInterval))
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (scheduler *Scheduler) Stop() {
	stopContext := scheduler.cron.Stop()
	<-stopContext.Done()
	scheduler.logger.Info("job scheduler stopped")
}
