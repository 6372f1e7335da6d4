package main

import (
	"context"
	"time"

	"RelayGate/internal/biz"
	"RelayGate/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// auditRetention is how long audit rows are kept before the nightly purge.
const auditRetention = 30 * 24 * time.Hour

// MaintenanceCron runs the periodic housekeeping jobs: pruning expired
// sliding-window entries for keys that went quiet, and purging old audit rows.
type MaintenanceCron struct {
	c *cron.Cron
}

// StartMaintenanceCron registers and starts the housekeeping jobs.
// Window pruning runs every 5 minutes; audit purge runs nightly at 03:00.
// The returned cleanup stops the scheduler and waits for running jobs.
func StartMaintenanceCron(limiter *biz.RateLimiterUseCase, audit *data.AuditLoggerImpl, logger log.Logger) (*MaintenanceCron, func()) {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 */5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pruned, err := limiter.PruneIdle(ctx)
		if err != nil {
			helper.Errorw("msg", "window prune failed", "error", err)
			return
		}
		if pruned > 0 {
			helper.Infow("msg", "pruned idle window entries", "count", pruned)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register window prune cron job", "error", err)
	}

	_, err = c.AddFunc("0 0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		purged, err := audit.PurgeOlderThan(ctx, time.Now().Add(-auditRetention))
		if err != nil {
			helper.Errorw("msg", "audit purge failed", "error", err)
			return
		}
		if purged > 0 {
			helper.Infow("msg", "purged old audit rows", "count", purged)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register audit purge cron job", "error", err)
	}

	c.Start()
	helper.Info("maintenance cron started: window prune every 5m, audit purge nightly")

	m := &MaintenanceCron{c: c}
	return m, m.Stop
}

// Stop halts the scheduler and waits for running jobs to finish.
func (m *MaintenanceCron) Stop() {
	if m.c != nil {
		<-m.c.Stop().Done()
	}
}
