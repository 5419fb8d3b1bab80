package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting session health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Int("stalled_paused_hours", c.cfg.StalledPausedHours),
	)

	// Sweep once at startup so a paused backlog surfaces before the first
	// tick, then on every interval.
	c.sweep(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session health checker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx, log)
		}
	}
}

func (c *Checker) sweep(ctx context.Context, log *zap.Logger) {
	stalledAfter := time.Duration(c.cfg.StalledPausedHours) * time.Hour
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours, stalledAfter)
	if err != nil {
		log.Error("monitoring: failed to collect session metrics", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: sessions healthy",
			zap.Int("sessions", snap.SessionsTotal),
			zap.Int("subjects_processed", snap.SubjectsProcessed),
			zap.Float64("subject_fail_rate", snap.SubjectFailRate),
			zap.Float64("total_cost_usd", snap.TotalCostUSD),
		)
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: session sweep complete",
		zap.Int("sessions", snap.SessionsTotal),
		zap.Int("stalled_paused", snap.StalledPaused),
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
