package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/config"
)

// Checker evaluates ledger health once, or on an interval while serving.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitorConfig

	// active holds the alerts posted by the previous tick, keyed by
	// alertKey, so a condition that persists is posted once.
	active map[string]bool
}

// NewChecker creates a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitorConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[string]bool),
	}
}

// Check collects one snapshot, evaluates it and posts every alert.
func (c *Checker) Check(ctx context.Context) (*MetricsSnapshot, []Alert, error) {
	snap, alerts, err := c.evaluate(ctx)
	if err != nil {
		return nil, nil, err
	}
	c.alerter.SendAlerts(ctx, alerts)
	return snap, alerts, nil
}

func (c *Checker) evaluate(ctx context.Context) (*MetricsSnapshot, []Alert, error) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackRuns)
	if err != nil {
		return nil, nil, err
	}
	return snap, c.alerter.Evaluate(snap), nil
}

// Run checks immediately and then every monitor.check_interval_secs until
// ctx is cancelled. Unlike Check, it only posts alerts that were not
// active on the previous tick.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: starting ledger checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_runs", c.cfg.LookbackRuns),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.tick(ctx, log)
		select {
		case <-ctx.Done():
			log.Info("monitoring: ledger checker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) tick(ctx context.Context, log *zap.Logger) {
	_, alerts, err := c.evaluate(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	fresh := c.rotate(alerts)
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("active", len(alerts)))
		return
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: new alerts",
		zap.Int("triggered", len(fresh)),
		zap.Int("sent", sent),
	)
}

// rotate replaces the active set with alerts and returns the ones that
// were not active before.
func (c *Checker) rotate(alerts []Alert) []Alert {
	next := make(map[string]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		key := alertKey(a)
		next[key] = true
		if !c.active[key] {
			fresh = append(fresh, a)
		}
	}
	c.active = next
	return fresh
}

// alertKey identifies the condition behind an alert. The stale-history
// message counts days, so the key uses the reference date instead.
func alertKey(a Alert) string {
	switch a.Type {
	case AlertLastRunFailed:
		return fmt.Sprintf("%s:%v", a.Type, a.Details["error"])
	case AlertStaleHistory:
		return fmt.Sprintf("%s:%v", a.Type, a.Details["latest_reference"])
	default:
		return string(a.Type)
	}
}
