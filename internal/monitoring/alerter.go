package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/config"
	"github.com/sells-group/surveillance-cli/internal/model"
	"github.com/sells-group/surveillance-cli/internal/store"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertLastRunFailed  AlertType = "last_run_failed"
	AlertStaleHistory   AlertType = "stale_history"
)

// minFinishedRuns is the fewest finished runs before a failure rate counts.
const minFinishedRuns = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %d runs)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackRuns,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.LastRunStatus == store.RunFailed {
		alerts = append(alerts, Alert{
			Type:      AlertLastRunFailed,
			Severity:  "medium",
			Message:   "Most recent update run failed: " + snap.LastRunError,
			Details:   map[string]any{"error": snap.LastRunError},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterDays > 0 {
		if alert, ok := a.stale(snap); ok {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

// stale reports a history whose newest merged bulletin is older than
// StaleAfterDays, or a ledger with no merged bulletin at all.
func (a *Alerter) stale(snap *MetricsSnapshot) (Alert, bool) {
	limit := time.Duration(a.cfg.StaleAfterDays) * 24 * time.Hour
	latest, ok := model.ParseDate(snap.LatestReference)
	if !ok {
		if snap.Runs == 0 {
			return Alert{}, false
		}
		return Alert{
			Type:      AlertStaleHistory,
			Severity:  "high",
			Message:   "No bulletin has been merged yet",
			Timestamp: snap.CollectedAt,
		}, true
	}

	age := snap.CollectedAt.Sub(latest)
	if age <= limit {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertStaleHistory,
		Severity: "high",
		Message: fmt.Sprintf(
			"Newest merged bulletin is for the week of %s, %d days ago (threshold %d)",
			snap.LatestReference, int(age.Hours()/24), a.cfg.StaleAfterDays,
		),
		Details: map[string]any{
			"latest_reference": snap.LatestReference,
			"stale_after_days": a.cfg.StaleAfterDays,
		},
		Timestamp: snap.CollectedAt,
	}, true
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
