package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCityFailureRate AlertType = "city_failure_rate"
	AlertEmptyGrid       AlertType = "empty_grid"
)

// minCitiesForRate keeps a single failed city from tripping the rate alert.
const minCitiesForRate = 3

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
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.CitiesTotal >= minCitiesForRate && snap.FailRate > a.cfg.FailureRateThreshold {
		stages := make(map[string]int, len(snap.FailedByStage))
		for st, n := range snap.FailedByStage {
			stages[string(st)] = n
		}
		alerts = append(alerts, Alert{
			Type:     AlertCityFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"City failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.CitiesFailed, snap.CitiesTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate":       snap.FailRate,
				"threshold":       a.cfg.FailureRateThreshold,
				"failed":          snap.CitiesFailed,
				"total":           snap.CitiesTotal,
				"failed_by_stage": stages,
			},
			Timestamp: now,
		})
	}

	if len(snap.EmptyGrids) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertEmptyGrid,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d city run(s) produced an empty grid in last %dh: %s",
				len(snap.EmptyGrids), snap.LookbackHours, strings.Join(snap.EmptyGrids, ", "),
			),
			Details: map[string]any{
				"cities": snap.EmptyGrids,
			},
			Timestamp: now,
		})
	}

	return alerts
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

// Check collects a snapshot, evaluates it, and sends any alerts.
func Check(ctx context.Context, c *Collector, a *Alerter, lookbackHours int) (*MetricsSnapshot, []Alert, error) {
	snap, err := c.Collect(ctx, lookbackHours)
	if err != nil {
		return nil, nil, err
	}
	alerts := a.Evaluate(snap)
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: no alerts triggered")
		return snap, nil, nil
	}
	sent := a.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return snap, alerts, nil
}
