package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/common/models"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Type string

const (
	TypeHighErrorRate      Type = "high_error_rate"
	TypeHighBlockRate      Type = "high_block_rate"
	TypeSpamAttack         Type = "spam_attack"
	TypeEncryptionFailures Type = "encryption_failures"
	TypeHighPriorityLead   Type = "high_priority_lead"
)

type Alert struct {
	Type         Type                   `json:"type"`
	Severity     Severity               `json:"severity"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Threshold    int                    `json:"threshold"`
	CurrentValue int                    `json:"current_value"`
	Timestamp    time.Time              `json:"timestamp"`
}

type LeadInfo struct {
	InquiryID     int64
	PriorityScore int
	Country       string
	TreatmentType string
}

// Monitor turns error, block and encryption-failure counts into alerts.
// Alerting never fails the caller.
type Monitor struct {
	counter    *Counter
	thresholds Thresholds
	publisher  kafka.Publisher
	source     string
}

func NewMonitor(counter *Counter, thresholds Thresholds, publisher kafka.Publisher) *Monitor {
	if counter == nil {
		counter = NewCounter()
	}
	return &Monitor{counter: counter, thresholds: thresholds, publisher: publisher, source: "concierge-api"}
}

func (m *Monitor) Counter() *Counter {
	return m.counter
}

// RecordError counts a server error for api.
func (m *Monitor) RecordError(ctx context.Context, api string) *Alert {
	if m == nil {
		return nil
	}
	band := m.thresholds.ErrorRate
	count := m.counter.Increment("errors:"+api, band.Window)
	details := map[string]interface{}{"api": api, "window": band.Window.String()}

	switch {
	case count >= band.Critical:
		return m.emit(ctx, TypeHighErrorRate, SeverityCritical, fmt.Sprintf("Critical: %d errors in last %s", count, band.Window), band.Critical, count, details)
	case count >= band.Warning:
		return m.emit(ctx, TypeHighErrorRate, SeverityWarning, fmt.Sprintf("Warning: %d errors in last %s", count, band.Window), band.Warning, count, details)
	}
	return nil
}

// RecordBlock counts a rate-limit rejection.
func (m *Monitor) RecordBlock(ctx context.Context) *Alert {
	if m == nil {
		return nil
	}
	band := m.thresholds.BlockRate
	count := m.counter.Increment("blocks", band.Window)

	switch {
	case count >= band.Critical:
		return m.emit(ctx, TypeSpamAttack, SeverityCritical, fmt.Sprintf("Potential spam attack: %d blocks in last %s", count, band.Window), band.Critical, count,
			map[string]interface{}{"window": band.Window.String(), "action": "Consider tightening rate limits"})
	case count >= band.Warning:
		return m.emit(ctx, TypeHighBlockRate, SeverityWarning, fmt.Sprintf("High block rate: %d blocks in last %s", count, band.Window), band.Warning, count,
			map[string]interface{}{"window": band.Window.String()})
	}
	return nil
}

func (m *Monitor) RecordEncryptionFailure(ctx context.Context) *Alert {
	if m == nil {
		return nil
	}
	band := m.thresholds.EncryptionFailures
	count := m.counter.Increment("encryption_failures", band.Window)

	switch {
	case count >= band.Critical:
		return m.emit(ctx, TypeEncryptionFailures, SeverityCritical, fmt.Sprintf("Critical: %d consecutive encryption failures", count), band.Critical, count,
			map[string]interface{}{"action": "Check ENCRYPTION_KEY_V1"})
	case count >= band.Warning:
		return m.emit(ctx, TypeEncryptionFailures, SeverityWarning, fmt.Sprintf("Warning: %d encryption failures", count), band.Warning, count, nil)
	}
	return nil
}

func (m *Monitor) HighPriorityLead(ctx context.Context, lead LeadInfo) *Alert {
	if m == nil {
		return nil
	}
	min := m.thresholds.HighPriorityLead.MinScore
	if lead.PriorityScore < min {
		return nil
	}
	return m.emit(ctx, TypeHighPriorityLead, SeverityInfo, fmt.Sprintf("High-priority lead received (score: %d)", lead.PriorityScore), min, lead.PriorityScore,
		map[string]interface{}{
			"inquiry_id": lead.InquiryID,
			"score":      lead.PriorityScore,
			"country":    lead.Country,
			"treatment":  lead.TreatmentType,
			"action":     "Review and respond promptly",
		})
}

func (m *Monitor) emit(ctx context.Context, typ Type, sev Severity, msg string, threshold, current int, details map[string]interface{}) *Alert {
	alert := &Alert{
		Type:         typ,
		Severity:     sev,
		Message:      msg,
		Details:      details,
		Threshold:    threshold,
		CurrentValue: current,
		Timestamp:    m.counter.now().UTC(),
	}

	metrics.AlertsEmitted.WithLabelValues(string(typ), string(sev)).Inc()

	entry := logger.Log.WithFields(map[string]interface{}{
		"alert_type":    typ,
		"severity":      sev,
		"threshold":     threshold,
		"current_value": current,
		"details":       details,
	})
	if sev == SeverityCritical {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}

	if m.publisher != nil {
		data := map[string]interface{}{
			"type":          string(typ),
			"severity":      string(sev),
			"message":       msg,
			"threshold":     threshold,
			"current_value": current,
			"details":       details,
		}
		if err := m.publisher.PublishEvent(ctx, models.EventTypeOperationalAlert, m.source, data); err != nil {
			logger.Log.WithError(err).WithField("alert_type", typ).Warn("failed to publish operational alert")
		}
	}
	return alert
}
