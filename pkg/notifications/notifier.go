package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
	"github.com/healo-ai/concierge/pkg/oplog"
)

const (
	notifyCooldown  = time.Minute
	cooldownEntries = 1000
)

// Notifier sends one message per active recipient. It never fails the
// caller: every outcome ends up in logs, metrics and inquiry_events.
type Notifier struct {
	directory    *Directory
	provider     Provider
	events       funnel.EventStore
	dashboardURL string
	recent       *expirable.LRU[int64, time.Time]
}

func NewNotifier(directory *Directory, provider Provider, events funnel.EventStore, dashboardURL string) *Notifier {
	return &Notifier{
		directory:    directory,
		provider:     provider,
		events:       events,
		dashboardURL: dashboardURL,
		recent:       expirable.NewLRU[int64, time.Time](cooldownEntries, nil, notifyCooldown),
	}
}

// Summary counts per-recipient outcomes of one Notify call.
type Summary struct {
	Skipped bool
	Sent    int
	Failed  int
}

func (n *Notifier) Notify(ctx context.Context, p Payload) (summary Summary) {
	defer func() {
		if rec := recover(); rec != nil {
			oplog.Error(oplog.Event{
				Event:   oplog.AdminNotifyCritical,
				Reason:  fmt.Sprint(rec),
				Context: map[string]interface{}{"inquiry_id": p.InquiryID},
			})
		}
	}()

	if last, ok := n.recent.Get(p.InquiryID); ok {
		logger.Log.WithFields(map[string]interface{}{
			"inquiry_id": p.InquiryID,
			"sent_ago":   time.Since(last).Round(time.Second).String(),
		}).Info("admin notification skipped (cooldown)")
		return Summary{Skipped: true}
	}
	n.recent.Add(p.InquiryID, time.Now())

	targets := n.directory.Active(ctx)
	if len(targets) == 0 {
		logger.Log.WithField("inquiry_id", p.InquiryID).Warn("no admin notification recipients configured")
		return summary
	}

	message := BuildMessage(p, n.dashboardURL)
	for _, target := range targets {
		messageID, err := n.provider.Send(ctx, target.Phone, message)
		success := err == nil
		n.directory.RecordResult(ctx, target, success)

		meta := map[string]interface{}{
			"provider":         n.provider.Name(),
			"recipient_source": target.Source,
			"masked_to":        MaskPhone(target.Phone),
		}
		if target.ID != "" {
			meta["recipient_id"] = target.ID
		}

		if success {
			summary.Sent++
			metrics.NotificationsSent.WithLabelValues(n.provider.Name(), "sent").Inc()
			meta["message_id"] = messageID
			n.logEvent(ctx, p.InquiryID, string(oplog.AdminNotified), meta)
			oplog.Info(oplog.Event{Event: oplog.AdminNotified, Context: withInquiry(meta, p.InquiryID)})
			continue
		}

		summary.Failed++
		metrics.NotificationsSent.WithLabelValues(n.provider.Name(), "failed").Inc()
		meta["error"] = err.Error()
		n.logEvent(ctx, p.InquiryID, string(oplog.AdminNotifyFailed), meta)
		oplog.Warn(oplog.Event{Event: oplog.AdminNotifyFailed, Reason: err.Error(), Context: withInquiry(meta, p.InquiryID)})
	}

	logger.Log.WithFields(map[string]interface{}{
		"inquiry_id": p.InquiryID,
		"sent":       summary.Sent,
		"failed":     summary.Failed,
		"source":     targets[0].Source,
	}).Info("admin notification finished")
	return summary
}

func (n *Notifier) logEvent(ctx context.Context, inquiryID int64, eventType string, meta map[string]interface{}) {
	if n.events == nil {
		return
	}
	id := inquiryID
	if err := n.events.Insert(ctx, &funnel.InquiryEvent{
		InquiryID: &id,
		EventType: eventType,
		Meta:      meta,
	}); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to record notification event")
	}
}

func withInquiry(meta map[string]interface{}, inquiryID int64) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["inquiry_id"] = inquiryID
	return out
}
