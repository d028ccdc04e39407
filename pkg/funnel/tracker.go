package funnel

import (
	"context"
	"sync"
	"time"

	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/common/models"
)

type Stage string

const (
	StagePageView        Stage = "page_view"
	StageFormStart       Stage = "form_start"
	StageFormStep1Submit Stage = "form_step1_submit"
	StageFormStep2View   Stage = "form_step2_view"
	StageFormStep2Submit Stage = "form_step2_submit"
	StageFormComplete    Stage = "form_complete"
	StageFormBlocked     Stage = "form_blocked"
	StageFormError       Stage = "form_error"
	StageChatStart       Stage = "chat_start"
	StageChatMessage     Stage = "chat_message"
	StageChatBlocked     Stage = "chat_blocked"
	StageChatError       Stage = "chat_error"
)

// Event is aggregate-only: no contact details or free text.
type Event struct {
	Stage         Stage
	SessionID     string
	Page          string
	UTMSource     string
	UTMMedium     string
	UTMCampaign   string
	Language      string
	Country       string
	TreatmentType string
	Duration      time.Duration
	DropReason    string
}

func (e Event) data() map[string]interface{} {
	out := map[string]interface{}{"stage": string(e.Stage)}
	add := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	add("session_id", e.SessionID)
	add("page", e.Page)
	add("utm_source", e.UTMSource)
	add("utm_medium", e.UTMMedium)
	add("utm_campaign", e.UTMCampaign)
	add("language", e.Language)
	add("country", e.Country)
	add("treatment_type", e.TreatmentType)
	add("drop_reason", e.DropReason)
	if e.Duration > 0 {
		out["duration_seconds"] = e.Duration.Seconds()
	}
	return out
}

// Tracker publishes funnel events off the request path. A nil Tracker or
// a nil publisher only logs.
type Tracker struct {
	publisher kafka.Publisher
	source    string
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewTracker(publisher kafka.Publisher) *Tracker {
	return &Tracker{publisher: publisher, source: "concierge-api", timeout: 5 * time.Second}
}

func (t *Tracker) Track(e Event) {
	data := e.data()
	logger.Log.WithFields(data).Info("funnel event")
	if t == nil || t.publisher == nil {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.publisher.PublishEvent(ctx, models.EventTypeFunnel, t.source, data); err != nil {
			logger.Log.WithError(err).WithField("stage", e.Stage).Warn("failed to publish funnel event")
		}
	}()
}

func (t *Tracker) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}
