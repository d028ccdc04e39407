package normalizer

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/alerts"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/oplog"
	"github.com/healo-ai/concierge/pkg/ratelimit"
)

type Handler struct {
	service *Service
	limiter *ratelimit.Limiter
	tracker *funnel.Tracker
	monitor *alerts.Monitor
}

func NewHandler(service *Service, limiter *ratelimit.Limiter, tracker *funnel.Tracker, monitor *alerts.Monitor) *Handler {
	return &Handler{service: service, limiter: limiter, tracker: tracker, monitor: monitor}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/inquiry/normalize", h.normalize).Methods(http.MethodPost)
}

func (h *Handler) normalize(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ClientIP(r)
	if h.limiter != nil {
		res := h.limiter.Check(r.Context(), ip, ratelimit.Normalize)
		if !res.Allowed {
			oplog.Warn(oplog.Event{
				Event:      oplog.RateLimitExceeded,
				API:        r.URL.Path,
				ClientIP:   ip,
				Reason:     "rate_limit_exceeded",
				StatusCode: http.StatusTooManyRequests,
			})
			ratelimit.Reject(w, res, "rate_limit_exceeded")
			return
		}
	}

	var req Request
	if err := api.DecodeBody(r, &req); err != nil {
		req = Request{}
	}

	res, err := h.service.Normalize(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if res.Normalized == nil {
		oplog.Error(oplog.Event{
			Event:      oplog.NormalizeFailed,
			API:        r.URL.Path,
			ClientIP:   ip,
			Reason:     "db_insert_failed",
			StatusCode: http.StatusOK,
		})
		api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "normalized": nil})
		return
	}

	h.tracker.Track(funnel.Event{
		Stage:         funnel.StageFormComplete,
		SessionID:     res.SessionID,
		Page:          res.Page,
		UTMSource:     api.String(res.UTM["source"]),
		UTMMedium:     api.String(res.UTM["medium"]),
		UTMCampaign:   api.String(res.UTM["campaign"]),
		Language:      res.Language,
		Country:       res.Country,
		TreatmentType: res.Treatment,
	})
	oplog.Info(oplog.Event{
		Event:      oplog.NormalizeSuccess,
		API:        r.URL.Path,
		ClientIP:   ip,
		StatusCode: http.StatusOK,
		Context: map[string]interface{}{
			"source_type":    res.SourceType,
			"language":       res.Language,
			"has_inquiry_id": res.Normalized.SourceInquiryID != nil,
		},
	})

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "normalized": res.Normalized})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Status: http.StatusInternalServerError, Code: "normalize_failed", Err: err}
	}

	if e.Status >= http.StatusInternalServerError {
		logger.Log.WithError(e.Err).WithField("code", e.Code).Error("normalize failed")
		event := oplog.NormalizeFailed
		if errors.Is(err, ErrEncryption) {
			event = oplog.EncryptionFailed
			h.monitor.RecordEncryptionFailure(r.Context())
		} else {
			h.monitor.RecordError(r.Context(), r.URL.Path)
		}
		oplog.Error(oplog.Event{
			Event:      event,
			API:        r.URL.Path,
			ClientIP:   ratelimit.ClientIP(r),
			Reason:     e.Code,
			StatusCode: e.Status,
		})
	}
	api.WriteError(w, e.Status, e.Code)
}
