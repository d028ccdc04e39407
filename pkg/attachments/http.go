package attachments

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/ratelimit"
)

type Handler struct {
	service *Service
	limiter *ratelimit.Limiter
}

func NewHandler(service *Service, limiter *ratelimit.Limiter) *Handler {
	return &Handler{service: service, limiter: limiter}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/attachments/sign", h.sign).Methods(http.MethodPost)
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		res := h.limiter.Check(r.Context(), ratelimit.ClientIP(r), ratelimit.Inquiry)
		if !res.Allowed {
			ratelimit.Reject(w, res, "rate_limit_exceeded")
			return
		}
	}

	var req SignRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = SignRequest{}
	}

	signed, err := h.service.Sign(r.Context(), req)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = &Error{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
		}
		entry := logger.Log.WithFields(map[string]interface{}{
			"code":       e.Code,
			"inquiry_id": api.String(req.InquiryID),
		})
		if e.Status >= http.StatusInternalServerError {
			entry.WithError(e.Err).Error("attachment signing failed")
		} else {
			entry.Warn("attachment signing refused")
		}
		api.WriteError(w, e.Status, e.Code)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "signedUrl": signed})
}
