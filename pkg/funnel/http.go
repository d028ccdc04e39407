package funnel

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
)

type Handler struct {
	events EventStore
}

func NewHandler(events EventStore) *Handler {
	return &Handler{events: events}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/inquiries/event", h.handleEvent).Methods(http.MethodPost)
}

type eventRequest struct {
	EventType string      `json:"eventType"`
	InquiryID interface{} `json:"inquiryId"`
	Meta      interface{} `json:"meta"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = eventRequest{}
	}

	typ := EventType(req.EventType)
	if !typ.Valid() {
		api.WriteJSON(w, http.StatusBadRequest, api.Error{Error: "invalid_event_type", Allowed: AllowedEventTypes})
		return
	}

	var inquiryID *int64
	if id, ok := api.ParseID(req.InquiryID); ok && id > 0 {
		inquiryID = &id
	}
	if typ.RequiresInquiryID() && inquiryID == nil {
		api.WriteError(w, http.StatusBadRequest, "inquiry_id_required")
		return
	}

	meta, ok := req.Meta.(map[string]interface{})
	if !ok {
		meta = map[string]interface{}{}
	}

	if err := h.events.Insert(r.Context(), &InquiryEvent{
		InquiryID: inquiryID,
		EventType: string(typ),
		Meta:      meta,
	}); err != nil {
		logger.Log.WithError(err).WithField("event_type", typ).Error("failed to insert inquiry event")
		api.WriteError(w, http.StatusInternalServerError, "event_insert_failed")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
