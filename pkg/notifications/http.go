package notifications

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
)

// Handler serves the recipient admin screens. Mount it on the admin-gated
// subrouter.
type Handler struct {
	store RecipientStore
}

func NewHandler(store RecipientStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/notification-recipients", h.list).Methods(http.MethodGet)
	r.HandleFunc("/notification-recipients", h.create).Methods(http.MethodPost)
	r.HandleFunc("/notification-recipients/{id}", h.update).Methods(http.MethodPatch)
	r.HandleFunc("/notification-recipients/{id}", h.remove).Methods(http.MethodDelete)
}

type recipientView struct {
	Recipient
	Phone string `json:"phone"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.List(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list notification recipients")
		api.WriteError(w, http.StatusInternalServerError, "fetch_failed")
		return
	}

	views := make([]recipientView, 0, len(rows))
	for _, row := range rows {
		views = append(views, recipientView{Recipient: row, Phone: MaskPhone(row.Phone)})
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "recipients": views})
}

type createRequest struct {
	Label   string  `json:"label"`
	Phone   string  `json:"phone"`
	Channel string  `json:"channel"`
	Notes   *string `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := api.DecodeBody(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req.Label = strings.TrimSpace(req.Label)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.Label == "" || req.Phone == "" {
		api.WriteError(w, http.StatusBadRequest, "label_and_phone_required")
		return
	}
	if !ValidE164(req.Phone) {
		api.WriteErrorDetail(w, http.StatusBadRequest, "invalid_phone_format", "phone must be E.164, e.g. +821012345678")
		return
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = ChannelSMS
	}

	rec := &Recipient{Label: req.Label, Phone: req.Phone, Channel: channel, Notes: req.Notes}
	if err := h.store.Create(r.Context(), rec); err != nil {
		logger.Log.WithError(err).Error("failed to create notification recipient")
		api.WriteError(w, http.StatusInternalServerError, "insert_failed")
		return
	}

	logger.Log.WithFields(map[string]interface{}{
		"recipient_id": rec.ID,
		"masked_phone": MaskPhone(rec.Phone),
	}).Info("notification recipient added")
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": rec.ID})
}

type updateRequest struct {
	Label    *string `json:"label"`
	IsActive *bool   `json:"is_active"`
	Notes    *string `json:"notes"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateRequest
	if err := api.DecodeBody(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Label != nil {
		trimmed := strings.TrimSpace(*req.Label)
		if trimmed == "" {
			api.WriteError(w, http.StatusBadRequest, "label_and_phone_required")
			return
		}
		req.Label = &trimmed
	}

	err := h.store.Update(r.Context(), id, RecipientPatch{Label: req.Label, IsActive: req.IsActive, Notes: req.Notes})
	h.writeMutation(w, id, err, "update_failed")
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.store.SoftDelete(r.Context(), id)
	h.writeMutation(w, id, err, "delete_failed")
}

func (h *Handler) writeMutation(w http.ResponseWriter, id string, err error, code string) {
	switch {
	case err == nil:
		api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "recipient_not_found")
	default:
		logger.Log.WithError(err).WithField("recipient_id", id).Error("notification recipient write failed")
		api.WriteError(w, http.StatusInternalServerError, code)
	}
}
