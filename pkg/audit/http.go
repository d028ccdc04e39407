package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
)

type Lister interface {
	List(ctx context.Context, f Filter) ([]Record, int64, error)
}

type Handler struct {
	logs Lister
}

func NewHandler(logs Lister) *Handler {
	return &Handler{logs: logs}
}

// Register mounts the handler on an admin-gated router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/audit-logs", h.handleList).Methods(http.MethodGet)
}

type logView struct {
	ID         int64                  `json:"id"`
	Action     string                 `json:"action"`
	InquiryIDs []int64                `json:"inquiry_ids"`
	AdminEmail *string                `json:"admin_email"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

type listResponse struct {
	OK     bool      `json:"ok"`
	Logs   []logView `json:"logs"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Action:     strings.TrimSpace(q.Get("action")),
		AdminEmail: strings.TrimSpace(q.Get("admin_email")),
		Limit:      api.ClampLimit(api.QueryInt(r, "limit", 50), 50, 200),
		Offset:     api.QueryInt(r, "offset", 0),
	}

	var err error
	if f.From, err = parseDate(q.Get("from_date"), false); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_from_date")
		return
	}
	if f.To, err = parseDate(q.Get("to_date"), true); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_to_date")
		return
	}

	rows, total, err := h.logs.List(r.Context(), f)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list audit logs")
		api.WriteError(w, http.StatusInternalServerError, "audit_logs_fetch_failed")
		return
	}

	views := make([]logView, 0, len(rows))
	for _, row := range rows {
		ids := []int64(row.InquiryIDs)
		if ids == nil {
			ids = []int64{}
		}
		views = append(views, logView{
			ID:         row.ID,
			Action:     row.Action,
			InquiryIDs: ids,
			AdminEmail: row.AdminEmail,
			Metadata:   row.Metadata,
			CreatedAt:  row.CreatedAt,
		})
	}

	api.WriteJSON(w, http.StatusOK, listResponse{
		OK:     true,
		Logs:   views,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// parseDate accepts RFC3339 or a bare date. A bare to_date covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
