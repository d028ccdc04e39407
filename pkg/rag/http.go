package rag

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/inquiry"
	"github.com/healo-ai/concierge/pkg/security"
)

const recentInquiryLimit = 50

type RecentInquiries interface {
	Recent(ctx context.Context, limit int) ([]inquiry.Inquiry, error)
}

type Handler struct {
	ingestor  *Ingestor
	searcher  *Searcher
	inquiries RecentInquiries
	cipher    *security.Cipher
}

func NewHandler(ingestor *Ingestor, searcher *Searcher, inquiries RecentInquiries, cipher *security.Cipher) *Handler {
	return &Handler{ingestor: ingestor, searcher: searcher, inquiries: inquiries, cipher: cipher}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/rag/search", h.search).Methods(http.MethodPost)
}

// RegisterAdmin mounts ingest and the inquiry feed next to search, each
// wrapped by guard.
func (h *Handler) RegisterAdmin(r *mux.Router, guard func(http.Handler) http.Handler) {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	r.Handle("/rag/ingest", guard(http.HandlerFunc(h.ingest))).Methods(http.MethodPost)
	r.Handle("/rag/inquiries", guard(http.HandlerFunc(h.recent))).Methods(http.MethodGet)
}

type ingestRequest struct {
	SourceTypes []string    `json:"sourceTypes"`
	SourceID    interface{} `json:"source_id"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = ingestRequest{}
	}
	types := make([]SourceType, 0, len(req.SourceTypes))
	for _, st := range req.SourceTypes {
		types = append(types, SourceType(st))
	}

	results, err := h.ingestor.Ingest(r.Context(), types, api.String(req.SourceID))
	if err != nil {
		logger.Log.WithError(err).Error("rag ingestion failed")
		api.WriteError(w, http.StatusInternalServerError, "ingest_failed")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "results": results})
}

type searchRequest struct {
	Query       interface{} `json:"query"`
	Lang        interface{} `json:"lang"`
	SourceTypes []string    `json:"sourceTypes"`
	Limit       interface{} `json:"limit"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = searchRequest{}
	}
	q := Query{
		Query:       api.String(req.Query),
		Lang:        api.String(req.Lang),
		SourceTypes: req.SourceTypes,
	}
	if q.Query == "" {
		api.WriteError(w, http.StatusBadRequest, "query_required")
		return
	}
	if limit, ok := api.ParseID(req.Limit); ok {
		q.Limit = int(limit)
	}

	hits, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		logger.Log.WithError(err).Error("rag search failed")
		api.WriteError(w, http.StatusInternalServerError, "search_failed")
		return
	}
	if hits == nil {
		hits = []Hit{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"results": hits,
		"scoring": ScoringDescription,
	})
}

type inquiryRow struct {
	ID            int64  `json:"id"`
	TreatmentType string `json:"treatment_type"`
	Email         string `json:"email"`
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	rows, err := h.inquiries.Recent(r.Context(), recentInquiryLimit)
	if err != nil {
		logger.Log.WithError(err).Error("recent inquiries fetch failed")
		api.WriteError(w, http.StatusInternalServerError, "fetch_failed")
		return
	}

	out := make([]inquiryRow, 0, len(rows))
	for _, row := range rows {
		email := ""
		if row.Email != nil {
			email = security.MaskEmail(h.cipher.DecryptField("email", *row.Email))
		}
		out = append(out, inquiryRow{ID: row.ID, TreatmentType: row.TreatmentType, Email: email})
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "rows": out})
}
