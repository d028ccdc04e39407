package inquiry

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/adminauth"
	"github.com/healo-ai/concierge/pkg/alerts"
	"github.com/healo-ai/concierge/pkg/audit"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/notifications"
	"github.com/healo-ai/concierge/pkg/oplog"
	"github.com/healo-ai/concierge/pkg/ratelimit"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	defaultExportLimit = 1000
	maxExportLimit     = 5000
)

// Notifier queues the new-inquiry alert for admins.
type Notifier interface {
	Enqueue(ctx context.Context, p notifications.Payload)
}

type Options struct {
	Limiter     *ratelimit.Limiter
	Tracker     *funnel.Tracker
	Monitor     *alerts.Monitor
	Notifier    Notifier
	Auditor     *audit.Auditor
	AdminSecret string
}

type Handler struct {
	service *Service
	opts    Options
}

func NewHandler(service *Service, opts Options) *Handler {
	return &Handler{service: service, opts: opts}
}

// Register mounts the public funnel endpoints.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/inquiries/create", h.create).Methods(http.MethodPost)
	r.HandleFunc("/inquiries/intake", h.intake).Methods(http.MethodPost)
	r.HandleFunc("/inquiries/rotate-token", h.rotateToken).Methods(http.MethodPost)
}

// RegisterAdmin mounts the dashboard endpoints on an admin-gated router.
func (h *Handler) RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/inquiries", h.list).Methods(http.MethodGet)
	r.HandleFunc("/inquiries/export", h.export).Methods(http.MethodGet)
	r.HandleFunc("/inquiries/{id}", h.detail).Methods(http.MethodGet)
	r.HandleFunc("/inquiries/{id}", h.update).Methods(http.MethodPatch)
	r.HandleFunc("/inquiries/{id}", h.remove).Methods(http.MethodDelete)
}

// allow applies the INQUIRY rate limit. A refused request is answered here.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.opts.Limiter == nil {
		return true
	}
	ip := ratelimit.ClientIP(r)
	res := h.opts.Limiter.Check(r.Context(), ip, ratelimit.Inquiry)
	if res.Allowed {
		return true
	}

	oplog.Warn(oplog.Event{
		Event:      oplog.RateLimitExceeded,
		API:        r.URL.Path,
		ClientIP:   ip,
		Reason:     "rate_limit_exceeded",
		StatusCode: http.StatusTooManyRequests,
		Context:    map[string]interface{}{"limit": ratelimit.Inquiry.Max, "window": ratelimit.Inquiry.Window.String()},
	})
	h.opts.Monitor.RecordBlock(r.Context())
	h.opts.Tracker.Track(funnel.Event{Stage: funnel.StageFormBlocked, DropReason: "rate_limit_exceeded"})
	ratelimit.Reject(w, res, "rate_limit_exceeded")
	return false
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req CreateRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = CreateRequest{}
	}

	inq, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	oplog.Info(oplog.Event{
		Event:      oplog.InquiryReceived,
		API:        r.URL.Path,
		ClientIP:   ratelimit.ClientIP(r),
		StatusCode: http.StatusOK,
		Context:    map[string]interface{}{"inquiry_id": inq.ID, "source": SourceInquiryForm},
	})
	h.opts.Tracker.Track(funnel.Event{
		Stage:         funnel.StageFormStep1Submit,
		Country:       deref(inq.Nationality),
		Language:      deref(inq.SpokenLanguage),
		TreatmentType: inq.TreatmentType,
	})

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"inquiryId":   inq.ID,
		"publicToken": inq.PublicToken,
	})
}

func (h *Handler) intake(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req IntakeRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = IntakeRequest{}
	}

	inq, err := h.service.Intake(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	oplog.Info(oplog.Event{
		Event:      oplog.InquiryReceived,
		API:        r.URL.Path,
		ClientIP:   ratelimit.ClientIP(r),
		StatusCode: http.StatusOK,
		Context:    map[string]interface{}{"inquiry_id": inq.ID, "step": "intake"},
	})
	h.opts.Tracker.Track(funnel.Event{Stage: funnel.StageFormStep2Submit, TreatmentType: inq.TreatmentType})

	if h.opts.Notifier != nil {
		payload := notifications.Payload{
			InquiryID:     inq.ID,
			Nationality:   deref(inq.Nationality),
			TreatmentType: inq.TreatmentType,
			ContactMethod: deref(inq.ContactMethod),
			LeadQuality:   deref(inq.LeadQuality),
			CreatedAt:     inq.CreatedAt,
		}
		if inq.PriorityScore != nil {
			payload.PriorityScore = *inq.PriorityScore
		}
		h.opts.Notifier.Enqueue(r.Context(), payload)
	}

	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type rotateRequest struct {
	InquiryID   interface{} `json:"inquiryId"`
	AdminSecret string      `json:"adminSecret"`
}

func (h *Handler) rotateToken(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := api.DecodeBody(r, &req); err != nil {
		req = rotateRequest{}
	}

	if h.opts.AdminSecret == "" {
		logger.Log.Error("INTERNAL_ADMIN_SECRET not set, token rotation disabled")
		api.WriteError(w, http.StatusInternalServerError, "admin_secret_not_configured")
		return
	}
	secret := r.Header.Get("X-Admin-Secret")
	if secret == "" {
		secret = req.AdminSecret
	}
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.opts.AdminSecret)) != 1 {
		logger.Log.WithField("client_ip", oplog.MaskIP(ratelimit.ClientIP(r))).Warn("token rotation with invalid admin secret")
		api.WriteError(w, http.StatusForbidden, "invalid_admin_secret")
		return
	}

	token, err := h.service.RotateToken(r.Context(), req.InquiryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.Log.WithField("inquiry_id", api.String(req.InquiryID)).Info("public token rotated")
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "publicToken": token})
}

func listFilter(r *http.Request, def, max int) ListFilter {
	q := r.URL.Query()
	return ListFilter{
		Status:        strings.TrimSpace(q.Get("status")),
		TreatmentType: strings.TrimSpace(q.Get("treatment_type")),
		Nationality:   strings.TrimSpace(q.Get("nationality")),
		Limit:         api.ClampLimit(api.QueryInt(r, "limit", def), def, max),
		Offset:        api.QueryInt(r, "offset", 0),
	}
}

func (f ListFilter) metadata() map[string]interface{} {
	return map[string]interface{}{
		"limit":          f.Limit,
		"offset":         f.Offset,
		"status":         nullable(f.Status),
		"treatment_type": nullable(f.TreatmentType),
		"nationality":    nullable(f.Nationality),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r, defaultListLimit, maxListLimit)
	decrypt := api.QueryBool(r, "decrypt", true)

	rows, total, err := h.service.List(r.Context(), f, decrypt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ids := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	meta := f.metadata()
	meta["decrypt"] = decrypt
	h.audit(r, audit.ActionListInquiries, ids, meta)

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"inquiries": rows,
		"total":     total,
		"limit":     f.Limit,
		"offset":    f.Offset,
		"decrypted": decrypt,
	})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, "invalid_inquiry_id")
		return
	}
	decrypt := api.QueryBool(r, "decrypt", true)
	includeNormalized := api.QueryBool(r, "include_normalized", true)

	d, err := h.service.Detail(r.Context(), id, decrypt, includeNormalized)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.audit(r, audit.ActionViewInquiry, audit.IDs(id), map[string]interface{}{
		"decrypt":            decrypt,
		"include_normalized": includeNormalized,
	})

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"inquiry":    d.Inquiry,
		"normalized": d.Normalized,
		"decrypted":  decrypt,
	})
}

type updateRequest struct {
	Status string `json:"status"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, "invalid_inquiry_id")
		return
	}
	var req updateRequest
	if err := api.DecodeBody(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if err := h.service.SetStatus(r.Context(), id, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.audit(r, audit.ActionUpdateInquiry, audit.IDs(id), map[string]interface{}{"status": req.Status})
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, "invalid_inquiry_id")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.audit(r, audit.ActionDeleteInquiry, audit.IDs(id), nil)
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r, defaultExportLimit, maxExportLimit)

	rows, err := h.service.ExportRows(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows); err != nil {
		logger.Log.WithError(err).Error("failed to render inquiry export")
		api.WriteError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	ids := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	meta := f.metadata()
	meta["format"] = "xlsx"
	meta["decrypt"] = true
	h.audit(r, audit.ActionExportInquiries, ids, meta)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=inquiries-export.xlsx")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// audit records a successful admin operation off the request path.
func (h *Handler) audit(r *http.Request, action audit.Action, ids []interface{}, meta map[string]interface{}) {
	res, _ := adminauth.ResultFromContext(r.Context())
	email := res.Email
	if email == "" {
		email = "unknown"
	}
	h.opts.Auditor.LogAsync(audit.Entry{
		AdminEmail:  email,
		AdminUserID: res.UserID,
		Action:      action,
		InquiryIDs:  ids,
		IPAddress:   ratelimit.ClientIP(r),
		UserAgent:   r.UserAgent(),
		Metadata:    meta,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var v *ValidationError
	if errors.As(err, &v) {
		api.WriteJSON(w, http.StatusBadRequest, api.Error{Error: v.Code, Detail: v.Detail})
		return
	}

	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
	}

	if f.Status >= http.StatusInternalServerError {
		logger.Log.WithError(f.Err).WithFields(map[string]interface{}{
			"path": r.URL.Path,
			"code": f.Code,
		}).Error("inquiry request failed")
		h.opts.Monitor.RecordError(r.Context(), r.URL.Path)

		event := oplog.InquiryFailed
		if errors.Is(err, ErrEncryption) {
			event = oplog.EncryptionFailed
			h.opts.Monitor.RecordEncryptionFailure(r.Context())
		}
		oplog.Error(oplog.Event{
			Event:      event,
			API:        r.URL.Path,
			ClientIP:   ratelimit.ClientIP(r),
			Reason:     f.Code,
			StatusCode: f.Status,
		})
	} else {
		logger.Log.WithFields(map[string]interface{}{
			"path": r.URL.Path,
			"code": f.Code,
		}).Warn("inquiry request refused")
	}
	api.WriteError(w, f.Status, f.Code)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
