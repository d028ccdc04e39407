package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/alerts"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/llm"
	"github.com/healo-ai/concierge/pkg/normalizer"
	"github.com/healo-ai/concierge/pkg/oplog"
	"github.com/healo-ai/concierge/pkg/rag"
	"github.com/healo-ai/concierge/pkg/ratelimit"
)

const (
	DefaultMaxSources = 6
	maxHistory        = 10
	maxTurnLength     = 4000
)

var systemPrompt = []string{
	"You are a medical concierge assistant for HEALO.",
	"Do not provide diagnosis, medical advice, or guarantees.",
	"Ask clarifying questions when constraints are missing.",
	"Primary objective: guide the user to submit an inquiry.",
	"If relevant, reference the provided context briefly.",
}

type Searcher interface {
	Search(ctx context.Context, q rag.Query) ([]rag.Hit, error)
}

// Recorder stores the chat turn as an ai_agent normalized inquiry.
type Recorder interface {
	Normalize(ctx context.Context, req normalizer.Request) (*normalizer.Result, error)
}

type Options struct {
	Limiter  *ratelimit.Limiter
	Tracker  *funnel.Tracker
	Monitor  *alerts.Monitor
	Recorder Recorder
	// Provider names the configured LLM provider; it is used for error codes
	// when Client is nil.
	Provider   string
	MaxSources int
	// Verbose adds provider detail to error bodies. Off in production.
	Verbose bool
}

type Handler struct {
	client   llm.Client
	searcher Searcher
	opts     Options
}

// NewHandler accepts a nil client: every chat then fails with
// <provider>_key_missing.
func NewHandler(client llm.Client, searcher Searcher, opts Options) *Handler {
	if opts.MaxSources <= 0 {
		opts.MaxSources = DefaultMaxSources
	}
	return &Handler{client: client, searcher: searcher, opts: opts}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/chat", h.chat).Methods(http.MethodPost)
}

type Request struct {
	Message   string                 `json:"message"`
	Messages  []llm.Message          `json:"messages"`
	History   []llm.Message          `json:"history"`
	Lang      string                 `json:"lang"`
	SessionID string                 `json:"session_id"`
	Page      string                 `json:"page"`
	UTM       map[string]interface{} `json:"utm"`
}

type Source struct {
	SourceType string  `json:"source_type"`
	SourceID   string  `json:"source_id"`
	Title      *string `json:"title"`
	ChunkIndex int     `json:"chunk_index"`
	Score      int     `json:"score"`
}

type Response struct {
	OK      bool     `json:"ok"`
	Reply   string   `json:"reply"`
	Sources []Source `json:"sources"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := ratelimit.ClientIP(r)

	if h.opts.Limiter != nil {
		res := h.opts.Limiter.Check(ctx, ip, ratelimit.Chat)
		if !res.Allowed {
			oplog.Warn(oplog.Event{
				Event:      oplog.RateLimitExceeded,
				API:        r.URL.Path,
				ClientIP:   ip,
				Reason:     "rate_limit_exceeded",
				StatusCode: http.StatusTooManyRequests,
			})
			h.opts.Monitor.RecordBlock(ctx)
			h.opts.Tracker.Track(funnel.Event{Stage: funnel.StageChatBlocked, DropReason: "rate_limit_exceeded"})
			ratelimit.Reject(w, res, "rate_limit_exceeded")
			return
		}
	}

	var req Request
	if err := api.DecodeBody(r, &req); err != nil {
		api.WriteErrorDetail(w, http.StatusBadRequest, "invalid_json", h.detail(err.Error()))
		return
	}
	message, history := conversation(req)
	if message == "" {
		api.WriteError(w, http.StatusBadRequest, "message_required")
		return
	}
	lang := strings.TrimSpace(req.Lang)
	if lang == "" {
		lang = "en"
	}

	h.record(ctx, r.URL.Path, ip, message, lang, req)

	if h.client == nil {
		pe := llm.KeyMissing(h.opts.Provider)
		logger.Log.WithField("code", pe.Code).Error("llm provider key missing")
		api.WriteError(w, pe.Status, pe.Code)
		return
	}

	hits := h.retrieve(ctx, message, lang)
	system := buildSystemPrompt(hits)
	turns := append(history, llm.Message{Role: llm.RoleUser, Content: message})

	reply, err := h.client.Complete(ctx, system, turns)
	if err != nil {
		pe := llm.Classify(h.opts.Provider, err)
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"code":   pe.Code,
			"status": pe.Status,
			"model":  h.client.Model(),
		}).Error("llm completion failed")
		h.opts.Monitor.RecordError(ctx, r.URL.Path)
		h.opts.Tracker.Track(funnel.Event{Stage: funnel.StageChatError, SessionID: req.SessionID, DropReason: pe.Code})
		api.WriteErrorDetail(w, pe.Status, pe.Code, h.detail(pe.Message))
		return
	}

	api.WriteJSON(w, http.StatusOK, Response{OK: true, Reply: reply, Sources: sources(hits)})
}

// record never fails the chat; a lost row is logged and tracked.
func (h *Handler) record(ctx context.Context, path, ip, message, lang string, req Request) {
	if h.opts.Recorder == nil {
		return
	}
	res, err := h.opts.Recorder.Normalize(ctx, normalizer.Request{
		Text:       message,
		SourceType: "ai_agent",
		SessionID:  req.SessionID,
		Page:       req.Page,
		UTM:        req.UTM,
	})
	if err != nil || res == nil || res.Normalized == nil {
		ctxFields := map[string]interface{}{}
		if err != nil {
			ctxFields["error"] = err.Error()
		}
		oplog.Error(oplog.Event{
			Event:      oplog.ChatBlocked,
			API:        path,
			ClientIP:   ip,
			Reason:     "db_insert_failed",
			StatusCode: http.StatusInternalServerError,
			Context:    ctxFields,
		})
		h.opts.Tracker.Track(funnel.Event{Stage: funnel.StageChatError, SessionID: req.SessionID, DropReason: "db_insert_failed"})
		return
	}

	oplog.Info(oplog.Event{
		Event:      oplog.ChatReceived,
		API:        path,
		ClientIP:   ip,
		StatusCode: http.StatusOK,
		Context:    map[string]interface{}{"language": lang, "hasSession": req.SessionID != ""},
	})
	h.opts.Tracker.Track(funnel.Event{
		Stage:       funnel.StageChatMessage,
		SessionID:   req.SessionID,
		Page:        req.Page,
		UTMSource:   api.String(req.UTM["source"]),
		UTMMedium:   api.String(req.UTM["medium"]),
		UTMCampaign: api.String(req.UTM["campaign"]),
		Language:    lang,
	})
}

// retrieve degrades to an empty context when search fails.
func (h *Handler) retrieve(ctx context.Context, message, lang string) []rag.Hit {
	if h.searcher == nil {
		return nil
	}
	hits, err := h.searcher.Search(ctx, rag.Query{Query: message, Lang: lang, Limit: h.opts.MaxSources})
	if err != nil {
		logger.Log.WithError(err).Error("chat retrieval failed")
		return nil
	}
	return hits
}

func (h *Handler) detail(msg string) string {
	if !h.opts.Verbose {
		return ""
	}
	return msg
}

// conversation picks the user message and the prior turns. An explicit
// message wins; otherwise the last user entry of messages is used.
func conversation(req Request) (string, []llm.Message) {
	message := strings.TrimSpace(req.Message)
	prior := req.History
	if message == "" {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == llm.RoleUser && strings.TrimSpace(req.Messages[i].Content) != "" {
				message = strings.TrimSpace(req.Messages[i].Content)
				prior = req.Messages[:i]
				break
			}
		}
	}

	history := make([]llm.Message, 0, len(prior))
	for _, m := range prior {
		content := strings.TrimSpace(m.Content)
		if content == "" || (m.Role != llm.RoleUser && m.Role != llm.RoleAssistant) {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: truncate(content, maxTurnLength)})
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	return truncate(message, maxTurnLength), history
}

func buildSystemPrompt(hits []rag.Hit) string {
	lines := append([]string{}, systemPrompt...)
	if block := BuildContext(hits); block != "" {
		lines = append(lines, "", "Context:\n"+block)
	}
	return strings.Join(lines, "\n")
}

// BuildContext renders hits as "[source_type | title] content" blocks.
func BuildContext(hits []rag.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		label := "[source]"
		if hit.Document.SourceType != "" {
			if hit.Document.Title != nil && *hit.Document.Title != "" {
				label = fmt.Sprintf("[%s | %s]", hit.Document.SourceType, *hit.Document.Title)
			} else {
				label = fmt.Sprintf("[%s]", hit.Document.SourceType)
			}
		}
		blocks = append(blocks, label+" "+strings.TrimSpace(hit.Content))
	}
	return strings.Join(blocks, "\n\n")
}

func sources(hits []rag.Hit) []Source {
	out := make([]Source, 0, len(hits))
	for _, hit := range hits {
		out = append(out, Source{
			SourceType: hit.Document.SourceType,
			SourceID:   hit.Document.SourceID,
			Title:      hit.Document.Title,
			ChunkIndex: hit.ChunkIndex,
			Score:      hit.Score,
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
