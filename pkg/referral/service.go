package referral

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/attachments"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/inquiry"
)

type Store interface {
	GetNormalized(ctx context.Context, id int64) (*inquiry.NormalizedInquiry, error)
	Get(ctx context.Context, id int64) (*inquiry.Inquiry, error)
}

// Signer is satisfied by attachments.Service.
type Signer interface {
	SignOwned(ctx context.Context, inq *inquiry.Inquiry, path string) (string, error)
	TTL() time.Duration
}

// Error carries the HTTP status and the error code returned to the caller.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

type Request struct {
	NormalizedInquiryID interface{} `json:"normalizedInquiryId"`
	PublicToken         interface{} `json:"publicToken"`
}

type Service struct {
	store  Store
	signer Signer
	now    func() time.Time
}

func NewService(store Store, signer Signer) *Service {
	return &Service{store: store, signer: signer, now: time.Now}
}

// Summarize loads a normalized inquiry and builds its referral summary.
// Access follows source_inquiry_id: the caller must hold that inquiry's
// public token, and attachments are signed only for paths it owns.
func (s *Service) Summarize(ctx context.Context, req Request) (*Summary, error) {
	id, ok := api.ParseID(req.NormalizedInquiryID)
	if !ok {
		return nil, &Error{Status: http.StatusBadRequest, Code: "normalized_inquiry_id_required"}
	}
	token := api.String(req.PublicToken)
	if token == "" {
		return nil, &Error{Status: http.StatusBadRequest, Code: "public_token_required"}
	}

	norm, err := s.store.GetNormalized(ctx, id)
	if err != nil {
		if errors.Is(err, inquiry.ErrNotFound) {
			return nil, &Error{Status: http.StatusNotFound, Code: "normalized_inquiry_not_found", Err: err}
		}
		return nil, &Error{Status: http.StatusInternalServerError, Code: "normalized_inquiry_fetch_failed", Err: err}
	}
	if norm.SourceInquiryID == nil {
		return nil, &Error{Status: http.StatusNotFound, Code: "normalized_inquiry_not_found"}
	}

	inq, err := s.store.Get(ctx, *norm.SourceInquiryID)
	if err != nil {
		if errors.Is(err, inquiry.ErrNotFound) {
			return nil, &Error{Status: http.StatusNotFound, Code: "inquiry_not_found", Err: err}
		}
		return nil, &Error{Status: http.StatusInternalServerError, Code: "inquiry_fetch_failed", Err: err}
	}
	if !attachments.TokenMatches(inq, token) {
		return nil, &Error{Status: http.StatusForbidden, Code: "invalid_public_token"}
	}

	return BuildSummary(norm, s.sign(ctx, inq)), nil
}

// sign skips paths that fail authorization or signing.
func (s *Service) sign(ctx context.Context, inq *inquiry.Inquiry) []SignedAttachment {
	if s.signer == nil {
		return nil
	}

	type candidate struct {
		path string
		name *string
	}
	var candidates []candidate
	if inq.Attachment != nil && strings.HasPrefix(*inq.Attachment, "inquiry/") {
		candidates = append(candidates, candidate{path: *inq.Attachment})
	}
	for _, a := range inq.AttachmentList() {
		if a.Path != "" {
			candidates = append(candidates, candidate{path: a.Path, name: a.Name})
		}
	}

	var out []SignedAttachment
	for _, c := range candidates {
		url, err := s.signer.SignOwned(ctx, inq, c.path)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"inquiry_id": inq.ID,
				"path":       c.path,
			}).Warn("referral attachment skipped")
			continue
		}
		out = append(out, SignedAttachment{
			Path:      c.path,
			Name:      c.name,
			SignedURL: url,
			ExpiresAt: s.now().Add(s.signer.TTL()).UTC(),
		})
	}
	return out
}
