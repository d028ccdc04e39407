package attachments

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/inquiry"
)

const DefaultTTL = 5 * time.Minute

type Finder interface {
	Get(ctx context.Context, id int64) (*inquiry.Inquiry, error)
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

func refuse(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

type SignRequest struct {
	InquiryID   interface{} `json:"inquiryId"`
	Path        string      `json:"path"`
	PublicToken interface{} `json:"publicToken"`
}

type Service struct {
	finder Finder
	signer Signer
	ttl    time.Duration
}

func NewService(finder Finder, signer Signer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{finder: finder, signer: signer, ttl: ttl}
}

// Sign authorizes the caller against the inquiry and only then asks the
// storage provider for a URL. Path shape is checked before the inquiry is
// loaded.
func (s *Service) Sign(ctx context.Context, req SignRequest) (string, error) {
	id, ok := api.ParseID(req.InquiryID)
	path := strings.TrimSpace(req.Path)
	token := api.String(req.PublicToken)
	if !ok || path == "" || token == "" {
		return "", refuse(http.StatusBadRequest, "inquiryId_path_publicToken_required", nil)
	}
	if !ValidPath(path) {
		return "", refuse(http.StatusBadRequest, "invalid_path", nil)
	}

	inq, err := s.finder.Get(ctx, id)
	if err != nil {
		if errors.Is(err, inquiry.ErrNotFound) {
			return "", refuse(http.StatusNotFound, "inquiry_not_found", err)
		}
		return "", refuse(http.StatusInternalServerError, "inquiry_fetch_failed", err)
	}
	if !TokenMatches(inq, token) {
		return "", refuse(http.StatusForbidden, "invalid_public_token", nil)
	}
	return s.SignOwned(ctx, inq, path)
}

// SignOwned signs path for an inquiry the caller is already authorized for.
// The path must be well formed and belong to the inquiry.
func (s *Service) SignOwned(ctx context.Context, inq *inquiry.Inquiry, path string) (string, error) {
	if !ValidPath(path) {
		return "", refuse(http.StatusBadRequest, "invalid_path", nil)
	}
	if !inq.OwnsPath(path) {
		return "", refuse(http.StatusForbidden, "path_not_authorized", nil)
	}

	signed, err := s.signer.SignURL(ctx, path, s.ttl)
	if err != nil {
		return "", refuse(http.StatusInternalServerError, "sign_failed", err)
	}
	return signed, nil
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// TokenMatches compares the caller's public token in constant time. An
// inquiry without a token matches nothing.
func TokenMatches(inq *inquiry.Inquiry, token string) bool {
	return inq.PublicToken != "" && subtle.ConstantTimeCompare([]byte(inq.PublicToken), []byte(token)) == 1
}

// ValidPath accepts only paths under the inquiry/ namespace with no
// traversal segments.
func ValidPath(path string) bool {
	return strings.HasPrefix(path, "inquiry/") && !strings.Contains(path, "..") && !strings.HasPrefix(path, "/")
}
