package inquiry

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/security"
	"gorm.io/datatypes"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Store interface {
	Create(ctx context.Context, inq *Inquiry) error
	Get(ctx context.Context, id int64) (*Inquiry, error)
	UpdateIntake(ctx context.Context, id int64, intake map[string]interface{}, attachments datatypes.JSON) error
	RotateToken(ctx context.Context, id int64, token string, at time.Time) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ListFilter, full bool) ([]Inquiry, int64, error)
	LatestNormalized(ctx context.Context, inquiryID int64) (*NormalizedInquiry, error)
}

type Service struct {
	store    Store
	cipher   *security.Cipher
	newToken func() string
	now      func() time.Time
}

func NewService(store Store, cipher *security.Cipher) *Service {
	return &Service{
		store:    store,
		cipher:   cipher,
		newToken: uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	FirstName         string       `json:"firstName"`
	LastName          string       `json:"lastName"`
	Email             string       `json:"email"`
	Nationality       string       `json:"nationality"`
	SpokenLanguage    string       `json:"spokenLanguage"`
	ContactMethod     string       `json:"contactMethod"`
	ContactID         string       `json:"contactId"`
	TreatmentType     string       `json:"treatmentType"`
	PreferredDate     string       `json:"preferredDate"`
	PreferredDateFlex bool         `json:"preferredDateFlex"`
	Message           string       `json:"message"`
	Attachment        string       `json:"attachment"`
	Attachments       []Attachment `json:"attachments"`
}

// Create validates and stores a step-1 submission. Every PII column is
// encrypted before the insert; nothing is written if any field fails.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Inquiry, error) {
	if strings.TrimSpace(req.TreatmentType) == "" {
		return nil, invalid("missing_required_fields", "treatmentType is required")
	}
	email := strings.TrimSpace(req.Email)
	hasMessenger := strings.TrimSpace(req.ContactMethod) != "" && strings.TrimSpace(req.ContactID) != ""
	if email == "" && !hasMessenger {
		return nil, invalid("missing_contact", "email or (contactMethod + contactId) is required")
	}
	if email != "" && !emailPattern.MatchString(email) {
		return nil, invalid("invalid_email", "")
	}

	inq := &Inquiry{
		Nationality:       optional(req.Nationality),
		SpokenLanguage:    optional(req.SpokenLanguage),
		ContactMethod:     optional(req.ContactMethod),
		TreatmentType:     strings.TrimSpace(req.TreatmentType),
		PreferredDate:     optional(req.PreferredDate),
		PreferredDateFlex: req.PreferredDateFlex,
		Attachment:        optional(req.Attachment),
		Intake:            datatypes.JSONMap{},
		Status:            string(StatusReceived),
		PublicToken:       s.newToken(),
	}

	var err error
	encrypt := func(dst **string, field, value string) {
		if err != nil {
			return
		}
		if *dst, err = s.cipher.EncryptNullable(value); err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrEncryption, field, err)
		}
	}
	encrypt(&inq.Email, "email", email)
	encrypt(&inq.FirstName, "first_name", req.FirstName)
	encrypt(&inq.LastName, "last_name", req.LastName)
	encrypt(&inq.Message, "message", req.Message)
	encrypt(&inq.ContactID, "contact_id", req.ContactID)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, "encryption_failed", err)
	}

	if err := inq.SetAttachments(req.Attachments); err != nil {
		return nil, invalid("invalid_attachments", "")
	}

	if err := s.store.Create(ctx, inq); err != nil {
		return nil, fail(http.StatusInternalServerError, "insert_failed", err)
	}
	return inq, nil
}

type IntakeRequest struct {
	InquiryID   interface{} `json:"inquiryId"`
	PublicToken interface{} `json:"publicToken"`
	IntakePatch interface{} `json:"intakePatch"`
}

// Intake merges a step-2 patch into the stored intake. Concurrent patches
// for the same inquiry are last-write-wins.
func (s *Service) Intake(ctx context.Context, req IntakeRequest) (*Inquiry, error) {
	id, ok := api.ParseID(req.InquiryID)
	if !ok {
		return nil, invalid("inquiry_id_required", "")
	}
	token := api.String(req.PublicToken)
	if token == "" {
		return nil, invalid("public_token_required", "")
	}
	patch, ok := req.IntakePatch.(map[string]interface{})
	if !ok {
		return nil, invalid("intake_patch_must_be_object", "")
	}

	inq, err := s.authorize(ctx, id, token)
	if err != nil {
		return nil, err
	}

	extra := attachmentsExtra(patch["attachments_extra"])
	merged := make(map[string]interface{}, len(inq.Intake)+len(patch))
	for k, v := range inq.Intake {
		merged[k] = v
	}
	for k, v := range patch {
		if k == "attachments_extra" {
			continue
		}
		merged[k] = v
	}

	encrypted, err := s.cipher.EncryptJSONFields(merged, security.IntakePIIKeys)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, "encryption_failed", fmt.Errorf("%w: %v", ErrEncryption, err))
	}

	var attachments datatypes.JSON
	if len(extra) > 0 {
		if err := inq.SetAttachments(append(inq.AttachmentList(), extra...)); err != nil {
			return nil, fail(http.StatusInternalServerError, "intake_update_failed", err)
		}
		attachments = inq.Attachments
	}

	if err := s.store.UpdateIntake(ctx, id, encrypted, attachments); err != nil {
		return nil, fail(http.StatusInternalServerError, "intake_update_failed", err)
	}
	inq.Intake = encrypted
	return inq, nil
}

// authorize loads the inquiry and checks the caller's public token.
func (s *Service) authorize(ctx context.Context, id int64, token string) (*Inquiry, error) {
	inq, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fetchFailure(err)
	}
	if inq.PublicToken == "" || subtle.ConstantTimeCompare([]byte(inq.PublicToken), []byte(token)) != 1 {
		return nil, fail(http.StatusForbidden, "invalid_public_token", ErrTokenMismatch)
	}
	return inq, nil
}

func attachmentsExtra(v interface{}) []Attachment {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []Attachment
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		path, _ := obj["path"].(string)
		if path == "" {
			continue
		}
		a := Attachment{Path: path}
		if name, ok := obj["name"].(string); ok {
			a.Name = &name
		}
		if typ, ok := obj["type"].(string); ok {
			a.Type = &typ
		}
		out = append(out, a)
	}
	return out
}

// Find returns the stored row. Used by attachment signing.
func (s *Service) Find(ctx context.Context, id int64) (*Inquiry, error) {
	return s.store.Get(ctx, id)
}

// RotateToken issues a new public token, invalidating the old one.
func (s *Service) RotateToken(ctx context.Context, rawID interface{}) (string, error) {
	id, ok := api.ParseID(rawID)
	if !ok {
		return "", invalid("inquiry_id_required", "")
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return "", fetchFailure(err)
	}
	token := s.newToken()
	if err := s.store.RotateToken(ctx, id, token, s.now()); err != nil {
		return "", fail(http.StatusInternalServerError, "token_rotate_failed", err)
	}
	return token, nil
}

// List is the admin listing. Rows are decrypted unless decrypt is false.
func (s *Service) List(ctx context.Context, f ListFilter, decrypt bool) ([]Inquiry, int64, error) {
	rows, total, err := s.store.List(ctx, f, false)
	if err != nil {
		return nil, 0, fail(http.StatusInternalServerError, "db_query_failed", err)
	}
	if decrypt {
		for i := range rows {
			rows[i] = DecryptInquiry(s.cipher, rows[i])
		}
	}
	return rows, total, nil
}

type Detail struct {
	Inquiry    Inquiry
	Normalized *NormalizedInquiry
}

func (s *Service) Detail(ctx context.Context, id int64, decrypt, includeNormalized bool) (*Detail, error) {
	inq, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(http.StatusNotFound, "inquiry_not_found", err)
		}
		return nil, fail(http.StatusInternalServerError, "db_query_failed", err)
	}

	d := &Detail{Inquiry: *inq}
	if includeNormalized {
		n, err := s.store.LatestNormalized(ctx, id)
		if err != nil {
			logger.Log.WithError(err).WithField("inquiry_id", id).Warn("normalized inquiry lookup failed")
		}
		d.Normalized = n
	}

	if decrypt {
		d.Inquiry = DecryptInquiry(s.cipher, d.Inquiry)
		if d.Normalized != nil {
			n := DecryptNormalized(s.cipher, *d.Normalized)
			d.Normalized = &n
		}
	}
	return d, nil
}

func (s *Service) SetStatus(ctx context.Context, id int64, status string) error {
	st := Status(strings.TrimSpace(status))
	if !st.Valid() {
		return invalid("invalid_status", "status must be one of received, in_progress, contacted, closed, spam")
	}
	if err := s.store.UpdateStatus(ctx, id, st); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(http.StatusNotFound, "inquiry_not_found", err)
		}
		return fail(http.StatusInternalServerError, "update_failed", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(http.StatusNotFound, "inquiry_not_found", err)
		}
		return fail(http.StatusInternalServerError, "delete_failed", err)
	}
	return nil
}

// ExportRows loads full, decrypted rows for the spreadsheet export.
func (s *Service) ExportRows(ctx context.Context, f ListFilter) ([]Inquiry, error) {
	rows, _, err := s.store.List(ctx, f, true)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, "db_query_failed", err)
	}
	for i := range rows {
		rows[i] = DecryptInquiry(s.cipher, rows[i])
	}
	return rows, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
