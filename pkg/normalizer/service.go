package normalizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/healo-ai/concierge/pkg/alerts"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/inquiry"
	"github.com/healo-ai/concierge/pkg/leadquality"
	"github.com/healo-ai/concierge/pkg/security"
	"gorm.io/datatypes"
)

const pipelineVersion = "v1"

var ErrEncryption = errors.New("normalized inquiry encryption failed")

type Store interface {
	Get(ctx context.Context, id int64) (*inquiry.Inquiry, error)
	InsertNormalized(ctx context.Context, n *inquiry.NormalizedInquiry) error
	UpdateLeadQuality(ctx context.Context, id int64, u inquiry.LeadQualityUpdate) error
}

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
	Text            interface{}            `json:"text"`
	InquiryID       interface{}            `json:"inquiry_id"`
	SourceInquiryID interface{}            `json:"source_inquiry_id"`
	SourceType      interface{}            `json:"source_type"`
	SessionID       interface{}            `json:"session_id"`
	Page            interface{}            `json:"page"`
	UTM             map[string]interface{} `json:"utm"`
}

// Result is nil-Normalized when the insert failed; that is not an error
// for the caller.
type Result struct {
	Normalized *inquiry.NormalizedInquiry
	SourceType string
	Language   string
	Country    string
	Treatment  string
	SessionID  string
	Page       string
	UTM        map[string]interface{}
	Evaluation *leadquality.Evaluation
}

type Service struct {
	store   Store
	cipher  *security.Cipher
	scorer  *leadquality.Scorer
	monitor *alerts.Monitor
	now     func() time.Time
}

func NewService(store Store, cipher *security.Cipher, scorer *leadquality.Scorer, monitor *alerts.Monitor) *Service {
	if scorer == nil {
		scorer = leadquality.NewScorer(leadquality.DefaultConfig())
	}
	return &Service{
		store:   store,
		cipher:  cipher,
		scorer:  scorer,
		monitor: monitor,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Normalize builds and stores a NormalizedInquiry from free text, an
// existing inquiry, or both. When an inquiry is referenced its lead quality
// is scored and written back.
func (s *Service) Normalize(ctx context.Context, req Request) (*Result, error) {
	text := api.String(req.Text)
	inquiryID, hasID := api.ParseID(req.InquiryID)
	if !hasID {
		inquiryID, hasID = api.ParseID(req.SourceInquiryID)
	}
	if text == "" && !hasID {
		return nil, &Error{Status: http.StatusBadRequest, Code: "text_or_inquiry_id_required"}
	}
	if api.String(req.SourceType) == inquiry.SourceInquiryForm && !hasID {
		return nil, &Error{Status: http.StatusBadRequest, Code: "inquiry_id_required_for_inquiry_form"}
	}

	var row *inquiry.Inquiry
	if hasID {
		stored, err := s.store.Get(ctx, inquiryID)
		if err != nil {
			if errors.Is(err, inquiry.ErrNotFound) {
				return nil, &Error{Status: http.StatusNotFound, Code: "inquiry_not_found", Err: err}
			}
			return nil, &Error{Status: http.StatusInternalServerError, Code: "inquiry_fetch_failed", Err: err}
		}
		plain := inquiry.DecryptInquiry(s.cipher, *stored)
		row = &plain
	}

	res := &Result{
		SourceType: inquiry.SourceAIAgent,
		Language:   "en",
		SessionID:  api.String(req.SessionID),
		Page:       api.String(req.Page),
		UTM:        req.UTM,
	}

	rawMessage := text
	var intake IntakeConstraints
	var missing []string
	stepSource := "step1"
	if row != nil {
		res.SourceType = inquiry.SourceInquiryForm
		res.Language = DetectLanguage(deref(row.SpokenLanguage))
		res.Country = deref(row.Nationality)
		res.Treatment = row.TreatmentType
		if rawMessage == "" {
			rawMessage = deref(row.Message)
		}

		if len(row.Intake) > 0 {
			stepSource = "step2"
			intake = FromIntake(row.Intake, row.PreferredDate, row.PreferredDateFlex)
		} else {
			intake = FromForm(row.TreatmentType, deref(row.Message), row.PreferredDate, row.PreferredDateFlex)
		}
		missing = MissingFields(ContactFields{
			Email:         deref(row.Email),
			ContactMethod: deref(row.ContactMethod),
			ContactID:     deref(row.ContactID),
			Nationality:   deref(row.Nationality),
			Language:      deref(row.SpokenLanguage),
			TreatmentType: row.TreatmentType,
			PreferredDate: deref(row.PreferredDate),
			Flex:          row.PreferredDateFlex,
		})
	} else {
		intake = FromForm("", text, nil, false)
	}

	constraints := datatypes.JSONMap{
		"intake": intake,
		"meta": map[string]interface{}{
			"pipeline_version": pipelineVersion,
			"source_type":      res.SourceType,
			"model":            nil,
			"prompt_version":   nil,
			"source":           stepSource,
		},
	}
	if res.SessionID != "" {
		constraints["session_id"] = res.SessionID
	}
	if res.Page != "" {
		constraints["page"] = res.Page
	}
	if req.UTM != nil {
		constraints["utm"] = req.UTM
	}

	n := &inquiry.NormalizedInquiry{
		SourceType:           res.SourceType,
		Language:             res.Language,
		Constraints:          constraints,
		ExtractionConfidence: Confidence(len(missing)),
	}
	if len(missing) > 0 {
		n.MissingFields = missing
	}

	var err error
	if n.RawMessage, err = s.cipher.EncryptNullable(rawMessage); err != nil {
		return nil, &Error{Status: http.StatusInternalServerError, Code: "encryption_failed", Err: fmt.Errorf("%w: raw_message: %v", ErrEncryption, err)}
	}
	if row != nil {
		id := row.ID
		n.SourceInquiryID = &id
		n.Country = row.Nationality
		if row.TreatmentType != "" {
			n.TreatmentSlug = &row.TreatmentType
		}
		contact, err := s.contact(row)
		if err != nil {
			return nil, &Error{Status: http.StatusInternalServerError, Code: "encryption_failed", Err: err}
		}
		n.Contact = contact
	}

	if err := s.store.InsertNormalized(ctx, n); err != nil {
		logger.Log.WithError(err).WithField("source_type", res.SourceType).Error("normalized inquiry insert failed")
		return res, nil
	}
	res.Normalized = n

	if row != nil {
		res.Evaluation = s.score(ctx, row, rawMessage, len(missing), stepSource == "step2", req.UTM)
	}
	return res, nil
}

func (s *Service) contact(row *inquiry.Inquiry) (datatypes.JSONMap, error) {
	email := strings.TrimSpace(deref(row.Email))
	emailEnc, err := s.cipher.EncryptNullable(email)
	if err != nil {
		return nil, fmt.Errorf("%w: email: %v", ErrEncryption, err)
	}
	handleEnc, err := s.cipher.EncryptNullable(deref(row.ContactID))
	if err != nil {
		return nil, fmt.Errorf("%w: messenger_handle: %v", ErrEncryption, err)
	}

	contact := datatypes.JSONMap{
		"email":             nil,
		"email_hash":        nil,
		"messenger_channel": nil,
		"messenger_handle":  nil,
	}
	if emailEnc != nil {
		contact["email"] = *emailEnc
		contact["email_hash"] = security.EmailHash(email)
	}
	if row.ContactMethod != nil {
		contact["messenger_channel"] = *row.ContactMethod
	}
	if handleEnc != nil {
		contact["messenger_handle"] = *handleEnc
	}
	return contact, nil
}

// score evaluates the lead and writes it back. Failures are logged only.
func (s *Service) score(ctx context.Context, row *inquiry.Inquiry, message string, missing int, step2 bool, utm map[string]interface{}) *leadquality.Evaluation {
	length := utf8.RuneCountInString(message)
	completeness := 0.3
	if step2 {
		completeness = 0.8
	}
	ev := s.scorer.Evaluate(leadquality.Input{
		Country:            deref(row.Nationality),
		Language:           deref(row.SpokenLanguage),
		TreatmentType:      row.TreatmentType,
		UTMSource:          api.String(utm["source"]),
		MessageLength:      &length,
		MissingFields:      &missing,
		EmailDomain:        leadquality.EmailDomain(deref(row.Email)),
		IntakeCompleteness: &completeness,
	})

	err := s.store.UpdateLeadQuality(ctx, row.ID, inquiry.LeadQualityUpdate{
		Quality:     string(ev.Quality),
		Score:       ev.PriorityScore,
		Tags:        ev.Tags,
		Signals:     ev.Signals,
		EvaluatedAt: s.now(),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("inquiry_id", row.ID).Error("lead quality write-back failed")
	}

	if ev.Quality == leadquality.Hot {
		s.monitor.HighPriorityLead(ctx, alerts.LeadInfo{
			InquiryID:     row.ID,
			PriorityScore: ev.PriorityScore,
			Country:       deref(row.Nationality),
			TreatmentType: row.TreatmentType,
		})
	}

	logger.Log.WithFields(map[string]interface{}{
		"inquiry_id": row.ID,
		"quality":    ev.Quality,
		"score":      ev.PriorityScore,
	}).Info("lead quality evaluated")
	return &ev
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
