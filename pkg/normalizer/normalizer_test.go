package normalizer

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/inquiry"
	"github.com/healo-ai/concierge/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeStore struct {
	rows       map[int64]*inquiry.Inquiry
	inserted   []*inquiry.NormalizedInquiry
	insertErr  error
	quality    map[int64]inquiry.LeadQualityUpdate
	getErr     error
	nextNormID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int64]*inquiry.Inquiry{}, quality: map[int64]inquiry.LeadQualityUpdate{}}
}

func (f *fakeStore) Get(_ context.Context, id int64) (*inquiry.Inquiry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, inquiry.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStore) InsertNormalized(_ context.Context, n *inquiry.NormalizedInquiry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextNormID++
	n.ID = f.nextNormID
	f.inserted = append(f.inserted, n)
	return nil
}

func (f *fakeStore) UpdateLeadQuality(_ context.Context, id int64, u inquiry.LeadQualityUpdate) error {
	f.quality[id] = u
	return nil
}

func newCipher(t *testing.T) *security.Cipher {
	t.Helper()
	c, err := security.NewCipher(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	return c
}

func enc(t *testing.T, c *security.Cipher, v string) *string {
	t.Helper()
	out, err := c.EncryptNullable(v)
	require.NoError(t, err)
	return out
}

func str(s string) *string { return &s }

func seedRow(t *testing.T, c *security.Cipher, store *fakeStore) *inquiry.Inquiry {
	row := &inquiry.Inquiry{
		ID:             12,
		Email:          enc(t, c, "Jane@Example.com"),
		Message:        enc(t, c, "I want rhinoplasty but I take allergy medication"),
		ContactMethod:  str("kakao"),
		ContactID:      enc(t, c, "jane_k"),
		Nationality:    str("US"),
		SpokenLanguage: str("Korean"),
		TreatmentType:  "rhinoplasty",
		Status:         "received",
	}
	store.rows[row.ID] = row
	return row
}

func TestExtractHelpers(t *testing.T) {
	assert.Equal(t, "nose", BodyPartFromText("Rhinoplasty consult"))
	assert.Equal(t, "dental", BodyPartFromText("two teeth"))
	assert.Equal(t, "", BodyPartFromText("general checkup"))

	flags := FlagsFromMessage("Allergic to penicillin, on diabetes meds")
	assert.Equal(t, []string{"allergy", "medication", "diabetes"}, flags.Contraindications)
	assert.True(t, flags.Allergy)
	assert.True(t, flags.Medications)

	for in, want := range map[string]string{"Korean": "ko", "kr": "ko", "Japanese": "ja", "English": "en", "": "en"} {
		assert.Equal(t, want, DetectLanguage(in), in)
	}

	assert.Equal(t, 1.0, Confidence(0))
	assert.Equal(t, 0.6, Confidence(2))
	assert.Equal(t, 0.2, Confidence(4))
	assert.Equal(t, 0.0, Confidence(5))
}

func TestMissingFields(t *testing.T) {
	assert.Equal(t,
		[]string{"contact_reachable", "nationality", "spoken_language", "treatment_type", "preferred_date_or_flex"},
		MissingFields(ContactFields{ContactMethod: "kakao"}))
	assert.Empty(t, MissingFields(ContactFields{
		ContactMethod: "kakao", ContactID: "id", Nationality: "US", Language: "en", TreatmentType: "x", Flex: true,
	}))
}

func TestFromIntake(t *testing.T) {
	got := FromIntake(map[string]interface{}{
		"complaint": map[string]interface{}{"body_part": "knee", "duration": "3m", "severity": "7"},
		"history":   map[string]interface{}{"meds": map[string]interface{}{"has": true, "text": "ibuprofen"}},
	}, str("2026-05-01T00:00:00Z"), false)

	assert.Equal(t, []string{"knee"}, got.Complaint.BodyPart)
	require.NotNil(t, got.Complaint.Duration)
	assert.Equal(t, "3m", *got.Complaint.Duration)
	require.NotNil(t, got.Complaint.Severity)
	assert.Equal(t, 7.0, *got.Complaint.Severity)
	assert.Nil(t, got.History.Diagnosis)
	assert.Equal(t, &HistoryItem{Has: true, Text: "ibuprofen"}, got.History.Meds)
	assert.Equal(t, "2026-05-01", *got.Logistics.PreferredDate)
}

func TestNormalizeTextOnly(t *testing.T) {
	c := newCipher(t)
	store := newFakeStore()
	svc := NewService(store, c, nil, nil)

	res, err := svc.Normalize(context.Background(), Request{Text: "Interested in a facial laser", SessionID: "s-1"})
	require.NoError(t, err)
	require.NotNil(t, res.Normalized)

	n := res.Normalized
	assert.Equal(t, inquiry.SourceAIAgent, n.SourceType)
	assert.Equal(t, "en", n.Language)
	assert.Nil(t, n.SourceInquiryID)
	assert.Nil(t, n.Contact)
	assert.Nil(t, n.MissingFields)
	assert.Equal(t, 1.0, n.ExtractionConfidence)
	assert.Equal(t, "s-1", n.Constraints["session_id"])

	require.NotNil(t, n.RawMessage)
	plain, err := c.Decrypt(*n.RawMessage)
	require.NoError(t, err)
	assert.Equal(t, "Interested in a facial laser", plain)

	intake := n.Constraints["intake"].(IntakeConstraints)
	assert.Equal(t, []string{"skin"}, intake.Complaint.BodyPart)
	assert.Nil(t, res.Evaluation)
	assert.Empty(t, store.quality)
}

func TestNormalizeInquiryForm(t *testing.T) {
	c := newCipher(t)
	store := newFakeStore()
	seedRow(t, c, store)
	svc := NewService(store, c, nil, nil)

	res, err := svc.Normalize(context.Background(), Request{InquiryID: "12", UTM: map[string]interface{}{"source": "google"}})
	require.NoError(t, err)
	n := res.Normalized
	require.NotNil(t, n)

	assert.Equal(t, inquiry.SourceInquiryForm, n.SourceType)
	assert.Equal(t, "ko", n.Language)
	require.NotNil(t, n.SourceInquiryID)
	assert.Equal(t, int64(12), *n.SourceInquiryID)
	assert.Equal(t, []string{"preferred_date_or_flex"}, []string(n.MissingFields))
	assert.Equal(t, 0.8, n.ExtractionConfidence)

	msg, err := c.Decrypt(*n.RawMessage)
	require.NoError(t, err)
	assert.Equal(t, "I want rhinoplasty but I take allergy medication", msg)

	email, err := c.Decrypt(n.Contact["email"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Jane@Example.com", email)
	assert.Equal(t, security.EmailHash("jane@example.com"), n.Contact["email_hash"])
	assert.Equal(t, "kakao", n.Contact["messenger_channel"])
	handle, err := c.Decrypt(n.Contact["messenger_handle"].(string))
	require.NoError(t, err)
	assert.Equal(t, "jane_k", handle)

	intake := n.Constraints["intake"].(IntakeConstraints)
	assert.Equal(t, []string{"nose"}, intake.Complaint.BodyPart)
	assert.Equal(t, &HistoryItem{Has: true}, intake.History.Meds)
	meta := n.Constraints["meta"].(map[string]interface{})
	assert.Equal(t, "step1", meta["source"])
	assert.Equal(t, "v1", meta["pipeline_version"])

	require.NotNil(t, res.Evaluation)
	update, ok := store.quality[12]
	require.True(t, ok)
	assert.Equal(t, string(res.Evaluation.Quality), update.Quality)
	assert.Equal(t, res.Evaluation.PriorityScore, update.Score)
	assert.False(t, update.EvaluatedAt.IsZero())
}

func TestNormalizeStepTwoIntake(t *testing.T) {
	c := newCipher(t)
	store := newFakeStore()
	row := seedRow(t, c, store)
	row.Intake = datatypes.JSONMap{"complaint": map[string]interface{}{"body_part": []interface{}{"eye"}}}

	res, err := NewService(store, c, nil, nil).Normalize(context.Background(), Request{SourceInquiryID: 12})
	require.NoError(t, err)
	intake := res.Normalized.Constraints["intake"].(IntakeConstraints)
	assert.Equal(t, []string{"eye"}, intake.Complaint.BodyPart)
	assert.Equal(t, "step2", res.Normalized.Constraints["meta"].(map[string]interface{})["source"])
}

func TestNormalizeErrors(t *testing.T) {
	c := newCipher(t)
	store := newFakeStore()
	svc := NewService(store, c, nil, nil)

	cases := []struct {
		req    Request
		status int
		code   string
	}{
		{Request{}, 400, "text_or_inquiry_id_required"},
		{Request{Text: "hi", SourceType: "inquiry_form"}, 400, "inquiry_id_required_for_inquiry_form"},
		{Request{InquiryID: 99}, 404, "inquiry_not_found"},
	}
	for _, tc := range cases {
		_, err := svc.Normalize(context.Background(), tc.req)
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, tc.status, e.Status)
		assert.Equal(t, tc.code, e.Code)
	}

	store.getErr = errors.New("connection refused")
	_, err := svc.Normalize(context.Background(), Request{InquiryID: 1})
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "inquiry_fetch_failed", e.Code)
}

func TestNormalizeInsertFailureIsNotAnError(t *testing.T) {
	c := newCipher(t)
	store := newFakeStore()
	seedRow(t, c, store)
	store.insertErr = errors.New("constraint violation")

	res, err := NewService(store, c, nil, nil).Normalize(context.Background(), Request{InquiryID: 12})
	require.NoError(t, err)
	assert.Nil(t, res.Normalized)
	assert.Empty(t, store.quality)
}

func TestNormalizeEndpoint(t *testing.T) {
	c := newCipher(t)
	store := newFakeStore()
	r := mux.NewRouter()
	NewHandler(NewService(store, c, nil, nil), nil, nil, nil).Register(r)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inquiry/normalize", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"text":"botox question","page":"/treatments/botox"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"ok":true`)
	assert.Contains(t, rec.Body.String(), `"source_type":"ai_agent"`)
	assert.NotContains(t, rec.Body.String(), "botox question")

	rec = post(`{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "text_or_inquiry_id_required")

	store.insertErr = errors.New("down")
	rec = post(`{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"normalized":null`)
}
