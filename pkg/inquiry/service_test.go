package inquiry

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/healo-ai/concierge/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type fakeStore struct {
	mu         sync.Mutex
	rows       map[int64]*Inquiry
	normalized map[int64]*NormalizedInquiry
	nextID     int64
	createErr  error
	listErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int64]*Inquiry{}, normalized: map[int64]*NormalizedInquiry{}}
}

func (f *fakeStore) Create(_ context.Context, inq *Inquiry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	inq.ID = f.nextID
	inq.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cp := *inq
	f.rows[inq.ID] = &cp
	return nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*Inquiry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStore) UpdateIntake(_ context.Context, id int64, intake map[string]interface{}, attachments datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.Intake = intake
	if attachments != nil {
		row.Attachments = attachments
	}
	return nil
}

func (f *fakeStore) RotateToken(_ context.Context, id int64, token string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.PublicToken = token
	row.PublicTokenRotatedAt = &at
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.Status = string(status)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeStore) List(_ context.Context, filter ListFilter, _ bool) ([]Inquiry, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []Inquiry
	for _, row := range f.rows {
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (f *fakeStore) LatestNormalized(_ context.Context, id int64) (*NormalizedInquiry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.normalized[id], nil
}

func newTestCipher(t *testing.T) *security.Cipher {
	t.Helper()
	c, err := security.NewCipher(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	return c
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, newTestCipher(t)), store
}

func validRequest() CreateRequest {
	return CreateRequest{
		FirstName:     "Jane",
		LastName:      "Doe",
		Email:         "jane@example.com",
		Nationality:   "US",
		TreatmentType: "acupuncture",
		Message:       "Lower back pain for two weeks",
	}
}

func failureCode(t *testing.T, err error) (int, string) {
	t.Helper()
	var v *ValidationError
	if errors.As(err, &v) {
		return http.StatusBadRequest, v.Code
	}
	var f *Failure
	require.True(t, errors.As(err, &f), "unexpected error type %T", err)
	return f.Status, f.Code
}

func TestCreateEncryptsPII(t *testing.T) {
	svc, store := newTestService(t)

	inq, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), inq.ID)
	assert.Regexp(t, uuidPattern, inq.PublicToken)
	assert.Equal(t, "received", inq.Status)

	stored := store.rows[inq.ID]
	require.NotNil(t, stored.Email)
	assert.True(t, security.IsEnvelope(*stored.Email))
	assert.NotContains(t, *stored.Email, "jane@example.com")
	assert.True(t, security.IsEnvelope(*stored.FirstName))
	assert.True(t, security.IsEnvelope(*stored.Message))
	assert.Nil(t, stored.ContactID)
	assert.Equal(t, "US", *stored.Nationality)
	assert.Empty(t, stored.Intake)
}

func TestCreateValidation(t *testing.T) {
	svc, store := newTestService(t)

	cases := []struct {
		name string
		mut  func(*CreateRequest)
		code string
	}{
		{"missing treatment", func(r *CreateRequest) { r.TreatmentType = " " }, "missing_required_fields"},
		{"no contact", func(r *CreateRequest) { r.Email = "" }, "missing_contact"},
		{"method without id", func(r *CreateRequest) { r.Email = ""; r.ContactMethod = "kakao" }, "missing_contact"},
		{"bad email", func(r *CreateRequest) { r.Email = "not-an-email" }, "invalid_email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mut(&req)
			_, err := svc.Create(context.Background(), req)
			status, code := failureCode(t, err)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tc.code, code)
		})
	}
	assert.Empty(t, store.rows)
}

func TestCreateMessengerOnly(t *testing.T) {
	svc, store := newTestService(t)
	req := validRequest()
	req.Email = ""
	req.ContactMethod = "whatsapp"
	req.ContactID = "+821012345678"

	inq, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	stored := store.rows[inq.ID]
	assert.Nil(t, stored.Email)
	require.NotNil(t, stored.ContactID)
	assert.True(t, security.IsEnvelope(*stored.ContactID))
}

func TestCreateInsertFailure(t *testing.T) {
	svc, store := newTestService(t)
	store.createErr = errors.New("connection reset")

	_, err := svc.Create(context.Background(), validRequest())
	status, code := failureCode(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "insert_failed", code)
}

func TestIntakeMergesAndEncrypts(t *testing.T) {
	svc, store := newTestService(t)
	inq, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = svc.Intake(context.Background(), IntakeRequest{
		InquiryID:   float64(inq.ID),
		PublicToken: inq.PublicToken,
		IntakePatch: map[string]interface{}{
			"complaint": map[string]interface{}{"body_part": []interface{}{"back"}},
			"phone":     "+82 10-1234-5678",
		},
	})
	require.NoError(t, err)

	_, err = svc.Intake(context.Background(), IntakeRequest{
		InquiryID:   inq.ID,
		PublicToken: inq.PublicToken,
		IntakePatch: map[string]interface{}{
			"history": map[string]interface{}{"diagnosis": "disc"},
			"attachments_extra": []interface{}{
				map[string]interface{}{"path": "inquiry/1/xray.png", "name": "xray.png", "type": "image/png"},
				map[string]interface{}{"name": "no path"},
			},
		},
	})
	require.NoError(t, err)

	stored := store.rows[inq.ID]
	assert.Contains(t, stored.Intake, "complaint")
	assert.Contains(t, stored.Intake, "history")
	assert.NotContains(t, stored.Intake, "attachments_extra")

	phone, _ := stored.Intake["phone"].(string)
	assert.True(t, security.IsEnvelope(phone), "phone stays encrypted across merges")
	decrypted := DecryptInquiry(svc.cipher, *stored)
	assert.Equal(t, "+82 10-1234-5678", decrypted.Intake["phone"])

	list := stored.AttachmentList()
	require.Len(t, list, 1)
	assert.Equal(t, "inquiry/1/xray.png", list[0].Path)
	assert.True(t, stored.OwnsPath("inquiry/1/xray.png"))
}

func TestIntakeRejections(t *testing.T) {
	svc, _ := newTestService(t)
	inq, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	cases := []struct {
		name   string
		req    IntakeRequest
		status int
		code   string
	}{
		{"missing id", IntakeRequest{PublicToken: "x", IntakePatch: map[string]interface{}{}}, 400, "inquiry_id_required"},
		{"zero id", IntakeRequest{InquiryID: 0, PublicToken: "x", IntakePatch: map[string]interface{}{}}, 400, "inquiry_id_required"},
		{"missing token", IntakeRequest{InquiryID: inq.ID, IntakePatch: map[string]interface{}{}}, 400, "public_token_required"},
		{"patch not object", IntakeRequest{InquiryID: inq.ID, PublicToken: "x", IntakePatch: []interface{}{}}, 400, "intake_patch_must_be_object"},
		{"wrong token", IntakeRequest{InquiryID: inq.ID, PublicToken: "nope", IntakePatch: map[string]interface{}{}}, 403, "invalid_public_token"},
		{"unknown inquiry", IntakeRequest{InquiryID: 999, PublicToken: "x", IntakePatch: map[string]interface{}{}}, 404, "inquiry_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Intake(context.Background(), tc.req)
			status, code := failureCode(t, err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestRotateTokenInvalidatesOld(t *testing.T) {
	svc, _ := newTestService(t)
	inq, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	token, err := svc.RotateToken(context.Background(), "1")
	require.NoError(t, err)
	assert.Regexp(t, uuidPattern, token)
	assert.NotEqual(t, inq.PublicToken, token)

	_, err = svc.Intake(context.Background(), IntakeRequest{InquiryID: inq.ID, PublicToken: inq.PublicToken, IntakePatch: map[string]interface{}{}})
	_, code := failureCode(t, err)
	assert.Equal(t, "invalid_public_token", code)

	_, err = svc.Intake(context.Background(), IntakeRequest{InquiryID: inq.ID, PublicToken: token, IntakePatch: map[string]interface{}{}})
	assert.NoError(t, err)

	_, err = svc.RotateToken(context.Background(), 42)
	_, code = failureCode(t, err)
	assert.Equal(t, "inquiry_not_found", code)
}

func TestDetailDecrypts(t *testing.T) {
	svc, store := newTestService(t)
	inq, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	raw, err := svc.cipher.Encrypt("hello there")
	require.NoError(t, err)
	store.normalized[inq.ID] = &NormalizedInquiry{ID: 7, RawMessage: &raw}

	d, err := svc.Detail(context.Background(), inq.ID, true, true)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", *d.Inquiry.Email)
	assert.Equal(t, "Jane", *d.Inquiry.FirstName)
	require.NotNil(t, d.Normalized)
	assert.Equal(t, "hello there", *d.Normalized.RawMessage)

	d, err = svc.Detail(context.Background(), inq.ID, false, false)
	require.NoError(t, err)
	assert.True(t, security.IsEnvelope(*d.Inquiry.Email))
	assert.Nil(t, d.Normalized)

	_, err = svc.Detail(context.Background(), 99, true, true)
	status, _ := failureCode(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDecryptFallsBackToStoredValue(t *testing.T) {
	c := newTestCipher(t)
	legacy := "plain@example.com"
	other, err := security.NewCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	broken, err := other.Encrypt("written with another key")
	require.NoError(t, err)

	out := DecryptInquiry(c, Inquiry{Email: &legacy, Message: &broken})
	assert.Equal(t, legacy, *out.Email)
	assert.Equal(t, broken, *out.Message)
}

func TestSetStatusAndDelete(t *testing.T) {
	svc, store := newTestService(t)
	inq, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(context.Background(), inq.ID, "contacted"))
	assert.Equal(t, "contacted", store.rows[inq.ID].Status)

	_, code := failureCode(t, svc.SetStatus(context.Background(), inq.ID, "archived"))
	assert.Equal(t, "invalid_status", code)

	require.NoError(t, svc.Delete(context.Background(), inq.ID))
	status, code := failureCode(t, svc.Delete(context.Background(), inq.ID))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "inquiry_not_found", code)
}

func TestListDecryptToggle(t *testing.T) {
	svc, store := newTestService(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), validRequest())
		require.NoError(t, err)
	}

	rows, total, err := svc.List(context.Background(), ListFilter{Limit: 2}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].ID)
	assert.Equal(t, "jane@example.com", *rows[0].Email)

	rows, _, err = svc.List(context.Background(), ListFilter{Limit: 10}, false)
	require.NoError(t, err)
	assert.True(t, security.IsEnvelope(*rows[0].Email))

	store.listErr = errors.New("timeout")
	_, _, err = svc.List(context.Background(), ListFilter{}, true)
	_, code := failureCode(t, err)
	assert.Equal(t, "db_query_failed", code)
}
