package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecipients struct {
	mu      sync.Mutex
	rows    []Recipient
	err     error
	results map[string][]bool
}

func (f *fakeRecipients) List(context.Context) ([]Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Recipient(nil), f.rows...), f.err
}

func (f *fakeRecipients) Active(context.Context) ([]Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []Recipient
	for _, r := range f.rows {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecipients) Create(_ context.Context, rec *Recipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = "rec-" + rec.Label
	rec.IsActive = true
	f.rows = append(f.rows, *rec)
	return nil
}

func (f *fakeRecipients) Update(_ context.Context, id string, patch RecipientPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID != id {
			continue
		}
		if patch.Label != nil {
			f.rows[i].Label = *patch.Label
		}
		if patch.IsActive != nil {
			f.rows[i].IsActive = *patch.IsActive
		}
		if patch.Notes != nil {
			f.rows[i].Notes = patch.Notes
		}
		return nil
	}
	return ErrNotFound
}

func (f *fakeRecipients) SoftDelete(ctx context.Context, id string) error {
	inactive := false
	return f.Update(ctx, id, RecipientPatch{IsActive: &inactive})
}

func (f *fakeRecipients) RecordResult(_ context.Context, id string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = map[string][]bool{}
	}
	f.results[id] = append(f.results[id], success)
	return nil
}

type fakeProvider struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(_ context.Context, to, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[to] {
		return "", errors.New("carrier rejected")
	}
	p.sent = append(p.sent, to)
	return "msg-" + to, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*funnel.InquiryEvent
}

func (f *fakeEvents) Insert(_ context.Context, e *funnel.InquiryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func TestValidE164(t *testing.T) {
	assert.True(t, ValidE164("+821012345678"))
	assert.True(t, ValidE164("+15551234567"))
	assert.False(t, ValidE164("01012345678"))
	assert.False(t, ValidE164("+0101234"))
	assert.False(t, ValidE164("+82 10 1234 5678"))
	assert.False(t, ValidE164("+1234567890123456"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+********5678", MaskPhone("+821012345678"))
	assert.Equal(t, "+****-****-5678", MaskPhone("+82 10-1234-5678"))
	assert.Equal(t, "****", MaskPhone("123"))
}

func TestDirectoryPrefersDatabase(t *testing.T) {
	store := &fakeRecipients{rows: []Recipient{
		{ID: "a", Label: "Ops", Phone: "+821011112222", Channel: "sms", IsActive: true},
		{ID: "b", Label: "Old", Phone: "+821033334444", Channel: "sms", IsActive: false},
	}}
	dir := NewDirectory(store, []string{"+15550000000"})

	targets := dir.Active(context.Background())
	want := []Target{{ID: "a", Label: "Ops", Phone: "+821011112222", Channel: "sms", Source: SourceDB}}
	if diff := cmp.Diff(want, targets); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectoryFallsBackToEnv(t *testing.T) {
	for name, store := range map[string]*fakeRecipients{
		"empty":   {},
		"failing": {err: errors.New("relation does not exist")},
	} {
		t.Run(name, func(t *testing.T) {
			dir := NewDirectory(store, []string{"+15550000000", " ", "+15551111111"})
			targets := dir.Active(context.Background())
			require.Len(t, targets, 2)
			assert.Equal(t, "ENV-1", targets[0].Label)
			assert.Equal(t, "ENV-3", targets[1].Label)
			assert.Equal(t, SourceEnv, targets[1].Source)
			assert.Empty(t, targets[0].ID)
		})
	}
}

func TestBuildMessage(t *testing.T) {
	created := time.Date(2024, 5, 1, 6, 4, 5, 0, time.UTC)

	msg := BuildMessage(Payload{
		InquiryID:     42,
		Nationality:   "JP",
		TreatmentType: "rhinoplasty",
		LeadQuality:   "hot",
		PriorityScore: 85,
		CreatedAt:     created,
	}, "https://admin.healo.test/")

	assert.True(t, strings.HasPrefix(msg, "🔥 긴급 새 문의 #42\n\n"))
	assert.Contains(t, msg, "국가: JP\n")
	assert.Contains(t, msg, "시술: rhinoplasty\n")
	assert.NotContains(t, msg, "연락:")
	assert.Contains(t, msg, "점수: 85\n")
	assert.Contains(t, msg, "시각: 2024. 5. 1. 15:04:05\n")
	assert.True(t, strings.HasSuffix(msg, "확인: https://admin.healo.test/admin/inquiries/42"))

	plain := BuildMessage(Payload{InquiryID: 7, CreatedAt: created}, "")
	assert.True(t, strings.HasPrefix(plain, "📬 새 문의 #7"))
	assert.NotContains(t, plain, "점수:")
	assert.NotContains(t, plain, "확인:")
}

func TestNotifierSendsRecordsAndCoolsDown(t *testing.T) {
	store := &fakeRecipients{rows: []Recipient{
		{ID: "a", Label: "Ops", Phone: "+821011112222", IsActive: true},
		{ID: "b", Label: "Night", Phone: "+821033334444", IsActive: true},
	}}
	provider := &fakeProvider{fail: map[string]bool{"+821033334444": true}}
	events := &fakeEvents{}
	n := NewNotifier(NewDirectory(store, nil), provider, events, "")

	summary := n.Notify(context.Background(), Payload{InquiryID: 9, CreatedAt: time.Now()})
	assert.Equal(t, Summary{Sent: 1, Failed: 1}, summary)
	assert.Equal(t, []string{"+821011112222"}, provider.sent)
	assert.Equal(t, map[string][]bool{"a": {true}, "b": {false}}, store.results)

	require.Len(t, events.events, 2)
	assert.Equal(t, "admin_notified", events.events[0].EventType)
	assert.Equal(t, "admin_notify_failed", events.events[1].EventType)
	assert.Equal(t, "+********2222", events.events[0].Meta["masked_to"])
	assert.Equal(t, int64(9), *events.events[1].InquiryID)

	again := n.Notify(context.Background(), Payload{InquiryID: 9, CreatedAt: time.Now()})
	assert.True(t, again.Skipped)
	assert.Len(t, provider.sent, 1)
}

func TestNotifierWithoutRecipients(t *testing.T) {
	provider := &fakeProvider{}
	n := NewNotifier(NewDirectory(&fakeRecipients{}, nil), provider, nil, "")

	assert.Equal(t, Summary{}, n.Notify(context.Background(), Payload{InquiryID: 1}))
	assert.Empty(t, provider.sent)
}

func TestDispatcherRoundTrip(t *testing.T) {
	pub := &kafka.MemoryPublisher{}
	d := NewDispatcher(pub)
	p := Payload{
		InquiryID:     12,
		Nationality:   "US",
		ContactMethod: "whatsapp",
		LeadQuality:   "warm",
		PriorityScore: 61,
		CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	d.Enqueue(context.Background(), p)

	events := pub.Snapshot()
	require.Len(t, events, 1)
	got, err := PayloadFromEvent(events[0])
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEventHandlerDropsMalformedEvents(t *testing.T) {
	provider := &fakeProvider{}
	n := NewNotifier(NewDirectory(nil, []string{"+15550000000"}), provider, nil, "")
	handler := n.EventHandler()

	pub := &kafka.MemoryPublisher{}
	require.NoError(t, pub.PublishEvent(context.Background(), "admin_notification", "test", map[string]interface{}{"nationality": "KR"}))
	require.NoError(t, handler(context.Background(), pub.Snapshot()[0]))
	assert.Empty(t, provider.sent)

	NewDispatcher(pub).Enqueue(context.Background(), Payload{InquiryID: 3})
	require.NoError(t, handler(context.Background(), pub.Snapshot()[1]))
	assert.Equal(t, []string{"+15550000000"}, provider.sent)
}

func TestTwilioProviderPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+821011112222", r.PostForm.Get("To"))
		assert.Equal(t, "+15550001111", r.PostForm.Get("From"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	p, err := NewTwilioProvider(srv.URL, "AC123", "secret", "+15550001111", time.Second)
	require.NoError(t, err)

	id, err := p.Send(context.Background(), "+821011112222", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM1", id)
}

func TestTwilioProviderReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	p, err := NewTwilioProvider(srv.URL, "AC123", "secret", "+15550001111", time.Second)
	require.NoError(t, err)

	_, err = p.Send(context.Background(), "+1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
}

func TestNewTwilioProviderRequiresCredentials(t *testing.T) {
	_, err := NewTwilioProvider("https://api.twilio.com", "", "x", "+1555", time.Second)
	require.Error(t, err)
}

func newRecipientRouter(store RecipientStore) *mux.Router {
	r := mux.NewRouter()
	NewHandler(store).Register(r)
	return r
}

func TestCreateRecipientValidation(t *testing.T) {
	router := newRecipientRouter(&fakeRecipients{})

	cases := []struct {
		body string
		code string
	}{
		{`{"label":"Ops"}`, "label_and_phone_required"},
		{`{"label":"  ","phone":"+821011112222"}`, "label_and_phone_required"},
		{`{"label":"Ops","phone":"010-1111-2222"}`, "invalid_phone_format"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notification-recipients", strings.NewReader(tc.body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)
		assert.Contains(t, rec.Body.String(), tc.code, tc.body)
	}
}

func TestRecipientCRUD(t *testing.T) {
	store := &fakeRecipients{}
	router := newRecipientRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notification-recipients",
		strings.NewReader(`{"label":"Ops","phone":"+821011112222"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "rec-Ops", created.ID)
	assert.Equal(t, ChannelSMS, store.rows[0].Channel)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notification-recipients", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phone":"+********2222"`)
	assert.NotContains(t, rec.Body.String(), "+821011112222")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/notification-recipients/rec-Ops",
		strings.NewReader(`{"label":"Ops lead","notes":"weekdays"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ops lead", store.rows[0].Label)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/notification-recipients/rec-Ops", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.rows[0].IsActive)
	assert.Len(t, store.rows, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/notification-recipients/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
