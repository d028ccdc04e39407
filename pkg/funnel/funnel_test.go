package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type memoryEvents struct {
	rows []*InquiryEvent
	err  error
}

func (m *memoryEvents) Insert(_ context.Context, e *InquiryEvent) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, e)
	return nil
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inquiries/event", strings.NewReader(body)))
	return rec
}

func TestEventRejectsUnknownType(t *testing.T) {
	rec := post(NewHandler(&memoryEvents{}), `{"eventType":"step3_viewed"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error   string   `json:"error"`
		Allowed []string `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_event_type", body.Error)
	assert.Len(t, body.Allowed, 4)
}

func TestEventRequiresInquiryIDAfterStep1View(t *testing.T) {
	store := &memoryEvents{}

	rec := post(NewHandler(store), `{"eventType":"step2_viewed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "inquiry_id_required")

	rec = post(NewHandler(store), `{"eventType":"step1_viewed","meta":["not","object"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.rows, 1)
	assert.Nil(t, store.rows[0].InquiryID)
	assert.Empty(t, store.rows[0].Meta)
}

func TestEventStoresMetaObject(t *testing.T) {
	store := &memoryEvents{}

	rec := post(NewHandler(store), `{"eventType":"step2_submitted","inquiryId":"12","meta":{"lang":"ko"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.rows, 1)
	assert.Equal(t, int64(12), *store.rows[0].InquiryID)
	assert.Equal(t, "ko", store.rows[0].Meta["lang"])
}

func TestEventInsertFailure(t *testing.T) {
	rec := post(NewHandler(&memoryEvents{err: errors.New("db down")}), `{"eventType":"step1_viewed"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "event_insert_failed")
}

func TestTrackerPublishesWithoutPII(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &kafka.MemoryPublisher{}
	tr := NewTracker(pub)
	tr.Track(Event{Stage: StageFormBlocked, DropReason: "rate_limit_exceeded"})
	tr.Wait()

	events := pub.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeFunnel, events[0].Type)
	assert.Equal(t, map[string]interface{}{
		"stage":       "form_blocked",
		"drop_reason": "rate_limit_exceeded",
	}, events[0].Data)
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tr *Tracker
	tr.Track(Event{Stage: StageChatStart})
	tr.Wait()
}
