package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/healo-ai/concierge/pkg/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOpenAI(t *testing.T) {
	cases := []struct {
		msg    string
		status int
		code   string
	}{
		{"You exceeded your current quota (insufficient_quota)", 402, "openai_quota_exceeded"},
		{"Incorrect API key provided", 401, "openai_invalid_key"},
		{"The model `gpt-9` does not exist", 403, "openai_model_access"},
		{"you do not have access to model gpt-4o", 403, "openai_model_access"},
		{"Rate limit reached for requests", 429, "openai_rate_limited"},
		{"connection reset by peer", 502, "openai_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			pe := Classify("openai", errors.New(tc.msg))
			require.NotNil(t, pe)
			assert.Equal(t, tc.status, pe.Status)
			assert.Equal(t, tc.code, pe.Code)
			assert.Equal(t, tc.msg, pe.Message)
		})
	}
}

func TestClassifyGoogle(t *testing.T) {
	cases := []struct {
		msg    string
		status int
		code   string
	}{
		{"API key not valid. Please pass a valid API key.", 401, "google_invalid_key"},
		{"Resource has been exhausted (e.g. check quota).", 402, "google_quota_exceeded"},
		{"PERMISSION_DENIED", 403, "google_access_denied"},
		{"rate limit hit", 429, "google_rate_limited"},
		{"boom", 502, "google_error"},
	}
	for _, tc := range cases {
		pe := Classify("Google", errors.New(tc.msg))
		assert.Equal(t, tc.status, pe.Status, tc.msg)
		assert.Equal(t, tc.code, pe.Code, tc.msg)
	}
}

func TestClassifyPassThrough(t *testing.T) {
	assert.Nil(t, Classify("openai", nil))
	missing := KeyMissing("google")
	assert.Same(t, missing, Classify("openai", missing))
	assert.Equal(t, "google_key_missing", missing.Code)
	assert.Equal(t, http.StatusInternalServerError, missing.Status)
}

func TestNewClientKeyMissing(t *testing.T) {
	_, err := NewClient(&config.Config{LLMProvider: "openai"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "openai_key_missing", pe.Code)

	_, err = NewClient(&config.Config{LLMProvider: "google"})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "google_key_missing", pe.Code)

	c, err := NewClient(&config.Config{LLMProvider: "google", GoogleAPIKey: "k", GoogleModel: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", c.Model())
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)
		assert.Equal(t, "be brief", req.Messages[0].Content)
		assert.Equal(t, "hi", req.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1/", "sk-test", "gpt-test", time.Second)
	reply, err := c.Complete(context.Background(), "be brief", []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
}

func TestOpenAIErrorIsClassifiable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "bad", "gpt-test", time.Second)
	_, err := c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "openai_invalid_key", Classify(ProviderOpenAI, err).Code)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "k", "m", time.Second).Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGoogleComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "sys", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 2)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"an"},{"text":"nyeong"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGoogleClient(srv.URL, "g-key", "gemini-test", time.Second)
	reply, err := c.Complete(context.Background(), "sys", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "annyeong", reply)
}
