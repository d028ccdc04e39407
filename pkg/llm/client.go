package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/common/config"
	"github.com/healo-ai/concierge/pkg/gateway/httpclient"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	temperature = 0.3
)

var ErrEmptyCompletion = errors.New("empty completion from model")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces one completion for a system prompt and a conversation.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
	Model() string
}

// NewClient builds the client for cfg.LLMProvider. A missing key is
// reported as a *ProviderError with the <provider>_key_missing code.
func NewClient(cfg *config.Config) (Client, error) {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if normalizeProvider(cfg.LLMProvider) == ProviderGoogle {
		if cfg.GoogleAPIKey == "" {
			return nil, KeyMissing(ProviderGoogle)
		}
		return NewGoogleClient(cfg.GoogleBaseURL, cfg.GoogleAPIKey, cfg.GoogleModel, timeout), nil
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, KeyMissing(ProviderOpenAI)
	}
	return NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, timeout), nil
}

type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    httpclient.New(timeout),
	}
}

func (c *OpenAIClient) Model() string { return c.model }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	payload := openAIRequest{Model: c.model, Temperature: temperature}
	if system != "" {
		payload.Messages = append(payload.Messages, Message{Role: RoleSystem, Content: system})
	}
	payload.Messages = append(payload.Messages, messages...)

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	var out openAIResponse
	err := httpclient.Retry(ctx, 2, 500*time.Millisecond, func() error {
		out = openAIResponse{}
		return httpclient.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/chat/completions", headers, payload, &out)
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}

type GoogleClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewGoogleClient(baseURL, apiKey, model string, timeout time.Duration) *GoogleClient {
	return &GoogleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    httpclient.New(timeout),
	}
}

func (c *GoogleClient) Model() string { return c.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GoogleClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	var payload geminiRequest
	payload.GenerationConfig.Temperature = temperature
	if system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range messages {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = "model"
		}
		payload.Contents = append(payload.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	headers := map[string]string{"x-goog-api-key": c.apiKey}
	var out geminiResponse
	err := httpclient.Retry(ctx, 2, 500*time.Millisecond, func() error {
		out = geminiResponse{}
		return httpclient.DoJSON(ctx, c.http, http.MethodPost, endpoint, headers, payload, &out)
	})
	if err != nil {
		return "", fmt.Errorf("google completion: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return b.String(), nil
}
