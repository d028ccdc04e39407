package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// ProviderError is an upstream LLM failure mapped to a status and a stable
// code. Message is provider text and is only shown outside production.
type ProviderError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KeyMissing is returned when the configured provider has no API key.
func KeyMissing(provider string) *ProviderError {
	return &ProviderError{
		Status: http.StatusInternalServerError,
		Code:   normalizeProvider(provider) + "_key_missing",
	}
}

// Classify sniffs the provider error text. Errors that are already
// classified pass through unchanged.
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	message := err.Error()
	lower := strings.ToLower(message)
	provider = normalizeProvider(provider)
	out := func(status int, suffix string) *ProviderError {
		return &ProviderError{Status: status, Code: provider + "_" + suffix, Message: message, Err: err}
	}

	if provider == ProviderGoogle {
		switch {
		case strings.Contains(lower, "api key"):
			return out(http.StatusUnauthorized, "invalid_key")
		case strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient"):
			return out(http.StatusPaymentRequired, "quota_exceeded")
		case strings.Contains(lower, "permission") || strings.Contains(lower, "access"):
			return out(http.StatusForbidden, "access_denied")
		case strings.Contains(lower, "rate limit"):
			return out(http.StatusTooManyRequests, "rate_limited")
		}
		return out(http.StatusBadGateway, "error")
	}

	switch {
	case strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "quota"):
		return out(http.StatusPaymentRequired, "quota_exceeded")
	case strings.Contains(lower, "invalid_api_key") || strings.Contains(lower, "api key"):
		return out(http.StatusUnauthorized, "invalid_key")
	case strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "access")):
		return out(http.StatusForbidden, "model_access")
	case strings.Contains(lower, "rate limit"):
		return out(http.StatusTooManyRequests, "rate_limited")
	}
	return out(http.StatusBadGateway, "error")
}

func normalizeProvider(p string) string {
	if strings.EqualFold(strings.TrimSpace(p), ProviderGoogle) {
		return ProviderGoogle
	}
	return ProviderOpenAI
}
