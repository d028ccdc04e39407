package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/healo-ai/concierge/pkg/common/config"
	"github.com/healo-ai/concierge/pkg/common/logger"
)

// Provider delivers a text message to one phone number and returns the
// vendor message id.
type Provider interface {
	Name() string
	Send(ctx context.Context, to, message string) (string, error)
}

func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.SMSProvider {
	case "", "console":
		return ConsoleProvider{}, nil
	case "twilio":
		return NewTwilioProvider(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.UpstreamRequestTimeout)
	default:
		return nil, fmt.Errorf("unsupported SMS_PROVIDER %q", cfg.SMSProvider)
	}
}

// ConsoleProvider writes the message to the log instead of sending it.
type ConsoleProvider struct{}

func (ConsoleProvider) Name() string { return "console" }

func (ConsoleProvider) Send(_ context.Context, to, message string) (string, error) {
	logger.Log.WithFields(map[string]interface{}{
		"masked_to": MaskPhone(to),
		"body":      message,
	}).Info("SMS (console mode)")
	return "console-" + uuid.New().String(), nil
}

type TwilioProvider struct {
	client *resty.Client
	sid    string
	from   string
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func NewTwilioProvider(baseURL, accountSID, authToken, from string, timeout time.Duration) (*TwilioProvider, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("twilio credentials not configured")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json")

	return &TwilioProvider{client: client, sid: accountSID, from: from}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Send(ctx context.Context, to, message string) (string, error) {
	var (
		result twilioMessage
		apiErr twilioError
	)
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("sid", p.sid).
		SetFormData(map[string]string{
			"To":   to,
			"From": p.from,
			"Body": message,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("twilio error %d (status %d): %s", apiErr.Code, resp.StatusCode(), apiErr.Message)
	}
	return result.SID, nil
}
