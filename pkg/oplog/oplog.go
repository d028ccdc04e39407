// Package oplog writes operational events: why a request was refused or
// failed, with no personal data attached.
package oplog

import (
	"net"
	"strings"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/dlp"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	InquiryReceived     EventType = "inquiry_received"
	InquiryBlocked      EventType = "inquiry_blocked"
	InquiryFailed       EventType = "inquiry_failed"
	ChatReceived        EventType = "chat_received"
	ChatBlocked         EventType = "chat_blocked"
	NormalizeSuccess    EventType = "normalize_success"
	NormalizeFailed     EventType = "normalize_failed"
	EncryptionFailed    EventType = "encryption_failed"
	RateLimitExceeded   EventType = "rate_limit_exceeded"
	AdminNotified       EventType = "admin_notified"
	AdminNotifyFailed   EventType = "admin_notify_failed"
	AdminNotifyCritical EventType = "admin_notification_critical_error"
)

type Event struct {
	Event      EventType
	API        string
	ClientIP   string
	Reason     string
	StatusCode int
	Context    map[string]interface{}
}

var redactor = dlp.MustDefault()

func Info(e Event)  { write(logrus.InfoLevel, e) }
func Warn(e Event)  { write(logrus.WarnLevel, e) }
func Error(e Event) { write(logrus.ErrorLevel, e) }

func write(level logrus.Level, e Event) {
	fields := logrus.Fields{
		"operational": true,
		"event":       string(e.Event),
	}
	if e.API != "" {
		fields["api"] = e.API
	}
	if e.ClientIP != "" {
		fields["client_ip"] = MaskIP(e.ClientIP)
	}
	reason := redactor.Redact(e.Reason)
	if reason != "" {
		fields["reason"] = reason
	}
	if e.StatusCode != 0 {
		fields["status_code"] = e.StatusCode
	}
	for k, v := range e.Context {
		if s, ok := v.(string); ok {
			v = redactor.Redact(s)
		}
		fields["ctx_"+k] = v
	}

	msg := reason
	if msg == "" {
		msg = "processed"
	}
	logger.Log.WithFields(fields).Log(level, "[operational:"+string(e.Event)+"] "+msg)
}

// MaskIP hides the third IPv4 octet or the middle of an IPv6 address.
func MaskIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil && strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".***." + parts[3]
		}
	}
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		return parts[0] + ":" + parts[1] + "::***::" + parts[len(parts)-1]
	}
	if len(ip) > 8 {
		return "***" + ip[len(ip)-8:]
	}
	return ip
}
