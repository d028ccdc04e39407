package models

import (
	"time"
)

// Event is the envelope written to every Kafka topic. Data never carries
// plaintext PII.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // funnel, admin_notification, operational_alert
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventTypeFunnel            = "funnel"
	EventTypeAdminNotification = "admin_notification"
	EventTypeOperationalAlert  = "operational_alert"
)
