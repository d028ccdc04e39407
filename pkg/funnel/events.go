package funnel

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

const (
	EventStep1Viewed    EventType = "step1_viewed"
	EventStep1Submitted EventType = "step1_submitted"
	EventStep2Viewed    EventType = "step2_viewed"
	EventStep2Submitted EventType = "step2_submitted"
)

var AllowedEventTypes = []EventType{EventStep1Viewed, EventStep1Submitted, EventStep2Viewed, EventStep2Submitted}

// RequiresInquiryID reports whether the event only makes sense once the
// inquiry row exists.
func (t EventType) RequiresInquiryID() bool {
	return t == EventStep1Submitted || t == EventStep2Viewed || t == EventStep2Submitted
}

func (t EventType) Valid() bool {
	for _, allowed := range AllowedEventTypes {
		if t == allowed {
			return true
		}
	}
	return false
}

type InquiryEvent struct {
	ID        int64             `json:"id" gorm:"primaryKey;column:id"`
	InquiryID *int64            `json:"inquiry_id" gorm:"column:inquiry_id;index"`
	EventType string            `json:"event_type" gorm:"column:event_type;index"`
	Meta      datatypes.JSONMap `json:"meta" gorm:"column:meta;type:jsonb"`
	CreatedAt time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (InquiryEvent) TableName() string {
	return "inquiry_events"
}

type EventStore interface {
	Insert(ctx context.Context, e *InquiryEvent) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&InquiryEvent{})
}

func (r *Repository) Insert(ctx context.Context, e *InquiryEvent) error {
	e.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(e).Error
}
