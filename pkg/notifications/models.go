package notifications

import (
	"time"
)

const (
	ChannelSMS      = "sms"
	ChannelAlimtalk = "alimtalk"

	SourceDB  = "db"
	SourceEnv = "env"
)

// Recipient is an admin phone number that receives new-inquiry alerts.
type Recipient struct {
	ID          string     `json:"id" gorm:"primaryKey;column:id;type:uuid"`
	Label       string     `json:"label" gorm:"column:label"`
	Phone       string     `json:"phone" gorm:"column:phone"`
	Channel     string     `json:"channel" gorm:"column:channel;default:sms"`
	IsActive    bool       `json:"is_active" gorm:"column:is_active;default:true;index"`
	Notes       *string    `json:"notes" gorm:"column:notes"`
	LastSentAt  *time.Time `json:"last_sent_at" gorm:"column:last_sent_at"`
	SentCount   int        `json:"sent_count" gorm:"column:sent_count;default:0"`
	FailedCount int        `json:"failed_count" gorm:"column:failed_count;default:0"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (Recipient) TableName() string {
	return "notification_recipients"
}

// Target is a resolved send destination. ID is empty for recipients that
// came from ADMIN_PHONE_NUMBERS.
type Target struct {
	ID      string
	Label   string
	Phone   string
	Channel string
	Source  string
}

// Payload is what gets queued when an inquiry finishes intake. It carries no
// contact details.
type Payload struct {
	InquiryID     int64     `json:"inquiryId"`
	Nationality   string    `json:"nationality,omitempty"`
	TreatmentType string    `json:"treatmentType,omitempty"`
	ContactMethod string    `json:"contactMethod,omitempty"`
	LeadQuality   string    `json:"leadQuality,omitempty"`
	PriorityScore int       `json:"priorityScore,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RecipientPatch holds the fields an admin may change. Nil means untouched.
type RecipientPatch struct {
	Label    *string
	IsActive *bool
	Notes    *string
}
