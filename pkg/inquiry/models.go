package inquiry

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusInProgress Status = "in_progress"
	StatusContacted  Status = "contacted"
	StatusClosed     Status = "closed"
	StatusSpam       Status = "spam"
)

var Statuses = []Status{StatusReceived, StatusInProgress, StatusContacted, StatusClosed, StatusSpam}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Attachment is one uploaded file in the private storage bucket.
type Attachment struct {
	Path string  `json:"path"`
	Name *string `json:"name,omitempty"`
	Type *string `json:"type,omitempty"`
}

// Inquiry is a patient lead. first_name, last_name, email, contact_id and
// message hold encrypted envelopes; intake PII keys are encrypted in place.
type Inquiry struct {
	ID                   int64             `json:"id" gorm:"primaryKey;column:id"`
	FirstName            *string           `json:"first_name" gorm:"column:first_name"`
	LastName             *string           `json:"last_name" gorm:"column:last_name"`
	Email                *string           `json:"email" gorm:"column:email"`
	Nationality          *string           `json:"nationality" gorm:"column:nationality;index"`
	SpokenLanguage       *string           `json:"spoken_language" gorm:"column:spoken_language"`
	ContactMethod        *string           `json:"contact_method" gorm:"column:contact_method"`
	ContactID            *string           `json:"contact_id" gorm:"column:contact_id"`
	TreatmentType        string            `json:"treatment_type" gorm:"column:treatment_type;index"`
	PreferredDate        *string           `json:"preferred_date" gorm:"column:preferred_date;type:text"`
	PreferredDateFlex    bool              `json:"preferred_date_flex" gorm:"column:preferred_date_flex"`
	Message              *string           `json:"message" gorm:"column:message"`
	Attachment           *string           `json:"attachment" gorm:"column:attachment"`
	Attachments          datatypes.JSON    `json:"attachments" gorm:"column:attachments;type:jsonb"`
	Intake               datatypes.JSONMap `json:"intake" gorm:"column:intake;type:jsonb"`
	Status               string            `json:"status" gorm:"column:status;index"`
	PublicToken          string            `json:"public_token,omitempty" gorm:"column:public_token;uniqueIndex"`
	PublicTokenRotatedAt *time.Time        `json:"public_token_rotated_at,omitempty" gorm:"column:public_token_rotated_at"`
	LeadQuality          *string           `json:"lead_quality" gorm:"column:lead_quality;index"`
	PriorityScore        *int              `json:"priority_score" gorm:"column:priority_score"`
	LeadTags             pq.StringArray    `json:"lead_tags" gorm:"column:lead_tags;type:text[]"`
	QualitySignals       pq.StringArray    `json:"quality_signals" gorm:"column:quality_signals;type:text[]"`
	QualityEvaluatedAt   *time.Time        `json:"quality_evaluated_at" gorm:"column:quality_evaluated_at"`
	CreatedAt            time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (Inquiry) TableName() string {
	return "inquiries"
}

// AttachmentList decodes the attachments column. Malformed JSON reads as
// no attachments.
func (i *Inquiry) AttachmentList() []Attachment {
	if len(i.Attachments) == 0 {
		return nil
	}
	var list []Attachment
	if err := json.Unmarshal(i.Attachments, &list); err != nil {
		return nil
	}
	return list
}

func (i *Inquiry) SetAttachments(list []Attachment) error {
	if len(list) == 0 {
		i.Attachments = nil
		return nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	i.Attachments = datatypes.JSON(raw)
	return nil
}

// OwnsPath reports whether path is the legacy single attachment or one of
// the listed attachments.
func (i *Inquiry) OwnsPath(path string) bool {
	if i.Attachment != nil && *i.Attachment == path {
		return true
	}
	for _, a := range i.AttachmentList() {
		if a.Path == path {
			return true
		}
	}
	return false
}

type ListFilter struct {
	Status        string
	TreatmentType string
	Nationality   string
	Limit         int
	Offset        int
}

// LeadQualityUpdate is written back after normalization scores a lead.
type LeadQualityUpdate struct {
	Quality     string
	Score       int
	Tags        []string
	Signals     []string
	EvaluatedAt time.Time
}
