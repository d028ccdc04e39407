package inquiry

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const (
	SourceInquiryForm = "inquiry_form"
	SourceAIAgent     = "ai_agent"
)

// NormalizedInquiry is the pipeline's structured view of an inquiry or a
// chat conversation. raw_message and the contact PII keys are encrypted.
type NormalizedInquiry struct {
	ID                   int64             `json:"id" gorm:"primaryKey;column:id"`
	SourceType           string            `json:"source_type" gorm:"column:source_type;index"`
	SourceInquiryID      *int64            `json:"source_inquiry_id" gorm:"column:source_inquiry_id;index"`
	Language             string            `json:"language" gorm:"column:language"`
	Country              *string           `json:"country" gorm:"column:country"`
	TreatmentSlug        *string           `json:"treatment_slug" gorm:"column:treatment_slug"`
	Objective            *string           `json:"objective" gorm:"column:objective"`
	Constraints          datatypes.JSONMap `json:"constraints" gorm:"column:constraints;type:jsonb"`
	RawMessage           *string           `json:"raw_message" gorm:"column:raw_message"`
	ExtractionConfidence float64           `json:"extraction_confidence" gorm:"column:extraction_confidence"`
	MissingFields        pq.StringArray    `json:"missing_fields" gorm:"column:missing_fields;type:text[]"`
	Contact              datatypes.JSONMap `json:"contact" gorm:"column:contact;type:jsonb"`
	CreatedAt            time.Time         `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (NormalizedInquiry) TableName() string {
	return "normalized_inquiries"
}
