package audit

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Action string

const (
	ActionListInquiries           Action = "LIST_INQUIRIES"
	ActionViewInquiry             Action = "VIEW_INQUIRY"
	ActionUpdateInquiry           Action = "UPDATE_INQUIRY"
	ActionDeleteInquiry           Action = "DELETE_INQUIRY"
	ActionExportInquiries         Action = "EXPORT_INQUIRIES"
	ActionUnauthorizedAdminAccess Action = "UNAUTHORIZED_ADMIN_ACCESS"
)

// Entry is what callers hand to the Auditor. InquiryIDs and Metadata are
// untrusted and get sanitized before insert.
type Entry struct {
	AdminEmail  string
	AdminUserID string
	Action      Action
	InquiryIDs  []interface{}
	IPAddress   string
	UserAgent   string
	Metadata    map[string]interface{}
}

// Record is the append-only admin_audit_logs row.
type Record struct {
	ID          int64             `json:"id" gorm:"primaryKey;column:id"`
	AdminEmail  *string           `json:"admin_email" gorm:"column:admin_email"`
	AdminUserID *string           `json:"admin_user_id,omitempty" gorm:"column:admin_user_id"`
	Action      string            `json:"action" gorm:"column:action;index"`
	InquiryIDs  pq.Int64Array     `json:"inquiry_ids" gorm:"column:inquiry_ids;type:bigint[]"`
	IPAddress   *string           `json:"ip_address,omitempty" gorm:"column:ip_address"`
	UserAgent   *string           `json:"user_agent,omitempty" gorm:"column:user_agent"`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at;index"`
}

func (Record) TableName() string {
	return "admin_audit_logs"
}

// Filter drives the admin audit log listing.
type Filter struct {
	Action     string
	AdminEmail string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
