package notifications

import (
	"fmt"
	"strings"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// BuildMessage renders the SMS body. The admin team reads these in Korean.
func BuildMessage(p Payload, dashboardURL string) string {
	urgency := "📬"
	if p.LeadQuality == "hot" {
		urgency = "🔥 긴급"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s 새 문의 #%d\n\n", urgency, p.InquiryID)
	if p.Nationality != "" {
		fmt.Fprintf(&b, "국가: %s\n", p.Nationality)
	}
	if p.TreatmentType != "" {
		fmt.Fprintf(&b, "시술: %s\n", p.TreatmentType)
	}
	if p.ContactMethod != "" {
		fmt.Fprintf(&b, "연락: %s\n", p.ContactMethod)
	}
	if p.PriorityScore != 0 {
		fmt.Fprintf(&b, "점수: %d\n", p.PriorityScore)
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	fmt.Fprintf(&b, "\n시각: %s\n", created.In(kst).Format("2006. 1. 2. 15:04:05"))

	if dashboardURL = strings.TrimRight(dashboardURL, "/"); dashboardURL != "" {
		fmt.Fprintf(&b, "\n확인: %s/admin/inquiries/%d", dashboardURL, p.InquiryID)
	}
	return b.String()
}
