package referral

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/inquiry"
	"github.com/healo-ai/concierge/pkg/normalizer"
)

// Summary is the hospital-facing view of a normalized inquiry. It carries
// no contact PII.
type Summary struct {
	Patient     Patient            `json:"patient"`
	Complaint   Complaint          `json:"complaint"`
	History     History            `json:"history"`
	Logistics   Logistics          `json:"logistics"`
	Attachments []SignedAttachment `json:"attachments"`
	Quality     Quality            `json:"quality"`
}

type Patient struct {
	Country  *string `json:"country"`
	Language *string `json:"language"`
}

type Complaint struct {
	BodyPart  []string `json:"body_part"`
	Duration  *string  `json:"duration"`
	Severity  *float64 `json:"severity"`
	Objective *string  `json:"objective"`
}

type History struct {
	Diagnosis *normalizer.HistoryItem `json:"diagnosis"`
	Meds      *normalizer.HistoryItem `json:"meds"`
}

type Logistics struct {
	PreferredDate *string `json:"preferred_date"`
	Flex          bool    `json:"flex"`
}

type SignedAttachment struct {
	Path      string    `json:"path"`
	Name      *string   `json:"name"`
	SignedURL string    `json:"signedUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Quality struct {
	ExtractionConfidence *float64 `json:"extraction_confidence"`
	MissingFields        []string `json:"missing_fields"`
}

// BuildSummary reads the intake stored under constraints.intake. A
// malformed intake yields empty sections rather than an error.
func BuildSummary(n *inquiry.NormalizedInquiry, attachments []SignedAttachment) *Summary {
	intake := decodeIntake(n.Constraints["intake"])

	s := &Summary{
		Patient: Patient{
			Country:  nonEmpty(n.Country),
			Language: nonEmpty(&n.Language),
		},
		Complaint: Complaint{
			Duration:  nonEmpty(intake.Complaint.Duration),
			Severity:  intake.Complaint.Severity,
			Objective: nonEmpty(n.Objective),
		},
		History: History{
			Diagnosis: intake.History.Diagnosis,
			Meds:      intake.History.Meds,
		},
		Logistics: Logistics{
			PreferredDate: nonEmpty(intake.Logistics.PreferredDate),
			Flex:          intake.Logistics.Flex,
		},
		Attachments: attachments,
	}
	if s.Complaint.Objective == nil {
		if objective, ok := n.Constraints["objective"].(string); ok {
			s.Complaint.Objective = nonEmpty(&objective)
		}
	}
	if len(intake.Complaint.BodyPart) > 0 {
		s.Complaint.BodyPart = intake.Complaint.BodyPart
	}
	if s.Attachments == nil {
		s.Attachments = []SignedAttachment{}
	}

	confidence := n.ExtractionConfidence
	s.Quality.ExtractionConfidence = &confidence
	if len(n.MissingFields) > 0 {
		s.Quality.MissingFields = n.MissingFields
	}
	return s
}

func decodeIntake(v interface{}) normalizer.IntakeConstraints {
	var intake normalizer.IntakeConstraints
	if v == nil {
		return intake
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return intake
	}
	if err := json.Unmarshal(raw, &intake); err != nil {
		return normalizer.IntakeConstraints{}
	}
	return intake
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Markdown renders the summary for pasting into a hospital referral.
func (s *Summary) Markdown() string {
	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Patient Referral Summary")
	line("")
	line("## Patient Information")
	line("- **Country**: %s", orNA(s.Patient.Country))
	line("- **Language**: %s", orNA(s.Patient.Language))
	line("")

	line("## Chief Complaint")
	if len(s.Complaint.BodyPart) > 0 {
		line("- **Body Part(s)**: %s", strings.Join(s.Complaint.BodyPart, ", "))
	}
	if s.Complaint.Duration != nil {
		line("- **Duration**: %s", *s.Complaint.Duration)
	}
	if s.Complaint.Severity != nil {
		line("- **Severity**: %s/10", strconv.FormatFloat(*s.Complaint.Severity, 'f', -1, 64))
	}
	if s.Complaint.Objective != nil {
		line("- **Objective**: %s", *s.Complaint.Objective)
	}
	line("")

	line("## Medical History")
	if d := s.History.Diagnosis; d != nil {
		line("- **Prior Diagnosis**: %s", yesNo(d.Has))
		if d.Text != "" {
			line("  - Details: %s", d.Text)
		}
	}
	if m := s.History.Meds; m != nil {
		line("- **Current Medications**: %s", yesNo(m.Has))
		if m.Text != "" {
			line("  - Details: %s", m.Text)
		}
	}
	line("")

	line("## Logistics")
	if s.Logistics.PreferredDate != nil {
		line("- **Preferred Date**: %s", *s.Logistics.PreferredDate)
	}
	if s.Logistics.Flex {
		line("- **Date Flexible**: Yes")
	}
	line("")

	if len(s.Attachments) > 0 {
		line("## Attachments")
		for _, a := range s.Attachments {
			name := a.Path
			if a.Name != nil && *a.Name != "" {
				name = *a.Name
			}
			line("- %s (signed URL, expires: %s)", name, a.ExpiresAt.UTC().Format(time.RFC3339))
			line("  - %s", a.SignedURL)
		}
		line("")
	}

	line("## Data Quality")
	if s.Quality.ExtractionConfidence != nil {
		line("- **Extraction Confidence**: %d%%", int(math.Round(*s.Quality.ExtractionConfidence*100)))
	}
	if len(s.Quality.MissingFields) > 0 {
		line("- **Missing Fields**: %s", strings.Join(s.Quality.MissingFields, ", "))
	}
	line("")

	return strings.TrimSuffix(b.String(), "\n")
}
