package rag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

type SourceType string

const (
	SourceTreatment         SourceType = "treatment"
	SourceHospital          SourceType = "hospital"
	SourceReview            SourceType = "review"
	SourceNormalizedInquiry SourceType = "normalized_inquiry"
	SourcePolicy            SourceType = "policy"
	SourceFAQ               SourceType = "faq"
)

// DefaultSources are ingested when the caller names none.
var DefaultSources = []SourceType{SourceTreatment, SourceHospital, SourceReview, SourceNormalizedInquiry}

// Row is one source record as read from its table.
type Row map[string]interface{}

type Document struct {
	SourceType SourceType
	SourceID   string
	Lang       string
	Title      *string
	Content    string
}

// BuildDocument renders a source row as searchable text. Normalized
// inquiries never carry raw_message or contact into the content.
func BuildDocument(sourceType SourceType, row Row) Document {
	doc := Document{SourceType: sourceType, SourceID: row.str("id"), Lang: "en"}

	switch sourceType {
	case SourceTreatment:
		doc.Title = optional(row.str("name"))
		doc.Content = joinLines(
			"Treatment: "+row.str("name"),
			row.line("Slug", "slug"),
			row.line("Summary", "description"),
			row.line("Details", "full_description"),
			row.listLine("Tags", "tags"),
			row.listLine("Benefits", "benefits"),
			row.line("Price Min", "price_min"),
			row.line("Price Max", "price_max"),
			row.line("Hospital", "hospital_name"),
			row.line("Hospital Location (EN)", "hospital_location_en"),
			row.line("Hospital Location (KR)", "hospital_location_kr"),
		)

	case SourceHospital:
		doc.Title = optional(row.str("name"))
		doc.Content = joinLines(
			"Hospital: "+row.str("name"),
			row.line("Slug", "slug"),
			row.line("Summary", "description"),
			row.line("Location (EN)", "location_en"),
			row.line("Location (KR)", "location_kr"),
			row.line("Address Detail", "address_detail"),
			row.listLine("Tags", "tags"),
			row.jsonLine("Operating Hours", "operating_hours"),
			row.line("Doctor Profile", "doctor_profile"),
		)

	case SourceReview:
		title := "Review"
		if user := row.str("user_name"); user != "" {
			title = "Review by " + user
		}
		doc.Title = &title
		doc.Content = joinLines(
			row.line("Treatment ID", "treatment_id"),
			row.line("User", "user_name"),
			row.line("Country", "country"),
			row.line("Rating", "rating"),
			row.line("Created", "created_at"),
			row.line("Review", "content"),
		)

	case SourceNormalizedInquiry:
		title := row.str("objective")
		if title == "" && row.str("treatment_slug") != "" {
			title = "Inquiry about " + row.str("treatment_slug")
		}
		if title == "" {
			title = "Inquiry"
		}
		doc.Title = &title
		if lang := row.str("language"); lang != "" {
			doc.Lang = lang
		}
		doc.Content = joinLines(
			row.line("Language", "language"),
			row.line("Country", "country"),
			row.line("Treatment ID", "treatment_id"),
			row.line("Treatment Slug", "treatment_slug"),
			row.line("Objective", "objective"),
			row.jsonLine("Constraints", "constraints"),
			row.line("Extraction Confidence", "extraction_confidence"),
			row.listLine("Missing Fields", "missing_fields"),
		)

	default:
		doc.Title = optional(row.str("title"))
		if lang := row.str("lang"); lang != "" {
			doc.Lang = lang
		}
		doc.Content = strings.TrimSpace(row.str("content"))
	}
	return doc
}

func (r Row) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) line(label, key string) string {
	if v := r.str(key); v != "" {
		return label + ": " + v
	}
	return ""
}

func (r Row) listLine(label, key string) string {
	if items := r.list(key); len(items) > 0 {
		return label + ": " + strings.Join(items, ", ")
	}
	return ""
}

func (r Row) jsonLine(label, key string) string {
	v := r[key]
	if v == nil {
		return ""
	}
	var raw []byte
	switch t := v.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		raw = encoded
	}
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return label + ": " + s
}

// list accepts decoded JSON arrays and Postgres array literals.
func (r Row) list(key string) []string {
	var out []string
	switch v := r[key].(type) {
	case []string:
		out = v
	case pq.StringArray:
		out = v
	case []interface{}:
		for _, item := range v {
			if s := fmt.Sprint(item); item != nil && s != "" {
				out = append(out, s)
			}
		}
	case string, []byte:
		var arr pq.StringArray
		if err := arr.Scan(v); err == nil {
			out = arr
		}
	}
	return out
}

func joinLines(lines ...string) string {
	kept := lines[:0]
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
