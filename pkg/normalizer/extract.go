package normalizer

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const requiredFieldCount = 5

type keywordRule struct {
	pattern *regexp.Regexp
	label   string
}

var bodyPartRules = []keywordRule{
	{regexp.MustCompile(`nose|rhinoplasty|nasal`), "nose"},
	{regexp.MustCompile(`skin|acne|facial|laser|botox|filler`), "skin"},
	{regexp.MustCompile(`breast|augmentation|implants`), "breast"},
	{regexp.MustCompile(`hair|transplant|follicle`), "hair"},
	{regexp.MustCompile(`eye|lasik|eyelid`), "eye"},
	{regexp.MustCompile(`abdomen|tummy|liposuction|belly`), "abdomen"},
	{regexp.MustCompile(`chin|jaw`), "chin"},
	{regexp.MustCompile(`dental|implant|tooth|teeth`), "dental"},
}

var contraindicationRules = []keywordRule{
	{regexp.MustCompile(`allergy|allergic`), "allergy"},
	{regexp.MustCompile(`medication|medicine|meds|drug`), "medication"},
	{regexp.MustCompile(`diabetes|diabetic`), "diabetes"},
	{regexp.MustCompile(`pregnant|pregnancy`), "pregnant"},
}

// BodyPartFromText returns the first body part whose keywords appear in text.
func BodyPartFromText(text string) string {
	s := strings.ToLower(text)
	if s == "" {
		return ""
	}
	for _, rule := range bodyPartRules {
		if rule.pattern.MatchString(s) {
			return rule.label
		}
	}
	return ""
}

type Flags struct {
	Contraindications []string
	Allergy           bool
	Medications       bool
}

func FlagsFromMessage(message string) Flags {
	s := strings.ToLower(message)
	var f Flags
	for _, rule := range contraindicationRules {
		if !rule.pattern.MatchString(s) {
			continue
		}
		f.Contraindications = append(f.Contraindications, rule.label)
		switch rule.label {
		case "allergy":
			f.Allergy = true
		case "medication":
			f.Medications = true
		}
	}
	return f
}

// DetectLanguage maps a free-form spoken_language value to ko, ja or en.
func DetectLanguage(value string) string {
	v := strings.ToLower(value)
	switch {
	case strings.Contains(v, "ko"), strings.Contains(v, "kr"), strings.Contains(v, "korean"):
		return "ko"
	case strings.Contains(v, "ja"), strings.Contains(v, "jp"), strings.Contains(v, "japanese"):
		return "ja"
	default:
		return "en"
	}
}

type Complaint struct {
	BodyPart []string `json:"body_part"`
	Duration *string  `json:"duration"`
	Severity *float64 `json:"severity"`
}

type HistoryItem struct {
	Has  bool   `json:"has"`
	Text string `json:"text"`
}

type History struct {
	Diagnosis         *HistoryItem `json:"diagnosis"`
	Meds              *HistoryItem `json:"meds"`
	Contraindications []string     `json:"contraindications,omitempty"`
}

type Logistics struct {
	PreferredDate *string `json:"preferred_date"`
	Flex          bool    `json:"flex"`
}

// IntakeConstraints is the fixed shape stored under constraints.intake.
type IntakeConstraints struct {
	Complaint Complaint `json:"complaint"`
	History   History   `json:"history"`
	Logistics Logistics `json:"logistics"`
}

// FromIntake maps a step-2 intake object directly.
func FromIntake(intake map[string]interface{}, preferredDate *string, flex bool) IntakeConstraints {
	c, _ := intake["complaint"].(map[string]interface{})
	h, _ := intake["history"].(map[string]interface{})

	out := IntakeConstraints{Logistics: Logistics{PreferredDate: dateOnly(preferredDate), Flex: flex}}

	switch v := c["body_part"].(type) {
	case []interface{}:
		for _, item := range v {
			if s := getString(item); s != "" {
				out.Complaint.BodyPart = append(out.Complaint.BodyPart, s)
			}
		}
	case []string:
		out.Complaint.BodyPart = v
	case string:
		if v != "" {
			out.Complaint.BodyPart = []string{v}
		}
	}
	if d, ok := c["duration"].(string); ok && d != "" {
		out.Complaint.Duration = &d
	}
	out.Complaint.Severity = number(c["severity"])

	out.History.Diagnosis = historyItem(h["diagnosis"])
	out.History.Meds = historyItem(h["meds"])
	return out
}

// FromForm derives constraints from step-1 fields when no intake exists.
func FromForm(treatmentType, message string, preferredDate *string, flex bool) IntakeConstraints {
	out := IntakeConstraints{Logistics: Logistics{PreferredDate: dateOnly(preferredDate), Flex: flex}}

	subject := treatmentType
	if subject == "" {
		subject = message
	}
	if part := BodyPartFromText(subject); part != "" {
		out.Complaint.BodyPart = []string{part}
	}

	flags := FlagsFromMessage(message)
	if flags.Medications {
		out.History.Meds = &HistoryItem{Has: true}
	}
	out.History.Contraindications = flags.Contraindications
	return out
}

type ContactFields struct {
	Email         string
	ContactMethod string
	ContactID     string
	Nationality   string
	Language      string
	TreatmentType string
	PreferredDate string
	Flex          bool
}

// MissingFields lists the required fields a lead is missing.
func MissingFields(f ContactFields) []string {
	var missing []string
	reachable := strings.TrimSpace(f.Email) != "" || (f.ContactMethod != "" && strings.TrimSpace(f.ContactID) != "")
	if !reachable {
		missing = append(missing, "contact_reachable")
	}
	if strings.TrimSpace(f.Nationality) == "" {
		missing = append(missing, "nationality")
	}
	if strings.TrimSpace(f.Language) == "" {
		missing = append(missing, "spoken_language")
	}
	if strings.TrimSpace(f.TreatmentType) == "" {
		missing = append(missing, "treatment_type")
	}
	if strings.TrimSpace(f.PreferredDate) == "" && !f.Flex {
		missing = append(missing, "preferred_date_or_flex")
	}
	return missing
}

// Confidence is 1 - missing/5 rounded to two decimals, or 0 when every
// required field is missing.
func Confidence(missing int) float64 {
	if missing >= requiredFieldCount {
		return 0
	}
	v := math.Round((1-float64(missing)/requiredFieldCount)*100) / 100
	return math.Min(1, v)
}

func historyItem(v interface{}) *HistoryItem {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return &HistoryItem{Has: truthy(m["has"]), Text: getString(m["text"])}
}

func dateOnly(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	d := *s
	if len(d) > 10 {
		d = d[:10]
	}
	return &d
}

func number(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0
	case nil:
		return false
	default:
		return true
	}
}

func getString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}
