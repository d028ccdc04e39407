package audit

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/healo-ai/concierge/pkg/dlp"
)

const maxMetadataString = 200

var allowedMetadataKeys = map[string]struct{}{
	"limit":              {},
	"offset":             {},
	"page":               {},
	"status":             {},
	"treatment_type":     {},
	"nationality":        {},
	"sort_by":            {},
	"sort_order":         {},
	"decrypt":            {},
	"include_normalized": {},
	"error":              {},
	"reason":             {},
	"path":               {},
	"method":             {},
	"format":             {},
}

// Sanitizer turns caller metadata into something safe to persist: unknown
// keys dropped, nested values dropped, long strings cut.
type Sanitizer struct {
	redactor *dlp.Detector
}

func NewSanitizer(redactor *dlp.Detector) *Sanitizer {
	return &Sanitizer{redactor: redactor}
}

func (s *Sanitizer) Metadata(meta map[string]interface{}) map[string]interface{} {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]interface{})
	for key, value := range meta {
		if _, ok := allowedMetadataKeys[key]; !ok {
			continue
		}
		switch v := value.(type) {
		case nil:
			out[key] = nil
		case bool:
			out[key] = v
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			out[key] = v
		case float32:
			if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
				out[key] = v
			}
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				out[key] = v
			}
		case json.Number:
			out[key] = v
		case string:
			out[key] = truncate(s.redactor.Redact(v))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMetadataString {
		return s
	}
	return string(r[:maxMetadataString]) + "…"
}

// ToIntArray keeps positive integers only. Numeric strings are accepted.
func ToIntArray(values []interface{}) []int64 {
	out := make([]int64, 0, len(values))
	for _, value := range values {
		if n, ok := positiveInt(value); ok {
			out = append(out, n)
		}
	}
	return out
}

func positiveInt(value interface{}) (int64, bool) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		n = int64(v)
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, false
		}
		n = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	return n, n > 0
}

// IDs converts typed ids for Entry.InquiryIDs.
func IDs(ids ...int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
