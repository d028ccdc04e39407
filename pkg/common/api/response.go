package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Error is the {ok:false,...} body every endpoint returns on failure.
type Error struct {
	OK         bool        `json:"ok"`
	Error      string      `json:"error"`
	Detail     string      `json:"detail,omitempty"`
	Message    string      `json:"message,omitempty"`
	RetryAfter *int        `json:"retryAfter,omitempty"`
	Allowed    interface{} `json:"allowed,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code string) {
	WriteJSON(w, status, Error{Error: code})
}

func WriteErrorDetail(w http.ResponseWriter, status int, code, detail string) {
	WriteJSON(w, status, Error{Error: code, Detail: detail})
}

// DecodeBody decodes a JSON object body. An empty body decodes to the zero
// value, matching the lenient parsing of the public funnel endpoints.
func DecodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// QueryInt reads a non-negative integer query parameter.
func QueryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// QueryBool treats anything but an explicit "false"/"0" as the default.
func QueryBool(r *http.Request, key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	switch raw {
	case "":
		return def
	case "false", "0", "no":
		return false
	case "true", "1", "yes":
		return true
	}
	return def
}

// ClampLimit applies the default when limit is zero and caps it at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ParseID accepts a JSON number or a numeric string, as the public funnel
// clients send either. Zero and negative ids count as missing.
func ParseID(v interface{}) (int64, bool) {
	n, ok := parseInt(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseInt(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			f, ferr := id.Float64()
			if ferr != nil || f != float64(int64(f)) {
				return 0, false
			}
			n = int64(f)
		}
		return n, true
	case float64:
		if id != float64(int64(id)) {
			return 0, false
		}
		return int64(id), true
	case int64:
		return id, true
	case int:
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// String returns v when it is a non-empty string.
func String(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	}
	return ""
}
