package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// MaskEmail keeps the first character of the local part: j***@example.com.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local := []rune(email[:at])
	return string(local[0]) + "***" + email[at:]
}

// MaskName keeps the first rune of each word.
func MaskName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		r := []rune(f)
		fields[i] = string(r[0]) + strings.Repeat("*", len(r)-1)
	}
	return strings.Join(fields, " ")
}

// MaskPhone keeps the last four characters and replaces every other digit.
func MaskPhone(phone string) string {
	r := []rune(strings.TrimSpace(phone))
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	cut := len(r) - 4
	for i := 0; i < cut; i++ {
		if unicode.IsDigit(r[i]) {
			r[i] = '*'
		}
	}
	return string(r)
}

func MaskMessage(message string) string {
	r := []rune(strings.TrimSpace(message))
	if len(r) == 0 {
		return ""
	}
	if len(r) <= 20 {
		return string(r[:len(r)/2]) + "...***"
	}
	return string(r[:20]) + "...***"
}

// SafeHash is a short, non-reversible identifier suitable for log correlation.
func SafeHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}

// EmailHash is the lookup key stored next to an encrypted email.
func EmailHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
