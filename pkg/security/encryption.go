package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
)

const (
	keyVersion  = "v1"
	keyBytes    = 32
	nonceBytes  = 12
	gcmTagBytes = 16
)

var (
	ErrKeyMissing      = errors.New("encryption key is missing")
	ErrInvalidKey      = errors.New("encryption key format not recognized")
	ErrInvalidEnvelope = errors.New("invalid ciphertext envelope")
	ErrUnsupportedKey  = errors.New("unsupported key version")
)

// envelope is the stored representation of every encrypted field.
type envelope struct {
	V    string `json:"v"`
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// Cipher is the PII encryption boundary. It is built once at start-up so a
// missing or malformed key stops the process before any request is served.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key string) (*Cipher, error) {
	raw, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("creating block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, gcmTagBytes)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// decodeKey accepts base64 (43/44 chars), hex (64 chars) or a raw 32 byte string.
func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return nil, ErrKeyMissing
	case len(key) == 43 || len(key) == 44:
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
			if decoded, err := enc.DecodeString(key); err == nil && len(decoded) == keyBytes {
				return decoded, nil
			}
		}
		return nil, fmt.Errorf("%w: base64 value does not decode to %d bytes", ErrInvalidKey, keyBytes)
	case len(key) == 64:
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != keyBytes {
			return nil, fmt.Errorf("%w: hex value does not decode to %d bytes", ErrInvalidKey, keyBytes)
		}
		return decoded, nil
	case len(key) == keyBytes:
		logger.Log.Warn("using raw 32-byte string as encryption key; prefer base64")
		return []byte(key), nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidKey, len(key))
	}
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-gcmTagBytes], sealed[len(sealed)-gcmTagBytes:]

	out, err := json.Marshal(envelope{
		V:    keyVersion,
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Tag:  base64.StdEncoding.EncodeToString(tag),
		Data: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	return string(out), nil
}

func (c *Cipher) Decrypt(payload string) (string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.V != keyVersion {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKey, env.V)
	}
	if env.IV == "" || env.Tag == "" || env.Data == "" {
		return "", fmt.Errorf("%w: missing iv/tag/data", ErrInvalidEnvelope)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceBytes {
		return "", fmt.Errorf("%w: bad iv", ErrInvalidEnvelope)
	}
	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil || len(tag) != gcmTagBytes {
		return "", fmt.Errorf("%w: bad tag", ErrInvalidEnvelope)
	}
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return "", fmt.Errorf("%w: bad data", ErrInvalidEnvelope)
	}

	plain, err := c.aead.Open(nil, nonce, append(data, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypting payload: %w", err)
	}
	return string(plain), nil
}

// EncryptNullable returns nil for empty or whitespace-only input.
func (c *Cipher) EncryptNullable(value string) (*string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	enc, err := c.Encrypt(value)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// DecryptField is used only on admin read paths. A value that cannot be
// decrypted is returned as stored; the failure is logged without the value.
func (c *Cipher) DecryptField(field, value string) string {
	if value == "" || !IsEnvelope(value) {
		return value
	}
	plain, err := c.Decrypt(value)
	if err != nil {
		metrics.DecryptionFallbacks.WithLabelValues(field).Inc()
		logger.Log.WithError(err).WithField("field", field).Warn("decryption failed, returning stored value")
		return value
	}
	return plain
}

// DecryptNullable applies DecryptField to an optional column.
func (c *Cipher) DecryptNullable(field string, value *string) *string {
	if value == nil {
		return nil
	}
	out := c.DecryptField(field, *value)
	return &out
}

// IsEnvelope reports whether s has the shape of an encrypted payload.
func IsEnvelope(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return false
	}
	return env.V != "" && env.IV != "" && env.Tag != "" && env.Data != ""
}
