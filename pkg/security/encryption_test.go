package security

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKey)
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plain := range []string{"jane@example.com", "김철수", "a", strings.Repeat("x", 5000)} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.True(t, IsEnvelope(enc))

		var env map[string]string
		require.NoError(t, json.Unmarshal([]byte(enc), &env))
		data, err := base64.StdEncoding.DecodeString(env["data"])
		require.NoError(t, err)
		assert.NotEqual(t, []byte(plain), data)
		if len(plain) > 4 {
			assert.NotContains(t, enc, plain)
			assert.NotContains(t, string(data), plain)
		}

		got, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEnvelopeShape(t *testing.T) {
	c := newTestCipher(t)
	enc, err := c.Encrypt("hello")
	require.NoError(t, err)

	var env map[string]string
	require.NoError(t, json.Unmarshal([]byte(enc), &env))
	assert.Equal(t, "v1", env["v"])

	iv, err := base64.StdEncoding.DecodeString(env["iv"])
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	tag, err := base64.StdEncoding.DecodeString(env["tag"])
	require.NoError(t, err)
	assert.Len(t, tag, 16)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c := newTestCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewCipherKeyFormats(t *testing.T) {
	raw := []byte("0123456789abcdef0123456789abcdef")

	_, err := NewCipher(base64.StdEncoding.EncodeToString(raw))
	assert.NoError(t, err)

	_, err = NewCipher(base64.RawStdEncoding.EncodeToString(raw))
	assert.NoError(t, err)

	_, err = NewCipher(hex.EncodeToString(raw))
	assert.NoError(t, err)

	_, err = NewCipher(string(raw))
	assert.NoError(t, err)

	_, err = NewCipher("")
	assert.ErrorIs(t, err, ErrKeyMissing)

	_, err = NewCipher("too-short")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewCipher(strings.Repeat("z", 64))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	c := newTestCipher(t)
	enc, err := c.Encrypt("secret")
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(enc), &env))
	data, _ := base64.StdEncoding.DecodeString(env.Data)
	data[0] ^= 0xff
	env.Data = base64.StdEncoding.EncodeToString(data)
	tampered, _ := json.Marshal(env)

	_, err = c.Decrypt(string(tampered))
	assert.Error(t, err)

	_, err = c.Decrypt(`{"v":"v2","iv":"a","tag":"b","data":"c"}`)
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	c := newTestCipher(t)
	enc, err := c.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewCipher(hex.EncodeToString([]byte("fedcba9876543210fedcba9876543210")))
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.Error(t, err)
}

func TestDecryptFieldFallsBackToStoredValue(t *testing.T) {
	c := newTestCipher(t)
	assert.Equal(t, "legacy plaintext", c.DecryptField("email", "legacy plaintext"))

	broken := `{"v":"v1","iv":"AAAAAAAAAAAAAAAA","tag":"AAAAAAAAAAAAAAAAAAAAAA==","data":"AAAA"}`
	assert.Equal(t, broken, c.DecryptField("email", broken))

	enc, err := c.Encrypt("jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", c.DecryptField("email", enc))
}

func TestEncryptNullable(t *testing.T) {
	c := newTestCipher(t)

	got, err := c.EncryptNullable("   ")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.EncryptNullable("Jane")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, IsEnvelope(*got))
}

func TestIsEnvelope(t *testing.T) {
	assert.False(t, IsEnvelope("plain"))
	assert.False(t, IsEnvelope(`{"v":"v1"}`))
	assert.False(t, IsEnvelope(`{not json`))
	assert.True(t, IsEnvelope(`{"v":"v1","iv":"a","tag":"b","data":"c"}`))
}
