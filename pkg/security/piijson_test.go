package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptJSONFieldsOnlyTouchesNonEmptyStrings(t *testing.T) {
	c := newTestCipher(t)
	in := map[string]interface{}{
		"email":      "jane@example.com",
		"phone":      "",
		"whatsapp":   12345,
		"complaint":  map[string]interface{}{"body_part": "nose"},
		"contact_id": "jane_kakao",
	}

	out, err := c.EncryptJSONFields(in, IntakePIIKeys)
	require.NoError(t, err)

	assert.True(t, IsEnvelope(out["email"].(string)))
	assert.True(t, IsEnvelope(out["contact_id"].(string)))
	assert.Equal(t, "", out["phone"])
	assert.Equal(t, 12345, out["whatsapp"])
	assert.Equal(t, in["complaint"], out["complaint"])

	// input is not mutated
	assert.Equal(t, "jane@example.com", in["email"])
}

func TestEncryptJSONFieldsDoesNotDoubleEncrypt(t *testing.T) {
	c := newTestCipher(t)
	first, err := c.EncryptJSONFields(map[string]interface{}{"email": "a@b.co"}, IntakePIIKeys)
	require.NoError(t, err)
	second, err := c.EncryptJSONFields(first, IntakePIIKeys)
	require.NoError(t, err)
	assert.Equal(t, first["email"], second["email"])

	back := c.DecryptJSONFields(second, IntakePIIKeys, "intake")
	assert.Equal(t, "a@b.co", back["email"])
}
