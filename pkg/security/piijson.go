package security

import "fmt"

var IntakePIIKeys = []string{
	"email",
	"phone",
	"passport_no",
	"passport_number",
	"kakao",
	"kakaotalk",
	"line",
	"whatsapp",
	"wechat",
	"telegram",
	"viber",
	"contact_id",
	"messenger_id",
	"social_id",
}

var ContactPIIKeys = []string{
	"email",
	"phone",
	"contact_id",
	"messenger_id",
	"messenger_handle",
	"social_handle",
}

// EncryptJSONFields returns a shallow copy of obj with the listed keys
// encrypted. Only non-empty string values are touched; values that are
// already envelopes are left alone so repeated merges do not double-encrypt.
func (c *Cipher) EncryptJSONFields(obj map[string]interface{}, keys []string) (map[string]interface{}, error) {
	if obj == nil {
		return nil, nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, key := range keys {
		s, ok := out[key].(string)
		if !ok || s == "" || IsEnvelope(s) {
			continue
		}
		enc, err := c.Encrypt(s)
		if err != nil {
			return nil, fmt.Errorf("encrypting %s: %w", key, err)
		}
		out[key] = enc
	}
	return out, nil
}

// DecryptJSONFields is the admin read-path counterpart; failures fall back
// to the stored value per key.
func (c *Cipher) DecryptJSONFields(obj map[string]interface{}, keys []string, prefix string) map[string]interface{} {
	if obj == nil {
		return nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, key := range keys {
		s, ok := out[key].(string)
		if !ok || s == "" {
			continue
		}
		out[key] = c.DecryptField(prefix+"."+key, s)
	}
	return out
}
