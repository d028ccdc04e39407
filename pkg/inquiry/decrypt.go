package inquiry

import (
	"github.com/healo-ai/concierge/pkg/security"
)

// DecryptInquiry returns a copy with PII columns and intake PII keys
// decrypted. Fields that fail to decrypt stay as stored.
func DecryptInquiry(c *security.Cipher, in Inquiry) Inquiry {
	out := in
	out.FirstName = c.DecryptNullable("first_name", in.FirstName)
	out.LastName = c.DecryptNullable("last_name", in.LastName)
	out.Email = c.DecryptNullable("email", in.Email)
	out.ContactID = c.DecryptNullable("contact_id", in.ContactID)
	out.Message = c.DecryptNullable("message", in.Message)
	if in.Intake != nil {
		out.Intake = c.DecryptJSONFields(in.Intake, security.IntakePIIKeys, "intake")
	}
	return out
}

func DecryptNormalized(c *security.Cipher, n NormalizedInquiry) NormalizedInquiry {
	out := n
	out.RawMessage = c.DecryptNullable("raw_message", n.RawMessage)
	if n.Contact != nil {
		out.Contact = c.DecryptJSONFields(n.Contact, security.ContactPIIKeys, "contact")
	}
	return out
}
