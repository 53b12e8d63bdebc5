package testhelpers

import (
	"encoding/base64"
	"fmt"
)

// GenerateTestJWT creates a test JWT token for use when verification is disabled.
// The token has a valid structure but no signature (alg: none).
// A negative tenantID omits the tid claim.
func GenerateTestJWT(sub string, tenantID int64) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s","aud":"tenantsql"`, sub)
	if tenantID >= 0 {
		payload += fmt.Sprintf(`,"tid":%d`, tenantID)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub string, tenantID int64) string {
	return "Bearer " + GenerateTestJWT(sub, tenantID)
}
