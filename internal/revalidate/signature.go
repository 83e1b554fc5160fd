package revalidate

import (
	"github.com/ligadeals/ligadeals-web/internal/cryptoutil"
)

// SignaturePrefix precedes the hex digest in the signature header.
const SignaturePrefix = "sha256="

// Sign returns the header value the CMS sends for body.
func Sign(body []byte, secret string) string {
	return SignaturePrefix + cryptoutil.HMACSHA256Hex([]byte(secret), body)
}

// Verify reports whether header is "sha256=" followed by the hex
// HMAC-SHA256 of the exact body bytes under secret. A missing header never
// verifies. The comparison is constant time.
func Verify(body []byte, header, secret string) bool {
	if header == "" {
		return false
	}
	return cryptoutil.HashEqual(Sign(body, secret), header)
}
