package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the HTTP header name carrying the HMAC signature.
const SignatureHeader = "X-Orderdesk-Signature-256"

// sigPrefix names the algorithm in the transmitted signature, following
// the "sha256=<hex>" convention receivers already know from GitHub-style
// webhooks.
const sigPrefix = "sha256="

// secretLen is the number of random bytes in a webhook secret.
const secretLen = 32

// Sign produces the signature for a payload: "sha256=" followed by the
// hex HMAC-SHA256 of the body under the endpoint's secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return sigPrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the payload in constant
// time. Signatures without the algorithm prefix never match.
func Verify(secret string, payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, sigPrefix) {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

// GenerateSecret returns a new random endpoint secret, hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, secretLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
