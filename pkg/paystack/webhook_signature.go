package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the X-Paystack-Signature header: an
// HMAC-SHA-512 of the raw body, lowercase hex, compared in constant time.
func (c *Client) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
