package elvis

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook request body.
const SignatureHeader = "X-Hook-Signature"

// maxWebhookBody bounds how much of a webhook request is read.
const maxWebhookBody = 10 << 20

// ValidateWebhook reports whether signature is the hex HMAC-SHA256 of body
// keyed with secret. The comparison runs in constant time.
func ValidateWebhook(signature, secret string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookRequest reads the body of an incoming webhook request and
// validates it against the SignatureHeader. The body is returned so the
// handler can decode the event after verification.
func VerifyWebhookRequest(r *http.Request, secret string) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, false, fmt.Errorf("elvis: reading webhook body: %w", err)
	}

	return body, ValidateWebhook(r.Header.Get(SignatureHeader), secret, body), nil
}
