package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// signParams computes the HMAC-SHA256 hex digest of the given params
// serialized as key=value pairs joined by '&' in ascending key order.
// Both webhook verification and outbound gateway requests use this
// scheme.
func signParams(checksumKey string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	payload := strings.Join(pairs, "&")

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// webhookSignatureParams extracts the signed fields of a webhook payload
func webhookSignatureParams(data WebhookData) map[string]string {
	return map[string]string{
		"orderCode":   strconv.FormatInt(data.OrderCode, 10),
		"amount":      formatAmount(data.Amount),
		"description": data.Description,
		"code":        data.Code,
		"desc":        data.Desc,
	}
}

// VerifyWebhookSignature checks the payload signature against the
// configured checksum key using a constant-time comparison.
func VerifyWebhookSignature(checksumKey string, payload WebhookPayload) bool {
	expected := signParams(checksumKey, webhookSignatureParams(payload.Data))
	return hmac.Equal([]byte(expected), []byte(payload.Signature))
}

// SignWebhookPayload computes the signature for a payload. Exposed for
// tests and for the sandbox gateway.
func SignWebhookPayload(checksumKey string, data WebhookData) string {
	return signParams(checksumKey, webhookSignatureParams(data))
}

// formatAmount renders an amount the way the gateway serializes it:
// no trailing zeros, no scientific notation.
func formatAmount(amount float64) string {
	if amount == float64(int64(amount)) {
		return strconv.FormatInt(int64(amount), 10)
	}
	return fmt.Sprintf("%g", amount)
}
