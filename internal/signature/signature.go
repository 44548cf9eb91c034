// Package signature implements HMAC-SHA256 signing for outbound webhook
// deliveries. The signed content is {deliveryID}.{unix timestamp}.{payload}
// and the signature header value is "v1,<base64 digest>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Version is the signature scheme version identifier.
	Version = "v1"

	// HeaderSignature carries the signature on outbound requests.
	HeaderSignature = "X-Webhook-Signature"
	// HeaderTimestamp carries the signing timestamp on outbound requests.
	HeaderTimestamp = "X-Webhook-Timestamp"
	// HeaderDeliveryID carries the delivery identifier on outbound requests.
	HeaderDeliveryID = "X-Webhook-Delivery"
)

// Sign computes the v1 signature for a delivery payload.
func Sign(secret string, deliveryID string, timestamp time.Time, payload []byte) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("signing secret is required")
	}
	if strings.Contains(deliveryID, ".") {
		return "", fmt.Errorf("delivery id must not contain '.'")
	}

	signedContent := fmt.Sprintf("%s.%s.%s", deliveryID, strconv.FormatInt(timestamp.Unix(), 10), payload)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedContent))

	return fmt.Sprintf("%s,%s", Version, base64.StdEncoding.EncodeToString(mac.Sum(nil))), nil
}

// Verify checks a received signature value using constant-time comparison.
func Verify(secret string, deliveryID string, timestamp time.Time, payload []byte, received string) (bool, error) {
	version, digest, ok := strings.Cut(received, ",")
	if !ok {
		return false, fmt.Errorf("invalid signature format, expected 'version,signature'")
	}
	if version != Version {
		return false, fmt.Errorf("unsupported signature version: %s", version)
	}

	calculated, err := Sign(secret, deliveryID, timestamp, payload)
	if err != nil {
		return false, err
	}
	_, calculatedDigest, _ := strings.Cut(calculated, ",")

	expected, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false, fmt.Errorf("decoding received signature: %w", err)
	}
	got, err := base64.StdEncoding.DecodeString(calculatedDigest)
	if err != nil {
		return false, fmt.Errorf("decoding calculated signature: %w", err)
	}

	return subtle.ConstantTimeCompare(expected, got) == 1, nil
}
