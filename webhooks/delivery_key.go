package webhooks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

const deliveryKeyPrefix = "onetouch:callback:"

// DeliveryKey returns onetouch:callback:<payment id>:<sha256 of the canonical
// JSON form of params>. Parameter names are upper-cased and values trimmed, so
// deliveries that differ only in encoding share a key.
func DeliveryKey(params map[string]string) (string, error) {
	normalized := make(map[string]string, len(params))
	for key, value := range params {
		name := strings.ToUpper(strings.TrimSpace(key))
		if name == "" {
			continue
		}
		normalized[name] = strings.TrimSpace(value)
	}
	paymentID := normalized["ID"]
	if paymentID == "" {
		return "", fmt.Errorf("webhooks: callback payment id is required")
	}
	encoded, err := canonicaljson.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("webhooks: encode callback params: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return deliveryKeyPrefix + paymentID + ":" + hex.EncodeToString(sum[:]), nil
}
