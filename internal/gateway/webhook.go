package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/custodia-pay/custodia/pkg/types"
)

// VerifySignature validates that a webhook payload came from the processor.
// signature is the value of the "x-gateway-signature" header; secret is the
// webhook secret from config.
func VerifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return false
	}
	expectedSig := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ParseEvent decodes a verified webhook payload and rejects events the
// engine does not understand or that lack the correlation metadata needed
// to apply them.
func ParseEvent(payload []byte) (*types.GatewayWebhookEvent, error) {
	var event types.GatewayWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if event.EventID == "" {
		return nil, fmt.Errorf("webhook event missing event_id")
	}
	switch event.Event {
	case types.EventPaymentSucceeded, types.EventPaymentFailed, types.EventChargeRefunded:
		if event.Data.Metadata.TransactionID == "" {
			return nil, fmt.Errorf("webhook event %s missing transaction_id metadata", event.Event)
		}
	case types.EventAccountUpdated:
		if event.Data.Account.AccountRef == "" {
			return nil, fmt.Errorf("webhook event %s missing account_ref", event.Event)
		}
	default:
		return nil, fmt.Errorf("unsupported webhook event type %q", event.Event)
	}
	return &event, nil
}
