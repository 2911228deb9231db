package gateway

import "fmt"

// GatewayError is a rejection from the payment processor. The Code is
// processor-internal and must never be shown to end users; UserMessage
// returns the plain-language translation.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the caller should retry with backoff. Client
// rejections (declines, validation) are permanent; server and transport
// failures are not.
func (e *GatewayError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

var userMessages = map[string]string{
	"card_declined":        "Your card was declined. Please try another payment method.",
	"insufficient_funds":   "The payment could not be completed due to insufficient funds.",
	"hold_expired":         "The payment authorization expired. Please start the checkout again.",
	"transfer_unavailable": "Payouts are temporarily unavailable. Please try again later.",
}

// UserMessage translates the processor code into a user-visible message
// without leaking processor internals.
func (e *GatewayError) UserMessage() string {
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return "The payment could not be processed. Please try again."
}
