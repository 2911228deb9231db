package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"payment_succeeded"}`)
	secret := "whsec_test"

	assert.True(t, VerifySignature(payload, sign(payload, secret), secret))
	assert.False(t, VerifySignature(payload, sign(payload, "other"), secret))
	assert.False(t, VerifySignature([]byte(`tampered`), sign(payload, secret), secret))
	assert.False(t, VerifySignature(payload, "", secret))
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		event   string
	}{
		{
			name:    "payment succeeded",
			payload: `{"event_id":"evt_1","event":"payment_succeeded","data":{"reference":"ch_1","metadata":{"transaction_id":"6f1c6f74-23a1-4a8e-9a93-0a4dd94a8a11"}}}`,
			event:   types.EventPaymentSucceeded,
		},
		{
			name:    "account updated",
			payload: `{"event_id":"evt_2","event":"account_updated","data":{"account":{"account_ref":"acct_1","payouts_enabled":true}}}`,
			event:   types.EventAccountUpdated,
		},
		{
			name:    "missing event id",
			payload: `{"event":"payment_succeeded","data":{"metadata":{"transaction_id":"x"}}}`,
			wantErr: true,
		},
		{
			name:    "missing transaction metadata",
			payload: `{"event_id":"evt_3","event":"payment_succeeded","data":{}}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			payload: `{"event_id":"evt_4","event":"subscription_renewed","data":{}}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			payload: `{notjson`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, got.Event)
		})
	}
}

func TestGatewayErrorRetryable(t *testing.T) {
	assert.True(t, (&GatewayError{StatusCode: 500}).Retryable())
	assert.True(t, (&GatewayError{StatusCode: 429}).Retryable())
	assert.True(t, (&GatewayError{Code: "transport_error"}).Retryable())
	assert.False(t, (&GatewayError{StatusCode: 402, Code: "card_declined"}).Retryable())
}

func TestGatewayErrorUserMessageHidesCodes(t *testing.T) {
	err := &GatewayError{StatusCode: 402, Code: "card_declined", Message: "do not honor (code 05)"}
	assert.NotContains(t, err.UserMessage(), "05")
	assert.NotContains(t, err.UserMessage(), "card_declined")

	unknown := &GatewayError{StatusCode: 400, Code: "weird_internal_thing"}
	assert.NotContains(t, unknown.UserMessage(), "weird_internal_thing")
}
