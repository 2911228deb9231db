package types

import "time"

// Processor webhook event names.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventChargeRefunded   = "charge_refunded"
	EventAccountUpdated   = "account_updated"
)

type GatewayWebhookEvent struct {
	EventID string             `json:"event_id"`
	Event   string             `json:"event"`
	Data    GatewayWebhookData `json:"data"`
}

type GatewayWebhookData struct {
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	GatewayResponse string     `json:"gateway_response"`
	FailureCode     string     `json:"failure_code,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Metadata        struct {
		TransactionID string `json:"transaction_id" validate:"required,uuid4"`
		SellerID      string `json:"seller_id,omitempty"`
	} `json:"metadata"`
	Account GatewayAccount `json:"account,omitempty"`
}

type GatewayAccount struct {
	AccountRef     string `json:"account_ref"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type AuthorizeRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	CaptureMode string            `json:"capture_mode"`
	Method      string            `json:"method,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type AuthorizeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		HoldRef   string `json:"hold_ref"`
		Reference string `json:"reference"`
	} `json:"data"`
}

type CaptureResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ChargeRef       string `json:"charge_ref"`
		AlreadyCaptured bool   `json:"already_captured"`
	} `json:"data"`
}

type TransferRequest struct {
	ChargeRef   string `json:"charge_ref"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type TransferResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransferRef string `json:"transfer_ref"`
	} `json:"data"`
}

type RefundRequest struct {
	ChargeRef string `json:"charge_ref"`
	Amount    int64  `json:"amount"`
}

type RecordResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transaction_id"`
		Amount        int64  `json:"amount"`
	} `json:"data"`
}

type RefundResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		RefundRef string `json:"refund_ref"`
	} `json:"data"`
}
