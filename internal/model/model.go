package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Model struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is the central escrow entity. Status only changes through the
// escrow service's guarded transitions; handlers and workers never write it
// directly.
type Transaction struct {
	ID               uuid.UUID  `json:"id" validate:"required"`
	SellerID         uuid.UUID  `json:"seller_id" validate:"required"`
	BuyerID          *uuid.UUID `json:"buyer_id,omitempty"`
	InvitationToken  string     `json:"invitation_token,omitempty"`
	Title            string     `json:"title" validate:"required,min=2,max=200"`
	Price            string     `json:"price" validate:"required"`
	Currency         string     `json:"currency" validate:"required,len=3"`
	ServiceDate      *time.Time `json:"service_date,omitempty"`
	Status           string     `json:"status" validate:"required,oneof=pending paid validated completed disputed expired cancelled"`
	PaymentIntentRef string     `json:"payment_intent_ref,omitempty"`
	ChargeRef        string     `json:"charge_ref,omitempty"`
	TransferRef      string     `json:"transfer_ref,omitempty"`
	PaymentDeadline  *time.Time `json:"payment_deadline,omitempty"`
	ValidationDeadline *time.Time `json:"validation_deadline,omitempty"`
	SellerValidatedAt  *time.Time `json:"seller_validated_at,omitempty"`
	BuyerValidatedAt   *time.Time `json:"buyer_validated_at,omitempty"`
	FundsReleased      bool       `json:"funds_released"`
	FundsReleasedAt    *time.Time `json:"funds_released_at,omitempty"`
	DisputeID          *uuid.UUID `json:"dispute_id,omitempty"`
	RefundStatus       string     `json:"refund_status" validate:"oneof=none partial full"`
	RefundPercentage   int        `json:"refund_percentage" validate:"gte=0,lte=100"`
	ReleaseAttempts    int        `json:"release_attempts" validate:"gte=0"`
	Model
}

// Dispute is a problem report on a paid transaction. At most one
// non-resolved dispute exists per transaction.
type Dispute struct {
	ID            uuid.UUID  `json:"id" validate:"required"`
	TransactionID uuid.UUID  `json:"transaction_id" validate:"required"`
	ReporterID    uuid.UUID  `json:"reporter_id" validate:"required"`
	DisputeType   string     `json:"dispute_type" validate:"required,oneof=not_delivered not_as_described damaged other"`
	Reason        string     `json:"reason" validate:"required,min=5"`
	Description   string     `json:"description,omitempty"`
	Status        string     `json:"status" validate:"required,oneof=open negotiating escalated resolved_refund resolved_release"`
	Resolution    string     `json:"resolution,omitempty"`
	EscalatedAt   *time.Time `json:"escalated_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Model
}

// DisputeProposal is a negotiation entry under a dispute. Accepting one is
// terminal for the dispute and must be idempotent.
type DisputeProposal struct {
	ID               uuid.UUID `json:"id" validate:"required"`
	DisputeID        uuid.UUID `json:"dispute_id" validate:"required"`
	ProposedBy       uuid.UUID `json:"proposed_by" validate:"required"`
	ProposalType     string    `json:"proposal_type" validate:"required,oneof=full_refund partial_refund no_refund"`
	RefundPercentage int       `json:"refund_percentage" validate:"gte=0,lte=100"`
	Status           string    `json:"status" validate:"required,oneof=pending accepted rejected superseded"`
	IsAdminCreated   bool      `json:"is_admin_created"`
	Model
}

// ActivityLog is the append-only audit trail. One row per state-changing
// event, written in the same DB transaction as the change itself.
type ActivityLog struct {
	ID            int64           `json:"id" validate:"required"`
	TransactionID uuid.UUID       `json:"transaction_id" validate:"required"`
	ActorID       *uuid.UUID      `json:"actor_id,omitempty"`
	Event         string          `json:"event" validate:"required"`
	AmountMinor   int64           `json:"amount_minor"`
	Reference     string          `json:"reference,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	Model
}

// ReminderLog guards reminder idempotency: one row per (transaction, offset).
type ReminderLog struct {
	ID            int64     `json:"id" validate:"required"`
	TransactionID uuid.UUID `json:"transaction_id" validate:"required"`
	OffsetHours   int       `json:"offset_hours" validate:"required,gt=0"`
	Model
}

// PayoutAccount is the seller's destination for transfers. payouts_enabled
// is flipped by the processor's account_updated webhook.
type PayoutAccount struct {
	ID             uuid.UUID `json:"id" validate:"required"`
	SellerID       uuid.UUID `json:"seller_id" validate:"required"`
	AccountRef     string    `json:"account_ref" validate:"required"`
	PayoutsEnabled bool      `json:"payouts_enabled"`
	Model
}

type TransactionOutbox struct {
	ID            int64           `json:"id" validate:"required"`
	EventType     string          `json:"event_type" validate:"required"`
	Payload       json.RawMessage `json:"payload" validate:"required"`
	PartitionKey  string          `json:"partition_key" validate:"required"`
	Status        string          `json:"status" validate:"required,oneof=pending processed failed"`
	CorrelationID uuid.UUID       `json:"correlation_id" validate:"required"`
	RetryCount    int             `json:"retry_count" validate:"gte=0"`
	LastError     string          `json:"last_error,omitempty"`
	Model
}

// GatewayWebhook stores every inbound processor event by its external id so
// duplicate deliveries are detected before any transition runs.
type GatewayWebhook struct {
	ID      uuid.UUID       `json:"id" validate:"required"`
	EventID string          `json:"event_id" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
	Status  string          `json:"status" validate:"required,oneof=received error processed"`
	Model
}

type ReconciliationRun struct {
	ID      uuid.UUID `json:"id" validate:"required"`
	RunDate time.Time `json:"run_date" validate:"required"`
	Status  string    `json:"status" validate:"required,oneof=discrepancy matched"`
	Model
}

type Discrepancy struct {
	ID                  uuid.UUID `json:"id" validate:"required"`
	ReconciliationRunID uuid.UUID `json:"reconciliation_run_id" validate:"required"`
	TransactionID       uuid.UUID `json:"transaction_id" validate:"required"`
	ExpectedAmount      int64     `json:"expected_amount" validate:"required"`
	ActualAmount        int64     `json:"actual_amount" validate:"required"`
	Confidence          float64   `json:"confidence" validate:"gte=0,lte=1"`
	Reason              string    `json:"reason" validate:"required"`
	Status              string    `json:"status" validate:"required,oneof=unresolved resolved"`
	Model
}
