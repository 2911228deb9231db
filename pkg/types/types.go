package types

import (
	"time"

	"github.com/google/uuid"
)

type CreateTransactionRequest struct {
	SellerID    string     `json:"seller_id" validate:"required,uuid4"`
	Title       string     `json:"title" validate:"required,min=2,max=200"`
	Price       string     `json:"price" validate:"required"`
	Currency    string     `json:"currency" validate:"required,len=3"`
	ServiceDate *time.Time `json:"service_date,omitempty"`
}

type JoinTransactionRequest struct {
	BuyerID         string `json:"buyer_id" validate:"required,uuid4"`
	InvitationToken string `json:"invitation_token" validate:"required"`
}

type CheckoutRequest struct {
	BuyerID       string `json:"buyer_id" validate:"required,uuid4"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card bank_transfer"`
}

type CheckoutResponse struct {
	TransactionID string `json:"transaction_id"`
	HoldRef       string `json:"hold_ref"`
	Status        string `json:"status"`
}

type PaymentMethodsResponse struct {
	Methods  []string `json:"methods"`
	Excluded []ExcludedMethod `json:"excluded,omitempty"`
}

type ExcludedMethod struct {
	Method string `json:"method"`
	Reason string `json:"reason"`
}

type ActorRequest struct {
	ActorID string `json:"actor_id" validate:"required,uuid4"`
}

type OpenDisputeRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid4"`
	ReporterID    string `json:"reporter_id" validate:"required,uuid4"`
	DisputeType   string `json:"dispute_type" validate:"required,oneof=not_delivered not_as_described damaged other"`
	Reason        string `json:"reason" validate:"required,min=5"`
	Description   string `json:"description,omitempty"`
}

type CreateProposalRequest struct {
	ProposedBy       string `json:"proposed_by" validate:"required,uuid4"`
	ProposalType     string `json:"proposal_type" validate:"required,oneof=full_refund partial_refund no_refund"`
	RefundPercentage *int   `json:"refund_percentage,omitempty"`
	IsAdminCreated   bool   `json:"is_admin_created"`
}

type ResolveDisputeRequest struct {
	AdminID          string `json:"admin_id" validate:"required,uuid4"`
	Action           string `json:"action" validate:"required,oneof=release refund"`
	RefundPercentage int    `json:"refund_percentage" validate:"gte=0,lte=100"`
	Resolution       string `json:"resolution" validate:"required,min=5"`
}

type RegisterAccountRequest struct {
	SellerID   string `json:"seller_id" validate:"required,uuid4"`
	AccountRef string `json:"account_ref" validate:"required"`
}

// NotificationEvent is the fire-and-forget payload published to the
// notification topic. Delivery is best-effort and never blocks a fund move.
type NotificationEvent struct {
	Type          string      `json:"type"`
	TransactionID string      `json:"transaction_id"`
	Message       string      `json:"message"`
	Recipients    []uuid.UUID `json:"recipients"`
}
