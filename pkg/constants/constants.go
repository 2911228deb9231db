package constants

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusValidated = "validated"
	StatusCompleted = "completed"
	StatusDisputed  = "disputed"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Dispute statuses.
const (
	DisputeOpen            = "open"
	DisputeNegotiating     = "negotiating"
	DisputeEscalated       = "escalated"
	DisputeResolvedRefund  = "resolved_refund"
	DisputeResolvedRelease = "resolved_release"
)

// Proposal statuses.
const (
	ProposalPending    = "pending"
	ProposalAccepted   = "accepted"
	ProposalRejected   = "rejected"
	ProposalSuperseded = "superseded"
)

// Proposal types.
const (
	ProposalFullRefund    = "full_refund"
	ProposalPartialRefund = "partial_refund"
	ProposalNoRefund      = "no_refund"
)

// Refund bookkeeping.
const (
	RefundNone    = "none"
	RefundPartial = "partial"
	RefundFull    = "full"
)

// Payment methods.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
)
