package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/pkg/constants"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
)

// Escrow is the slice of the transaction state machine the arbitration
// workflow needs. Fund movement stays behind SettleDispute; this package
// never talks to the gateway directly.
type Escrow interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	AttachDispute(ctx context.Context, id, disputeID, actor uuid.UUID) error
	SettleDispute(ctx context.Context, id uuid.UUID, refundPercentage int, actor *uuid.UUID) (*escrow.SettlementResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, event types.NotificationEvent)
}

// Outcome is what a terminal dispute operation returns. Repeated accepts of
// the same proposal return the same outcome without touching the processor.
type Outcome struct {
	Dispute    *model.Dispute
	Settlement *escrow.SettlementResult
}

type Service struct {
	repo     Repository
	escrow   Escrow
	notifier Notifier
}

func NewService(repo Repository, esc Escrow, notifier Notifier) *Service {
	return &Service{repo: repo, escrow: esc, notifier: notifier}
}

// Open files a dispute on a paid transaction and moves the transaction into
// disputed. Only the buyer or seller may report, and only while the funds
// are still held.
func (s *Service) Open(ctx context.Context, req *types.OpenDisputeRequest) (*model.Dispute, error) {
	logger := middleware.GetLogger(ctx)

	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		return nil, &ValidationError{Field: "transaction_id", Message: "must be a valid uuid"}
	}
	reporterID, err := uuid.Parse(req.ReporterID)
	if err != nil {
		return nil, &ValidationError{Field: "reporter_id", Message: "must be a valid uuid"}
	}

	t, err := s.escrow.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !isParty(t, reporterID) {
		return nil, &ValidationError{Field: "reporter_id", Message: "reporter is not a party to this transaction"}
	}

	d := &model.Dispute{
		ID:            uuid.New(),
		TransactionID: transactionID,
		ReporterID:    reporterID,
		DisputeType:   req.DisputeType,
		Reason:        req.Reason,
		Description:   req.Description,
		Status:        constants.DisputeOpen,
	}
	if err := s.repo.CreateDispute(ctx, d); err != nil {
		return nil, err
	}

	if err := s.escrow.AttachDispute(ctx, transactionID, d.ID, reporterID); err != nil {
		// The transaction moved out of a disputable state between the read
		// and the attach; drop the orphan dispute row.
		if delErr := s.repo.DeleteDispute(ctx, d.ID); delErr != nil {
			logger.Error().Err(delErr).Str("dispute_id", d.ID.String()).Msg("Failed to remove orphan dispute")
		}
		return nil, err
	}

	recipients := []uuid.UUID{t.SellerID}
	if t.BuyerID != nil {
		recipients = append(recipients, *t.BuyerID)
	}
	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "dispute_opened",
		TransactionID: transactionID.String(),
		Message:       "A dispute was opened on this transaction. Funds stay held until it is resolved.",
		Recipients:    recipients,
	})
	logger.Info().Str("dispute_id", d.ID.String()).Str("transaction_id", transactionID.String()).Msg("Dispute opened")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Dispute, error) {
	return s.repo.GetDispute(ctx, id)
}

func (s *Service) Proposals(ctx context.Context, disputeID uuid.UUID) ([]*model.DisputeProposal, error) {
	if _, err := s.repo.GetDispute(ctx, disputeID); err != nil {
		return nil, err
	}
	return s.repo.ListProposals(ctx, disputeID)
}

// Propose files a resolution proposal. A new proposal supersedes any pending
// one, so there is never more than one open offer on the table.
func (s *Service) Propose(ctx context.Context, disputeID uuid.UUID, req *types.CreateProposalRequest) (*model.DisputeProposal, error) {
	proposedBy, err := uuid.Parse(req.ProposedBy)
	if err != nil {
		return nil, &ValidationError{Field: "proposed_by", Message: "must be a valid uuid"}
	}

	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if isResolved(d.Status) {
		return nil, ErrInvalidState
	}
	// Once escalated, only the arbiter proposes; the parties had their turn.
	if d.Status == constants.DisputeEscalated && !req.IsAdminCreated {
		return nil, ErrInvalidState
	}
	if !req.IsAdminCreated {
		t, err := s.escrow.Get(ctx, d.TransactionID)
		if err != nil {
			return nil, err
		}
		if !isParty(t, proposedBy) {
			return nil, &ValidationError{Field: "proposed_by", Message: "proposer is not a party to this transaction"}
		}
	}

	pct, err := refundPercentageFor(req.ProposalType, req.RefundPercentage)
	if err != nil {
		return nil, err
	}

	p := &model.DisputeProposal{
		ID:               uuid.New(),
		DisputeID:        disputeID,
		ProposedBy:       proposedBy,
		ProposalType:     req.ProposalType,
		RefundPercentage: pct,
		Status:           constants.ProposalPending,
		IsAdminCreated:   req.IsAdminCreated,
	}
	if err := s.repo.CreateProposal(ctx, p); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "proposal_created",
		TransactionID: d.TransactionID.String(),
		Message:       fmt.Sprintf("A %s proposal is awaiting review.", req.ProposalType),
	})
	return p, nil
}

// Accept executes an agreed proposal: funds settle per its refund percentage
// and the dispute closes. Safe to retry: once the proposal is accepted or
// the dispute resolved, the recorded outcome is returned and the processor
// is not called again.
func (s *Service) Accept(ctx context.Context, disputeID, proposalID, actorID uuid.UUID) (*Outcome, error) {
	logger := middleware.GetLogger(ctx)

	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.DisputeID != disputeID {
		return nil, &ValidationError{Field: "proposal_id", Message: "proposal does not belong to this dispute"}
	}

	if p.Status == constants.ProposalAccepted || isResolved(d.Status) {
		logger.Info().Str("dispute_id", disputeID.String()).Msg("Dispute already finalized, returning recorded outcome")
		settlement, err := s.escrow.SettleDispute(ctx, d.TransactionID, p.RefundPercentage, &actorID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Dispute: d, Settlement: settlement}, nil
	}
	if p.Status != constants.ProposalPending {
		return nil, ErrInvalidState
	}

	t, err := s.escrow.Get(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if !isParty(t, actorID) {
		return nil, &ValidationError{Field: "actor_id", Message: "only a party to the transaction can accept"}
	}
	// A party cannot accept its own offer; admin proposals are open to both.
	if !p.IsAdminCreated && p.ProposedBy == actorID {
		return nil, &ValidationError{Field: "actor_id", Message: "proposer cannot accept their own proposal"}
	}

	// Funds move first; the dispute record follows. If the finalize write
	// fails the retry finds funds_released already set and converges.
	settlement, err := s.escrow.SettleDispute(ctx, d.TransactionID, p.RefundPercentage, &actorID)
	if err != nil {
		return nil, err
	}

	fin := Finalization{
		DisputeID:  disputeID,
		ProposalID: proposalID,
		Status:     resolvedStatusFor(p.RefundPercentage),
		Resolution: fmt.Sprintf("proposal %s accepted (%d%% refund)", p.ProposalType, p.RefundPercentage),
	}
	if err := s.repo.Finalize(ctx, fin); err != nil && !errors.Is(err, ErrInvalidState) {
		return nil, err
	}

	d, err = s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	recipients := []uuid.UUID{t.SellerID}
	if t.BuyerID != nil {
		recipients = append(recipients, *t.BuyerID)
	}
	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "dispute_resolved",
		TransactionID: d.TransactionID.String(),
		Message:       "The dispute was resolved by mutual agreement.",
		Recipients:    recipients,
	})
	return &Outcome{Dispute: d, Settlement: settlement}, nil
}

// Reject declines a pending proposal. The dispute stays in negotiating; the
// counterparty can counter-propose or escalate.
func (s *Service) Reject(ctx context.Context, disputeID, proposalID, actorID uuid.UUID) error {
	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if isResolved(d.Status) {
		return ErrInvalidState
	}
	p, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.DisputeID != disputeID {
		return &ValidationError{Field: "proposal_id", Message: "proposal does not belong to this dispute"}
	}
	t, err := s.escrow.Get(ctx, d.TransactionID)
	if err != nil {
		return err
	}
	if !isParty(t, actorID) {
		return &ValidationError{Field: "actor_id", Message: "only a party to the transaction can reject"}
	}
	if !p.IsAdminCreated && p.ProposedBy == actorID {
		return &ValidationError{Field: "actor_id", Message: "proposer cannot reject their own proposal"}
	}
	return s.repo.RejectProposal(ctx, proposalID)
}

// Escalate hands the dispute to admin arbitration.
func (s *Service) Escalate(ctx context.Context, disputeID, actorID uuid.UUID) error {
	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	t, err := s.escrow.Get(ctx, d.TransactionID)
	if err != nil {
		return err
	}
	if !isParty(t, actorID) {
		return &ValidationError{Field: "actor_id", Message: "only a party to the transaction can escalate"}
	}
	if err := s.repo.Escalate(ctx, disputeID); err != nil {
		return err
	}
	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "dispute_escalated",
		TransactionID: d.TransactionID.String(),
		Message:       "The dispute was escalated for arbitration.",
	})
	return nil
}

// Resolve is the admin verdict on an escalated dispute. It settles the funds
// per the ruling and closes the dispute, idempotently.
func (s *Service) Resolve(ctx context.Context, disputeID uuid.UUID, req *types.ResolveDisputeRequest) (*Outcome, error) {
	logger := middleware.GetLogger(ctx)

	adminID, err := uuid.Parse(req.AdminID)
	if err != nil {
		return nil, &ValidationError{Field: "admin_id", Message: "must be a valid uuid"}
	}

	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	pct := 0
	if req.Action == "refund" {
		pct = req.RefundPercentage
		if pct == 0 {
			pct = 100
		}
	}

	if isResolved(d.Status) {
		logger.Info().Str("dispute_id", disputeID.String()).Msg("Dispute already resolved, returning recorded outcome")
		settlement, err := s.escrow.SettleDispute(ctx, d.TransactionID, pct, &adminID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Dispute: d, Settlement: settlement}, nil
	}
	if d.Status != constants.DisputeEscalated {
		return nil, ErrInvalidState
	}

	settlement, err := s.escrow.SettleDispute(ctx, d.TransactionID, pct, &adminID)
	if err != nil {
		return nil, err
	}

	fin := Finalization{
		DisputeID:  disputeID,
		Status:     resolvedStatusFor(pct),
		Resolution: req.Resolution,
	}
	if err := s.repo.Finalize(ctx, fin); err != nil && !errors.Is(err, ErrInvalidState) {
		return nil, err
	}

	d, err = s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "dispute_resolved",
		TransactionID: d.TransactionID.String(),
		Message:       "The dispute was resolved by arbitration.",
	})
	return &Outcome{Dispute: d, Settlement: settlement}, nil
}

func isParty(t *model.Transaction, id uuid.UUID) bool {
	if t.SellerID == id {
		return true
	}
	return t.BuyerID != nil && *t.BuyerID == id
}

func isResolved(status string) bool {
	return status == constants.DisputeResolvedRefund || status == constants.DisputeResolvedRelease
}

func resolvedStatusFor(pct int) string {
	if pct > 0 {
		return constants.DisputeResolvedRefund
	}
	return constants.DisputeResolvedRelease
}

func refundPercentageFor(proposalType string, pct *int) (int, error) {
	switch proposalType {
	case constants.ProposalFullRefund:
		return 100, nil
	case constants.ProposalNoRefund:
		return 0, nil
	case constants.ProposalPartialRefund:
		if pct == nil || *pct <= 0 || *pct >= 100 {
			return 0, &ValidationError{Field: "refund_percentage", Message: "partial refund requires a percentage between 1 and 99"}
		}
		return *pct, nil
	default:
		return 0, &ValidationError{Field: "proposal_type", Message: "unknown proposal type"}
	}
}
