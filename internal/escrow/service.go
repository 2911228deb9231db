package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/internal/settlement"
	"github.com/custodia-pay/custodia/pkg/constants"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
)

// Gateway is the slice of the payment processor the state machine needs.
type Gateway interface {
	Authorize(ctx context.Context, transactionID string, amount int64, currency, method string) (string, error)
	Capture(ctx context.Context, transactionID, holdRef string) (string, error)
	Transfer(ctx context.Context, transactionID, chargeRef, destination string, amount int64) (string, error)
	Refund(ctx context.Context, transactionID, chargeRef string, amount int64) (string, error)
}

// Notifier delivers fire-and-forget notifications. Implementations must
// never return delivery failures into fund-moving paths.
type Notifier interface {
	Notify(ctx context.Context, event types.NotificationEvent)
}

// Accounts resolves the seller's payout destination.
type Accounts interface {
	GetBySeller(ctx context.Context, sellerID uuid.UUID) (*model.PayoutAccount, error)
}

// ReleaseLock is a held lock on one transaction's fund movement.
type ReleaseLock interface {
	Release(ctx context.Context) error
}

// Locker serializes concurrent release attempts (manual validate vs.
// scheduler sweep) on the same transaction.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (ReleaseLock, error)
}

// SettlementResult reports what a release actually did, so repeated calls
// can return the prior outcome instead of re-executing.
type SettlementResult struct {
	ChargeRef       string
	TransferRef     string
	RefundRef       string
	Breakdown       settlement.Breakdown
	AlreadyReleased bool
}

type Service struct {
	repo     Repository
	gateway  Gateway
	locker   Locker
	accounts Accounts
	notifier Notifier
	cfg      config.EscrowConfig
	lockTTL  time.Duration
	now      func() time.Time
}

func NewService(repo Repository, gw Gateway, locker Locker, accounts Accounts, notifier Notifier, cfg config.EscrowConfig, lockTTL time.Duration) *Service {
	if lockTTL == 0 {
		lockTTL = 30 * time.Second
	}
	return &Service{
		repo:     repo,
		gateway:  gw,
		locker:   locker,
		accounts: accounts,
		notifier: notifier,
		cfg:      cfg,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// Create opens a new escrow transaction in pending status. The buyer joins
// later via the invitation token.
func (s *Service) Create(ctx context.Context, req *types.CreateTransactionRequest) (*model.Transaction, error) {
	logger := middleware.GetLogger(ctx)

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return nil, &ValidationError{Field: "seller_id", Message: "must be a valid uuid"}
	}
	if _, err := settlement.MinorUnits(req.Price); err != nil {
		return nil, &ValidationError{Field: "price", Message: "must be a positive decimal amount"}
	}

	deadline := s.now().Add(s.cfg.PaymentDeadline)
	t := &model.Transaction{
		ID:              uuid.New(),
		SellerID:        sellerID,
		InvitationToken: uuid.NewString(),
		Title:           req.Title,
		Price:           req.Price,
		Currency:        req.Currency,
		ServiceDate:     req.ServiceDate,
		Status:          constants.StatusPending,
		PaymentDeadline: &deadline,
		RefundStatus:    constants.RefundNone,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		logger.Error().Err(err).Msg("Failed to create transaction")
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	logger.Info().Str("transaction_id", t.ID.String()).Msg("Transaction created")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return s.repo.Get(ctx, id)
}

// Join attaches the buyer via the invitation token.
func (s *Service) Join(ctx context.Context, id uuid.UUID, req *types.JoinTransactionRequest) error {
	buyerID, err := uuid.Parse(req.BuyerID)
	if err != nil {
		return &ValidationError{Field: "buyer_id", Message: "must be a valid uuid"}
	}
	return s.repo.JoinBuyer(ctx, id, buyerID, req.InvitationToken)
}

// PaymentMethods lists the methods available for checkout. Bank transfer
// settles slowly, so it is only offered while at least the configured window
// (72h by default) remains before the payment deadline.
func (s *Service) PaymentMethods(ctx context.Context, id uuid.UUID) (*types.PaymentMethodsResponse, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &types.PaymentMethodsResponse{Methods: []string{constants.MethodCard}}
	if t.PaymentDeadline != nil && t.PaymentDeadline.Sub(s.now()) >= s.cfg.BankTransferMinWindow {
		resp.Methods = append(resp.Methods, constants.MethodBankTransfer)
	} else {
		resp.Excluded = append(resp.Excluded, types.ExcludedMethod{
			Method: constants.MethodBankTransfer,
			Reason: fmt.Sprintf("bank transfer unavailable with less than %dh remaining", int(s.cfg.BankTransferMinWindow.Hours())),
		})
	}
	return resp, nil
}

// Checkout authorizes a manual-capture hold for the full price. A processor
// rejection propagates as a GatewayError and leaves the transaction pending.
func (s *Service) Checkout(ctx context.Context, id uuid.UUID, req *types.CheckoutRequest) (*types.CheckoutResponse, error) {
	logger := middleware.GetLogger(ctx)

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	buyerID, err := uuid.Parse(req.BuyerID)
	if err != nil {
		return nil, &ValidationError{Field: "buyer_id", Message: "must be a valid uuid"}
	}
	if t.Status != constants.StatusPending {
		return nil, ErrInvalidTransition
	}
	if t.BuyerID == nil || *t.BuyerID != buyerID {
		return nil, &ValidationError{Field: "buyer_id", Message: "buyer has not joined this transaction"}
	}
	if req.PaymentMethod == constants.MethodBankTransfer {
		if t.PaymentDeadline == nil || t.PaymentDeadline.Sub(s.now()) < s.cfg.BankTransferMinWindow {
			return nil, &ValidationError{
				Field:   "payment_method",
				Message: fmt.Sprintf("bank transfer unavailable with less than %dh remaining", int(s.cfg.BankTransferMinWindow.Hours())),
			}
		}
	}

	amount, err := settlement.MinorUnits(t.Price)
	if err != nil {
		return nil, err
	}

	holdRef, err := s.gateway.Authorize(ctx, t.ID.String(), amount, t.Currency, req.PaymentMethod)
	if err != nil {
		logger.Error().Err(err).Str("transaction_id", t.ID.String()).Msg("Authorization failed")
		return nil, err
	}

	if err := s.repo.MarkPaid(ctx, t.ID, holdRef, &buyerID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Webhook confirmed the payment first; the hold is the same one.
			logger.Warn().Str("transaction_id", t.ID.String()).Msg("Transaction already paid, skipping")
		} else {
			return nil, err
		}
	}

	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "payment_authorized",
		TransactionID: t.ID.String(),
		Message:       "Payment received and held in escrow.",
		Recipients:    []uuid.UUID{t.SellerID, buyerID},
	})
	return &types.CheckoutResponse{TransactionID: t.ID.String(), HoldRef: holdRef, Status: constants.StatusPaid}, nil
}

// ConfirmPayment applies a payment_succeeded webhook. It funnels into the
// same pending→paid transition as Checkout; duplicates and reordered
// deliveries fall out as no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, reference string) error {
	logger := middleware.GetLogger(ctx)
	err := s.repo.MarkPaid(ctx, id, reference, nil)
	if errors.Is(err, ErrInvalidTransition) {
		logger.Info().Str("transaction_id", id.String()).Msg("Payment already confirmed, skipping")
		return nil
	}
	return err
}

// PaymentFailed records a payment_failed webhook. The transaction stays
// pending until its deadline; the buyer can retry with another method.
func (s *Service) PaymentFailed(ctx context.Context, id uuid.UUID, reason string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != constants.StatusPending {
		return nil
	}
	if err := s.repo.AppendActivity(ctx, id, nil, "payment_failed", 0, reason); err != nil {
		return err
	}
	if t.BuyerID != nil {
		s.notifier.Notify(ctx, types.NotificationEvent{
			Type:          "payment_failed",
			TransactionID: id.String(),
			Message:       "Your payment could not be completed. Please try again.",
			Recipients:    []uuid.UUID{*t.BuyerID},
		})
	}
	return nil
}

// RecordRefundConfirmation applies a charge_refunded webhook: audit only,
// the refund itself was initiated by the engine.
func (s *Service) RecordRefundConfirmation(ctx context.Context, id uuid.UUID, reference string, amount int64) error {
	return s.repo.AppendActivity(ctx, id, nil, "refund_confirmed", amount, reference)
}

// MarkDelivered is the seller declaring the service delivered. It starts the
// validation countdown; the status stays paid.
func (s *Service) MarkDelivered(ctx context.Context, id, sellerID uuid.UUID) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.SellerID != sellerID {
		return &ValidationError{Field: "actor_id", Message: "only the seller can mark delivery"}
	}
	deadline := s.now().Add(s.cfg.ValidationDeadline)
	if err := s.repo.MarkDelivered(ctx, id, deadline, sellerID); err != nil {
		return err
	}
	if t.BuyerID != nil {
		s.notifier.Notify(ctx, types.NotificationEvent{
			Type:          "delivery_marked",
			TransactionID: id.String(),
			Message:       "The seller marked the service as delivered. Please validate or contest it.",
			Recipients:    []uuid.UUID{*t.BuyerID},
		})
	}
	return nil
}

// Validate is the buyer confirming delivery; it releases the funds. The
// transition and the release are separate steps, so a retry after a failed
// release finds the row already validated: funds_released, not the status
// transition, decides whether the release still has to run.
func (s *Service) Validate(ctx context.Context, id, buyerID uuid.UUID) error {
	if err := s.repo.MarkValidated(ctx, id, buyerID); err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			return err
		}
		t, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if t.Status != constants.StatusValidated || t.FundsReleased {
			middleware.GetLogger(ctx).Warn().Str("transaction_id", id.String()).Msg("Buyer validation not applicable, skipping")
			return nil
		}
	}
	_, err := s.release(ctx, id, releaseRequest{trigger: "buyer_validation", actor: &buyerID, refundPercentage: 0})
	return err
}

// AutoRelease is the scheduler's release path: the validation deadline
// passed without buyer action, or a buyer-validated release stalled before
// committing. Every guard is re-checked here because the scan data may be
// stale.
func (s *Service) AutoRelease(ctx context.Context, id uuid.UUID) error {
	_, err := s.release(ctx, id, releaseRequest{trigger: "validation_deadline", requireOverdue: true, refundPercentage: 0})
	return err
}

// SettleDispute executes a dispute resolution: capture, refund (if any) and
// transfer as one logical settlement. Idempotent: if the funds were already
// released it returns the recorded refs without touching the gateway.
func (s *Service) SettleDispute(ctx context.Context, id uuid.UUID, refundPercentage int, actor *uuid.UUID) (*SettlementResult, error) {
	return s.release(ctx, id, releaseRequest{
		trigger:          "dispute_resolution",
		actor:            actor,
		refundPercentage: refundPercentage,
		fromDispute:      true,
	})
}

// AttachDispute moves a paid transaction into disputed.
func (s *Service) AttachDispute(ctx context.Context, id, disputeID, actor uuid.UUID) error {
	return s.repo.MarkDisputed(ctx, id, disputeID, actor)
}

// Expire moves an unpaid transaction past its deadline to expired.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	err := s.repo.MarkExpired(ctx, id)
	if errors.Is(err, ErrInvalidTransition) {
		// Paid or already expired meanwhile; nothing to do.
		middleware.GetLogger(ctx).Info().Str("transaction_id", id.String()).Msg("Expiry no longer applicable, skipping")
		return nil
	}
	return err
}

func (s *Service) Cancel(ctx context.Context, id, actor uuid.UUID) error {
	return s.repo.Cancel(ctx, id, actor)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

type releaseRequest struct {
	trigger          string
	actor            *uuid.UUID
	refundPercentage int
	requireOverdue   bool
	fromDispute      bool
}

// release is the single fund-moving path. All triggers (buyer validation,
// deadline sweep, dispute resolution) converge here, serialized per
// transaction by the lock and finally by the repository's conditional
// update on funds_released.
func (s *Service) release(ctx context.Context, id uuid.UUID, req releaseRequest) (*SettlementResult, error) {
	logger := middleware.GetLogger(ctx)

	lock, err := s.locker.AcquireLock(ctx, "transaction:"+id.String(), s.lockTTL)
	if err != nil {
		logger.Warn().Err(err).Str("transaction_id", id.String()).Msg("Release lock busy")
		return nil, ErrReleaseInProgress
	}
	defer lock.Release(ctx)

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.FundsReleased {
		logger.Info().Str("transaction_id", id.String()).Str("trigger", req.trigger).Msg("Funds already released, skipping")
		return &SettlementResult{
			ChargeRef:       t.ChargeRef,
			TransferRef:     t.TransferRef,
			AlreadyReleased: true,
		}, nil
	}
	if !releasable(t.Status) {
		logger.Warn().Str("transaction_id", id.String()).Str("status", t.Status).Msg("Transaction not releasable, skipping")
		return nil, ErrInvalidTransition
	}
	if req.fromDispute && t.Status != constants.StatusDisputed {
		return nil, ErrInvalidTransition
	}
	// The deadline gate only applies while the buyer has not validated. A
	// validated row with funds unreleased is a stalled release the sweep
	// must finish regardless of the deadline.
	if req.requireOverdue && t.Status != constants.StatusValidated {
		if t.SellerValidatedAt == nil || t.BuyerValidatedAt != nil ||
			t.ValidationDeadline == nil || !t.ValidationDeadline.Before(s.now()) {
			return nil, ErrInvalidTransition
		}
	}

	total, err := settlement.MinorUnits(t.Price)
	if err != nil {
		return nil, err
	}
	breakdown := settlement.Compute(total, req.refundPercentage)
	// A conservation failure here is fatal and must never reach the gateway.
	if err := breakdown.Verify(); err != nil {
		logger.Error().Err(err).Str("transaction_id", id.String()).Msg("Settlement reconciliation mismatch")
		return nil, err
	}

	acct, err := s.accounts.GetBySeller(ctx, t.SellerID)
	if err != nil {
		return nil, fmt.Errorf("no payout account for seller %s: %w", t.SellerID, err)
	}
	if !acct.PayoutsEnabled && breakdown.SellerAmount > 0 {
		return nil, fmt.Errorf("payouts disabled for seller %s", t.SellerID)
	}

	// External calls: no DB row is locked while these run. State is
	// re-validated by the conditional update afterwards.
	chargeRef, err := s.gateway.Capture(ctx, t.ID.String(), t.PaymentIntentRef)
	if err != nil {
		return nil, err
	}

	var refundRef string
	if breakdown.RefundAmount > 0 {
		refundRef, err = s.gateway.Refund(ctx, t.ID.String(), chargeRef, breakdown.RefundAmount)
		if err != nil {
			return nil, err
		}
	}

	var transferRef string
	if breakdown.SellerAmount > 0 {
		transferRef, err = s.gateway.Transfer(ctx, t.ID.String(), chargeRef, acct.AccountRef, breakdown.SellerAmount)
		if err != nil {
			return nil, err
		}
	}

	rel := Release{
		TransactionID:    t.ID,
		ChargeRef:        chargeRef,
		TransferRef:      transferRef,
		RefundRef:        refundRef,
		RefundStatus:     refundStatusFor(req.refundPercentage),
		RefundPercentage: req.refundPercentage,
		BuyerValidated:   true,
		Actor:            req.actor,
		AmountMinor:      breakdown.TotalAmount,
	}
	if err := s.repo.MarkReleased(ctx, rel); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Another trigger committed first; the gateway calls were
			// idempotent so nothing moved twice.
			logger.Warn().Str("transaction_id", id.String()).Msg("Release already committed elsewhere")
			return &SettlementResult{ChargeRef: chargeRef, TransferRef: transferRef, RefundRef: refundRef, Breakdown: breakdown, AlreadyReleased: true}, nil
		}
		// Capture succeeded but the commit failed: funds_released stays
		// false, so the next scan retries and the idempotent gateway calls
		// converge on the same refs.
		return nil, err
	}

	recipients := []uuid.UUID{t.SellerID}
	if t.BuyerID != nil {
		recipients = append(recipients, *t.BuyerID)
	}
	s.notifier.Notify(ctx, types.NotificationEvent{
		Type:          "funds_released",
		TransactionID: t.ID.String(),
		Message:       "The escrowed funds have been settled.",
		Recipients:    recipients,
	})

	logger.Info().
		Str("transaction_id", t.ID.String()).
		Str("trigger", req.trigger).
		Int64("total", breakdown.TotalAmount).
		Int64("refund", breakdown.RefundAmount).
		Int64("seller", breakdown.SellerAmount).
		Int64("fee", breakdown.PlatformFee).
		Msg("Funds released")

	return &SettlementResult{ChargeRef: chargeRef, TransferRef: transferRef, RefundRef: refundRef, Breakdown: breakdown}, nil
}

func refundStatusFor(pct int) string {
	switch {
	case pct >= 100:
		return constants.RefundFull
	case pct > 0:
		return constants.RefundPartial
	default:
		return constants.RefundNone
	}
}
