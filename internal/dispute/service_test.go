package dispute

import (
	"context"
	"sync"
	"testing"

	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/internal/settlement"
	"github.com/custodia-pay/custodia/pkg/constants"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu        sync.Mutex
	disputes  map[uuid.UUID]*model.Dispute
	proposals map[uuid.UUID]*model.DisputeProposal
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		disputes:  make(map[uuid.UUID]*model.Dispute),
		proposals: make(map[uuid.UUID]*model.DisputeProposal),
	}
}

func (r *fakeRepo) CreateDispute(_ context.Context, d *model.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.disputes {
		if existing.TransactionID == d.TransactionID &&
			existing.Status != constants.DisputeResolvedRefund &&
			existing.Status != constants.DisputeResolvedRelease {
			return ErrActiveDispute
		}
	}
	cp := *d
	r.disputes[d.ID] = &cp
	return nil
}

func (r *fakeRepo) GetDispute(_ context.Context, id uuid.UUID) (*model.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeRepo) DeleteDispute(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disputes, id)
	return nil
}

func (r *fakeRepo) CreateProposal(_ context.Context, p *model.DisputeProposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[p.DisputeID]
	if !ok || d.Status == constants.DisputeResolvedRefund || d.Status == constants.DisputeResolvedRelease {
		return ErrInvalidState
	}
	d.Status = constants.DisputeNegotiating
	for _, existing := range r.proposals {
		if existing.DisputeID == p.DisputeID && existing.Status == constants.ProposalPending {
			existing.Status = constants.ProposalSuperseded
		}
	}
	cp := *p
	r.proposals[p.ID] = &cp
	return nil
}

func (r *fakeRepo) GetProposal(_ context.Context, id uuid.UUID) (*model.DisputeProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) ListProposals(_ context.Context, disputeID uuid.UUID) ([]*model.DisputeProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DisputeProposal
	for _, p := range r.proposals {
		if p.DisputeID == disputeID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) RejectProposal(_ context.Context, proposalID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[proposalID]
	if !ok || p.Status != constants.ProposalPending {
		return ErrInvalidState
	}
	p.Status = constants.ProposalRejected
	return nil
}

func (r *fakeRepo) Escalate(_ context.Context, disputeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[disputeID]
	if !ok || (d.Status != constants.DisputeOpen && d.Status != constants.DisputeNegotiating) {
		return ErrInvalidState
	}
	d.Status = constants.DisputeEscalated
	return nil
}

func (r *fakeRepo) Finalize(_ context.Context, fin Finalization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[fin.DisputeID]
	if !ok {
		return ErrNotFound
	}
	if d.Status == constants.DisputeResolvedRefund || d.Status == constants.DisputeResolvedRelease {
		return ErrInvalidState
	}
	d.Status = fin.Status
	d.Resolution = fin.Resolution
	if fin.ProposalID != uuid.Nil {
		if p, ok := r.proposals[fin.ProposalID]; ok && p.Status == constants.ProposalPending {
			p.Status = constants.ProposalAccepted
		}
	}
	return nil
}

// fakeEscrow mimics the transaction state machine: SettleDispute moves funds
// exactly once and reports AlreadyReleased afterwards.
type fakeEscrow struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*model.Transaction
	settleCount  int
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{transactions: make(map[uuid.UUID]*model.Transaction)}
}

func (e *fakeEscrow) Get(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transactions[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (e *fakeEscrow) AttachDispute(_ context.Context, id, disputeID, _ uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transactions[id]
	if !ok {
		return escrow.ErrNotFound
	}
	if t.FundsReleased || (t.Status != constants.StatusPaid && t.Status != constants.StatusValidated) {
		return escrow.ErrInvalidTransition
	}
	t.Status = constants.StatusDisputed
	t.DisputeID = &disputeID
	return nil
}

func (e *fakeEscrow) SettleDispute(_ context.Context, id uuid.UUID, refundPercentage int, _ *uuid.UUID) (*escrow.SettlementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transactions[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	if t.FundsReleased {
		return &escrow.SettlementResult{ChargeRef: t.ChargeRef, TransferRef: t.TransferRef, AlreadyReleased: true}, nil
	}
	if t.Status != constants.StatusDisputed {
		return nil, escrow.ErrInvalidTransition
	}
	total, err := settlement.MinorUnits(t.Price)
	if err != nil {
		return nil, err
	}
	e.settleCount++
	t.FundsReleased = true
	t.Status = constants.StatusCompleted
	t.ChargeRef = "ch_" + id.String()
	t.TransferRef = "tr_" + id.String()
	return &escrow.SettlementResult{
		ChargeRef:   t.ChargeRef,
		TransferRef: t.TransferRef,
		Breakdown:   settlement.Compute(total, refundPercentage),
	}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []types.NotificationEvent
}

func (n *fakeNotifier) Notify(_ context.Context, event types.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fixture struct {
	repo     *fakeRepo
	escrow   *fakeEscrow
	notifier *fakeNotifier
	service  *Service
	sellerID uuid.UUID
	buyerID  uuid.UUID
	txID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	esc := newFakeEscrow()
	notifier := &fakeNotifier{}

	sellerID := uuid.New()
	buyerID := uuid.New()
	txID := uuid.New()
	esc.transactions[txID] = &model.Transaction{
		ID:       txID,
		SellerID: sellerID,
		BuyerID:  &buyerID,
		Price:    "100.00",
		Currency: "EUR",
		Status:   constants.StatusPaid,
	}

	return &fixture{
		repo:     repo,
		escrow:   esc,
		notifier: notifier,
		service:  NewService(repo, esc, notifier),
		sellerID: sellerID,
		buyerID:  buyerID,
		txID:     txID,
	}
}

func (f *fixture) openDispute(t *testing.T) *model.Dispute {
	t.Helper()
	d, err := f.service.Open(context.Background(), &types.OpenDisputeRequest{
		TransactionID: f.txID.String(),
		ReporterID:    f.buyerID.String(),
		DisputeType:   "not_as_described",
		Reason:        "service was incomplete",
	})
	require.NoError(t, err)
	return d
}

func intPtr(v int) *int { return &v }

func TestOpenDisputeMarksTransactionDisputed(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	assert.Equal(t, constants.DisputeOpen, d.Status)
	tx, err := f.escrow.Get(context.Background(), f.txID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDisputed, tx.Status)
	require.NotNil(t, tx.DisputeID)
	assert.Equal(t, d.ID, *tx.DisputeID)
}

func TestOpenDisputeRejectsNonParty(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Open(context.Background(), &types.OpenDisputeRequest{
		TransactionID: f.txID.String(),
		ReporterID:    uuid.NewString(),
		DisputeType:   "other",
		Reason:        "I have opinions",
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reporter_id", vErr.Field)
}

func TestOpenSecondDisputeRejected(t *testing.T) {
	f := newFixture(t)
	f.openDispute(t)

	_, err := f.service.Open(context.Background(), &types.OpenDisputeRequest{
		TransactionID: f.txID.String(),
		ReporterID:    f.sellerID.String(),
		DisputeType:   "other",
		Reason:        "counter complaint",
	})
	assert.ErrorIs(t, err, ErrActiveDispute)
}

func TestProposeSupersedesPending(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	first, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:       f.sellerID.String(),
		ProposalType:     constants.ProposalPartialRefund,
		RefundPercentage: intPtr(20),
	})
	require.NoError(t, err)

	second, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:       f.buyerID.String(),
		ProposalType:     constants.ProposalPartialRefund,
		RefundPercentage: intPtr(50),
	})
	require.NoError(t, err)

	got, err := f.repo.GetProposal(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ProposalSuperseded, got.Status)

	got, err = f.repo.GetProposal(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ProposalPending, got.Status)

	updated, err := f.repo.GetDispute(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DisputeNegotiating, updated.Status)
}

func TestProposePartialRequiresPercentage(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	_, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:   f.sellerID.String(),
		ProposalType: constants.ProposalPartialRefund,
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "refund_percentage", vErr.Field)
}

func TestAcceptSettlesAndResolves(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	p, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:       f.sellerID.String(),
		ProposalType:     constants.ProposalPartialRefund,
		RefundPercentage: intPtr(50),
	})
	require.NoError(t, err)

	outcome, err := f.service.Accept(context.Background(), d.ID, p.ID, f.buyerID)
	require.NoError(t, err)

	assert.Equal(t, constants.DisputeResolvedRefund, outcome.Dispute.Status)
	assert.False(t, outcome.Settlement.AlreadyReleased)
	assert.Equal(t, int64(10000), outcome.Settlement.Breakdown.TotalAmount)
	assert.Equal(t, int64(5000), outcome.Settlement.Breakdown.RefundAmount)
	assert.Equal(t, int64(4500), outcome.Settlement.Breakdown.SellerAmount)
	assert.Equal(t, int64(500), outcome.Settlement.Breakdown.PlatformFee)
	assert.Equal(t, 1, f.escrow.settleCount)

	accepted, err := f.repo.GetProposal(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ProposalAccepted, accepted.Status)
}

func TestAcceptTwiceSettlesOnce(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	p, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:   f.sellerID.String(),
		ProposalType: constants.ProposalNoRefund,
	})
	require.NoError(t, err)

	first, err := f.service.Accept(context.Background(), d.ID, p.ID, f.buyerID)
	require.NoError(t, err)
	require.False(t, first.Settlement.AlreadyReleased)

	second, err := f.service.Accept(context.Background(), d.ID, p.ID, f.buyerID)
	require.NoError(t, err)
	assert.True(t, second.Settlement.AlreadyReleased)
	assert.Equal(t, first.Settlement.ChargeRef, second.Settlement.ChargeRef)
	assert.Equal(t, 1, f.escrow.settleCount)
}

func TestAcceptOwnProposalRejected(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	p, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:   f.sellerID.String(),
		ProposalType: constants.ProposalNoRefund,
	})
	require.NoError(t, err)

	_, err = f.service.Accept(context.Background(), d.ID, p.ID, f.sellerID)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "actor_id", vErr.Field)
	assert.Equal(t, 0, f.escrow.settleCount)
}

func TestRejectLeavesDisputeNegotiating(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	p, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:   f.sellerID.String(),
		ProposalType: constants.ProposalNoRefund,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Reject(context.Background(), d.ID, p.ID, f.buyerID))

	got, err := f.repo.GetProposal(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ProposalRejected, got.Status)

	updated, err := f.repo.GetDispute(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DisputeNegotiating, updated.Status)
	assert.Equal(t, 0, f.escrow.settleCount)
}

func TestResolveRequiresEscalation(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	_, err := f.service.Resolve(context.Background(), d.ID, &types.ResolveDisputeRequest{
		AdminID:    uuid.NewString(),
		Action:     "release",
		Resolution: "seller delivered as agreed",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestResolveEscalatedDispute(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)
	require.NoError(t, f.service.Escalate(context.Background(), d.ID, f.buyerID))

	outcome, err := f.service.Resolve(context.Background(), d.ID, &types.ResolveDisputeRequest{
		AdminID:          uuid.NewString(),
		Action:           "refund",
		RefundPercentage: 100,
		Resolution:       "service never delivered",
	})
	require.NoError(t, err)

	assert.Equal(t, constants.DisputeResolvedRefund, outcome.Dispute.Status)
	assert.Equal(t, int64(10000), outcome.Settlement.Breakdown.RefundAmount)
	assert.Equal(t, int64(-500), outcome.Settlement.Breakdown.SellerAmount)
	assert.Equal(t, 1, f.escrow.settleCount)
}

func TestResolveReleaseAction(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)
	require.NoError(t, f.service.Escalate(context.Background(), d.ID, f.sellerID))

	outcome, err := f.service.Resolve(context.Background(), d.ID, &types.ResolveDisputeRequest{
		AdminID:    uuid.NewString(),
		Action:     "release",
		Resolution: "evidence supports delivery",
	})
	require.NoError(t, err)

	assert.Equal(t, constants.DisputeResolvedRelease, outcome.Dispute.Status)
	assert.Equal(t, int64(0), outcome.Settlement.Breakdown.RefundAmount)
	assert.Equal(t, int64(9500), outcome.Settlement.Breakdown.SellerAmount)
}

func TestEscalateFromNegotiating(t *testing.T) {
	f := newFixture(t)
	d := f.openDispute(t)

	_, err := f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:   f.sellerID.String(),
		ProposalType: constants.ProposalNoRefund,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Escalate(context.Background(), d.ID, f.buyerID))
	updated, err := f.repo.GetDispute(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DisputeEscalated, updated.Status)

	// Parties cannot keep proposing once the arbiter owns the dispute.
	_, err = f.service.Propose(context.Background(), d.ID, &types.CreateProposalRequest{
		ProposedBy:   f.sellerID.String(),
		ProposalType: constants.ProposalFullRefund,
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}
