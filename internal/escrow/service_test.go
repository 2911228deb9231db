package escrow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/pkg/constants"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory Repository with the same CAS semantics as the
// SQL implementation.
type fakeRepo struct {
	mu              sync.Mutex
	txs             map[uuid.UUID]*model.Transaction
	activity        []string
	markReleasedErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{txs: make(map[uuid.UUID]*model.Transaction)}
}

func (r *fakeRepo) put(t *model.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.txs[t.ID] = &cp
}

func (r *fakeRepo) Create(_ context.Context, t *model.Transaction) error {
	r.put(t)
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) JoinBuyer(_ context.Context, id, buyerID uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.BuyerID != nil || t.InvitationToken != token || t.Status != constants.StatusPending {
		return ErrInvalidTransition
	}
	t.BuyerID = &buyerID
	return nil
}

func (r *fakeRepo) MarkPaid(_ context.Context, id uuid.UUID, holdRef string, _ *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != constants.StatusPending {
		return ErrInvalidTransition
	}
	t.Status = constants.StatusPaid
	t.PaymentIntentRef = holdRef
	r.activity = append(r.activity, "payment_authorized")
	return nil
}

func (r *fakeRepo) MarkDelivered(_ context.Context, id uuid.UUID, deadline time.Time, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != constants.StatusPaid || t.SellerValidatedAt != nil {
		return ErrInvalidTransition
	}
	now := time.Now()
	t.SellerValidatedAt = &now
	t.ValidationDeadline = &deadline
	return nil
}

func (r *fakeRepo) MarkValidated(_ context.Context, id, buyerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != constants.StatusPaid || t.SellerValidatedAt == nil ||
		t.FundsReleased || t.BuyerID == nil || *t.BuyerID != buyerID {
		return ErrInvalidTransition
	}
	now := time.Now()
	t.Status = constants.StatusValidated
	t.BuyerValidatedAt = &now
	return nil
}

func (r *fakeRepo) MarkReleased(_ context.Context, rel Release) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markReleasedErr != nil {
		err := r.markReleasedErr
		r.markReleasedErr = nil
		return err
	}
	t, ok := r.txs[rel.TransactionID]
	if !ok || t.FundsReleased || !releasable(t.Status) {
		return ErrInvalidTransition
	}
	now := time.Now()
	t.Status = constants.StatusCompleted
	t.FundsReleased = true
	t.FundsReleasedAt = &now
	t.ChargeRef = rel.ChargeRef
	t.TransferRef = rel.TransferRef
	t.RefundStatus = rel.RefundStatus
	t.RefundPercentage = rel.RefundPercentage
	if rel.BuyerValidated && t.BuyerValidatedAt == nil {
		t.BuyerValidatedAt = &now
	}
	r.activity = append(r.activity, "funds_released")
	return nil
}

func (r *fakeRepo) MarkDisputed(_ context.Context, id, disputeID, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || (t.Status != constants.StatusPaid && t.Status != constants.StatusValidated) || t.FundsReleased {
		return ErrInvalidTransition
	}
	t.Status = constants.StatusDisputed
	t.DisputeID = &disputeID
	return nil
}

func (r *fakeRepo) MarkExpired(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != constants.StatusPending || t.PaymentDeadline == nil || !t.PaymentDeadline.Before(time.Now()) {
		return ErrInvalidTransition
	}
	t.Status = constants.StatusExpired
	return nil
}

func (r *fakeRepo) Cancel(_ context.Context, id, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != constants.StatusPending {
		return ErrInvalidTransition
	}
	t.Status = constants.StatusCancelled
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return ErrInvalidTransition
	}
	overdue := t.PaymentDeadline != nil && t.PaymentDeadline.Before(time.Now())
	if t.Status != constants.StatusExpired && !(t.Status == constants.StatusPending && overdue) {
		return ErrInvalidTransition
	}
	delete(r.txs, id)
	return nil
}

func (r *fakeRepo) AppendActivity(_ context.Context, _ uuid.UUID, _ *uuid.UUID, event string, _ int64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = append(r.activity, event)
	return nil
}

func (r *fakeRepo) IncrementReleaseAttempts(_ context.Context, id uuid.UUID, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.txs[id]
	t.ReleaseAttempts++
	return t.ReleaseAttempts, nil
}

func (r *fakeRepo) ListExpiredPayments(_ context.Context, now time.Time, _ int) ([]*model.Transaction, error) {
	return r.selectTx(func(t *model.Transaction) bool {
		return t.Status == constants.StatusPending && t.PaymentDeadline != nil && t.PaymentDeadline.Before(now)
	}), nil
}

func (r *fakeRepo) ListOverdueValidations(_ context.Context, now time.Time, _ int) ([]*model.Transaction, error) {
	return r.selectTx(func(t *model.Transaction) bool {
		if t.FundsReleased {
			return false
		}
		if t.Status == constants.StatusValidated {
			return true
		}
		return t.Status == constants.StatusPaid &&
			t.SellerValidatedAt != nil && t.BuyerValidatedAt == nil &&
			t.ValidationDeadline != nil && t.ValidationDeadline.Before(now)
	}), nil
}

func (r *fakeRepo) ListUpcomingValidations(_ context.Context, now time.Time, within time.Duration, _ int) ([]*model.Transaction, error) {
	return r.selectTx(func(t *model.Transaction) bool {
		return t.Status == constants.StatusPaid && t.SellerValidatedAt != nil && t.BuyerValidatedAt == nil &&
			!t.FundsReleased && t.ValidationDeadline != nil &&
			t.ValidationDeadline.After(now) && !t.ValidationDeadline.After(now.Add(within))
	}), nil
}

func (r *fakeRepo) InsertReminder(_ context.Context, id uuid.UUID, offsetHours int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("reminder:%s:%d", id, offsetHours)
	for _, a := range r.activity {
		if a == key {
			return false, nil
		}
	}
	r.activity = append(r.activity, key)
	return true, nil
}

func (r *fakeRepo) selectTx(pred func(*model.Transaction) bool) []*model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, t := range r.txs {
		if pred(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// fakeGateway counts processor-side effects. Like the real processor
// honoring the deterministic idempotency keys, a repeated call for the same
// transaction replays the recorded ref without moving funds again.
type fakeGateway struct {
	mu          sync.Mutex
	captured    map[string]bool
	transferred map[string]bool
	refunded    map[string]bool
	captures    int32
	transfers   int32
	refunds     int32
	failWith    error
}

func (g *fakeGateway) once(set *map[string]bool, txID string, counter *int32) {
	if *set == nil {
		*set = make(map[string]bool)
	}
	if !(*set)[txID] {
		(*set)[txID] = true
		atomic.AddInt32(counter, 1)
	}
}

func (g *fakeGateway) Authorize(_ context.Context, txID string, _ int64, _, _ string) (string, error) {
	if g.failWith != nil {
		return "", g.failWith
	}
	return "hold_" + txID, nil
}

func (g *fakeGateway) Capture(_ context.Context, txID, _ string) (string, error) {
	if g.failWith != nil {
		return "", g.failWith
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.once(&g.captured, txID, &g.captures)
	return "ch_" + txID, nil
}

func (g *fakeGateway) Transfer(_ context.Context, txID, _, _ string, _ int64) (string, error) {
	if g.failWith != nil {
		return "", g.failWith
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.once(&g.transferred, txID, &g.transfers)
	return "tr_" + txID, nil
}

func (g *fakeGateway) Refund(_ context.Context, txID, _ string, _ int64) (string, error) {
	if g.failWith != nil {
		return "", g.failWith
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.once(&g.refunded, txID, &g.refunds)
	return "re_" + txID, nil
}

// fakeLocker serializes like the redis lock: second acquirer fails while the
// lock is held.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

type fakeLock struct {
	locker *fakeLocker
	key    string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (ReleaseLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, fmt.Errorf("lock already held")
	}
	l.held[key] = true
	return &fakeLock{locker: l, key: key}, nil
}

func (f *fakeLock) Release(_ context.Context) error {
	f.locker.mu.Lock()
	defer f.locker.mu.Unlock()
	delete(f.locker.held, f.key)
	return nil
}

type fakeAccounts struct {
	disabled bool
}

func (a *fakeAccounts) GetBySeller(_ context.Context, sellerID uuid.UUID) (*model.PayoutAccount, error) {
	return &model.PayoutAccount{SellerID: sellerID, AccountRef: "acct_" + sellerID.String()[:8], PayoutsEnabled: !a.disabled}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []types.NotificationEvent
}

func (n *fakeNotifier) Notify(_ context.Context, e types.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func testConfig() config.EscrowConfig {
	return config.EscrowConfig{
		PaymentDeadline:       7 * 24 * time.Hour,
		ValidationDeadline:    72 * time.Hour,
		BankTransferMinWindow: 72 * time.Hour,
		MaxReleaseAttempts:    5,
		SchedulerBatchSize:    100,
		ReminderOffsetHours:   []int{24, 12, 6, 1},
	}
}

type fixture struct {
	repo     *fakeRepo
	gw       *fakeGateway
	locker   *fakeLocker
	accounts *fakeAccounts
	notifier *fakeNotifier
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newFakeRepo(),
		gw:       &fakeGateway{},
		locker:   newFakeLocker(),
		accounts: &fakeAccounts{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(f.repo, f.gw, f.locker, f.accounts, f.notifier, testConfig(), time.Second)
	return f
}

func (f *fixture) paidTransaction(sellerValidated bool, validationDeadline *time.Time) *model.Transaction {
	buyerID := uuid.New()
	deadline := time.Now().Add(7 * 24 * time.Hour)
	t := &model.Transaction{
		ID:               uuid.New(),
		SellerID:         uuid.New(),
		BuyerID:          &buyerID,
		InvitationToken:  uuid.NewString(),
		Title:            "garden landscaping",
		Price:            "100",
		Currency:         "EUR",
		Status:           constants.StatusPaid,
		PaymentIntentRef: "hold_x",
		PaymentDeadline:  &deadline,
		RefundStatus:     constants.RefundNone,
	}
	if sellerValidated {
		now := time.Now().Add(-time.Hour)
		t.SellerValidatedAt = &now
		t.ValidationDeadline = validationDeadline
	}
	f.repo.put(t)
	return t
}

func TestCheckoutAuthorizesAndMarksPaid(t *testing.T) {
	f := newFixture()
	buyerID := uuid.New()
	deadline := time.Now().Add(7 * 24 * time.Hour)
	tx := &model.Transaction{
		ID: uuid.New(), SellerID: uuid.New(), BuyerID: &buyerID,
		Title: "x", Price: "19.99", Currency: "EUR",
		Status: constants.StatusPending, PaymentDeadline: &deadline,
	}
	f.repo.put(tx)

	resp, err := f.svc.Checkout(context.Background(), tx.ID, &types.CheckoutRequest{
		BuyerID: buyerID.String(), PaymentMethod: constants.MethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, "hold_"+tx.ID.String(), resp.HoldRef)

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusPaid, got.Status)
}

func TestCheckoutGatewayRejectionLeavesStatePending(t *testing.T) {
	f := newFixture()
	buyerID := uuid.New()
	deadline := time.Now().Add(7 * 24 * time.Hour)
	tx := &model.Transaction{
		ID: uuid.New(), SellerID: uuid.New(), BuyerID: &buyerID,
		Price: "50", Currency: "EUR", Status: constants.StatusPending, PaymentDeadline: &deadline,
	}
	f.repo.put(tx)
	f.gw.failWith = fmt.Errorf("card declined")

	_, err := f.svc.Checkout(context.Background(), tx.ID, &types.CheckoutRequest{
		BuyerID: buyerID.String(), PaymentMethod: constants.MethodCard,
	})
	require.Error(t, err)

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusPending, got.Status)
}

func TestPaymentMethodsBankTransferWindow(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		wantBank  bool
	}{
		{name: "well inside window", remaining: 100 * time.Hour, wantBank: true},
		{name: "exactly 72h", remaining: 72 * time.Hour, wantBank: true},
		{name: "just under 72h", remaining: 72*time.Hour - 36*time.Second, wantBank: false},
		{name: "one hour left", remaining: time.Hour, wantBank: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			now := time.Now()
			f.svc.now = func() time.Time { return now }
			deadline := now.Add(tt.remaining)
			tx := &model.Transaction{
				ID: uuid.New(), SellerID: uuid.New(),
				Price: "100", Currency: "EUR",
				Status: constants.StatusPending, PaymentDeadline: &deadline,
			}
			f.repo.put(tx)

			resp, err := f.svc.PaymentMethods(context.Background(), tx.ID)
			require.NoError(t, err)
			assert.Contains(t, resp.Methods, constants.MethodCard)
			if tt.wantBank {
				assert.Contains(t, resp.Methods, constants.MethodBankTransfer)
				assert.Empty(t, resp.Excluded)
			} else {
				assert.NotContains(t, resp.Methods, constants.MethodBankTransfer)
				require.Len(t, resp.Excluded, 1)
				assert.Contains(t, resp.Excluded[0].Reason, "72h")
			}
		})
	}
}

func TestValidateReleasesFunds(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(48 * time.Hour)
	tx := f.paidTransaction(true, &deadline)

	require.NoError(t, f.svc.Validate(context.Background(), tx.ID, *tx.BuyerID))

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusCompleted, got.Status)
	assert.True(t, got.FundsReleased)
	assert.NotNil(t, got.BuyerValidatedAt)
	assert.EqualValues(t, 1, f.gw.captures)
	assert.EqualValues(t, 1, f.gw.transfers)
	assert.EqualValues(t, 0, f.gw.refunds)
}

func TestValidateRetriesReleaseAfterGatewayFailure(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(48 * time.Hour)
	tx := f.paidTransaction(true, &deadline)

	f.gw.failWith = fmt.Errorf("gateway timeout")
	require.Error(t, f.svc.Validate(context.Background(), tx.ID, *tx.BuyerID))

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusValidated, got.Status)
	assert.False(t, got.FundsReleased)
	assert.EqualValues(t, 0, f.gw.captures)

	// The transition already committed, so the retry must skip straight to
	// the release instead of treating the validated row as a no-op.
	f.gw.failWith = nil
	require.NoError(t, f.svc.Validate(context.Background(), tx.ID, *tx.BuyerID))

	got, _ = f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusCompleted, got.Status)
	assert.True(t, got.FundsReleased)
	assert.EqualValues(t, 1, f.gw.captures)
	assert.EqualValues(t, 1, f.gw.transfers)
}

func TestSweepRecoversStalledValidatedRelease(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(48 * time.Hour)
	tx := f.paidTransaction(true, &deadline)

	f.gw.failWith = fmt.Errorf("gateway timeout")
	require.Error(t, f.svc.Validate(context.Background(), tx.ID, *tx.BuyerID))
	f.gw.failWith = nil

	// The deadline is still in the future, but the validated row with funds
	// unreleased must be selected anyway.
	candidates, err := f.repo.ListOverdueValidations(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, tx.ID, candidates[0].ID)

	require.NoError(t, f.svc.AutoRelease(context.Background(), candidates[0].ID))

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.True(t, got.FundsReleased)
	assert.Equal(t, constants.StatusCompleted, got.Status)
	assert.EqualValues(t, 1, f.gw.captures)
	assert.EqualValues(t, 1, f.gw.transfers)
}

func TestReleaseConvergesAfterCommitFailure(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(-time.Minute)
	tx := f.paidTransaction(true, &deadline)

	f.repo.markReleasedErr = fmt.Errorf("connection reset by peer")
	require.Error(t, f.svc.AutoRelease(context.Background(), tx.ID))

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.False(t, got.FundsReleased, "failed commit must stay retryable")

	require.NoError(t, f.svc.AutoRelease(context.Background(), tx.ID))

	got, _ = f.repo.Get(context.Background(), tx.ID)
	assert.True(t, got.FundsReleased)
	assert.Equal(t, "ch_"+tx.ID.String(), got.ChargeRef)
	assert.Equal(t, "tr_"+tx.ID.String(), got.TransferRef)
	assert.EqualValues(t, 1, f.gw.captures, "repeated capture replays the same charge")
	assert.EqualValues(t, 1, f.gw.transfers, "repeated transfer replays the same payout")
}

func TestConcurrentReleaseIssuesOneCaptureTransferPair(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(-time.Second)
	tx := f.paidTransaction(true, &deadline)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// One call is the manual release, the other the sweep; the
			// loser sees the lock or the released flag and no-ops.
			_ = f.svc.AutoRelease(context.Background(), tx.ID)
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, f.gw.captures, "exactly one capture")
	assert.EqualValues(t, 1, f.gw.transfers, "exactly one transfer")

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.True(t, got.FundsReleased)
	assert.Equal(t, constants.StatusCompleted, got.Status)
}

func TestAutoReleaseRequiresOverdueDeadline(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(24 * time.Hour)
	tx := f.paidTransaction(true, &deadline)

	err := f.svc.AutoRelease(context.Background(), tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualValues(t, 0, f.gw.captures)
}

func TestReleaseIsNoOpWhenAlreadyReleased(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(-time.Minute)
	tx := f.paidTransaction(true, &deadline)

	require.NoError(t, f.svc.AutoRelease(context.Background(), tx.ID))
	require.NoError(t, f.svc.AutoRelease(context.Background(), tx.ID), "second release is a silent no-op")

	assert.EqualValues(t, 1, f.gw.captures)
	assert.EqualValues(t, 1, f.gw.transfers)
}

func TestSettleDisputePartialRefund(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(24 * time.Hour)
	tx := f.paidTransaction(true, &deadline)
	disputeID := uuid.New()
	require.NoError(t, f.svc.AttachDispute(context.Background(), tx.ID, disputeID, *tx.BuyerID))

	res, err := f.svc.SettleDispute(context.Background(), tx.ID, 50, nil)
	require.NoError(t, err)
	assert.False(t, res.AlreadyReleased)
	assert.Equal(t, int64(5000), res.Breakdown.RefundAmount)
	assert.Equal(t, int64(4500), res.Breakdown.SellerAmount)
	assert.Equal(t, int64(500), res.Breakdown.PlatformFee)
	assert.EqualValues(t, 1, f.gw.captures)
	assert.EqualValues(t, 1, f.gw.refunds)
	assert.EqualValues(t, 1, f.gw.transfers)

	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusCompleted, got.Status)
	assert.Equal(t, constants.RefundPartial, got.RefundStatus)
	assert.Equal(t, 50, got.RefundPercentage)
}

func TestSettleDisputeFullRefundSkipsTransfer(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(24 * time.Hour)
	tx := f.paidTransaction(true, &deadline)
	require.NoError(t, f.svc.AttachDispute(context.Background(), tx.ID, uuid.New(), *tx.BuyerID))

	res, err := f.svc.SettleDispute(context.Background(), tx.ID, 100, nil)
	require.NoError(t, err)
	// Seller leg is -fee at 100%: nothing to transfer, fee stays retained.
	assert.Equal(t, int64(-500), res.Breakdown.SellerAmount)
	assert.EqualValues(t, 1, f.gw.captures)
	assert.EqualValues(t, 1, f.gw.refunds)
	assert.EqualValues(t, 0, f.gw.transfers)
}

func TestSettleDisputeRejectsNonDisputed(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(24 * time.Hour)
	tx := f.paidTransaction(true, &deadline)

	_, err := f.svc.SettleDispute(context.Background(), tx.ID, 50, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualValues(t, 0, f.gw.captures)
}

func TestExpireIsNoOpOncePaid(t *testing.T) {
	f := newFixture()
	deadline := time.Now().Add(24 * time.Hour)
	tx := f.paidTransaction(false, nil)
	tx.PaymentDeadline = &deadline

	require.NoError(t, f.svc.Expire(context.Background(), tx.ID), "expiry of a paid transaction is a no-op")
	got, _ := f.repo.Get(context.Background(), tx.ID)
	assert.Equal(t, constants.StatusPaid, got.Status)
}

func TestCreateRejectsBadPrice(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), &types.CreateTransactionRequest{
		SellerID: uuid.NewString(), Title: "x", Price: "-10", Currency: "EUR",
	})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
