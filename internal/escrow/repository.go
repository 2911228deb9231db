package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-pay/custodia/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Release carries the result of a settlement that is about to be committed.
type Release struct {
	TransactionID    uuid.UUID
	ChargeRef        string
	TransferRef      string
	RefundRef        string
	RefundStatus     string
	RefundPercentage int
	BuyerValidated   bool
	Actor            *uuid.UUID
	AmountMinor      int64
}

type Repository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	JoinBuyer(ctx context.Context, id, buyerID uuid.UUID, token string) error
	MarkPaid(ctx context.Context, id uuid.UUID, holdRef string, actor *uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID, deadline time.Time, actor uuid.UUID) error
	MarkValidated(ctx context.Context, id, buyerID uuid.UUID) error
	MarkReleased(ctx context.Context, rel Release) error
	MarkDisputed(ctx context.Context, id, disputeID, actor uuid.UUID) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id, actor uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	AppendActivity(ctx context.Context, id uuid.UUID, actor *uuid.UUID, event string, amountMinor int64, reference string) error
	IncrementReleaseAttempts(ctx context.Context, id uuid.UUID, lastError string) (int, error)
	ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error)
	ListOverdueValidations(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error)
	ListUpcomingValidations(ctx context.Context, now time.Time, within time.Duration, limit int) ([]*model.Transaction, error)
	InsertReminder(ctx context.Context, id uuid.UUID, offsetHours int) (bool, error)
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

const transactionColumns = `id, seller_id, buyer_id, invitation_token, title, price, currency, service_date,
	status, payment_intent_ref, charge_ref, transfer_ref, payment_deadline, validation_deadline,
	seller_validated_at, buyer_validated_at, funds_released, funds_released_at, dispute_id,
	refund_status, refund_percentage, release_attempts, created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.SellerID, &t.BuyerID, &t.InvitationToken, &t.Title, &t.Price, &t.Currency,
		&t.ServiceDate, &t.Status, &t.PaymentIntentRef, &t.ChargeRef, &t.TransferRef,
		&t.PaymentDeadline, &t.ValidationDeadline, &t.SellerValidatedAt, &t.BuyerValidatedAt,
		&t.FundsReleased, &t.FundsReleasedAt, &t.DisputeID, &t.RefundStatus, &t.RefundPercentage,
		&t.ReleaseAttempts, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) Create(ctx context.Context, t *model.Transaction) error {
	sql := `INSERT INTO transactions
		(id, seller_id, invitation_token, title, price, currency, service_date, status, payment_deadline, refund_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'none')`
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, sql, t.ID, t.SellerID, t.InvitationToken, t.Title, t.Price, t.Currency,
		t.ServiceDate, t.Status, t.PaymentDeadline)
	if err != nil {
		return err
	}
	if err := appendActivityTx(ctx, tx, t.ID, &t.SellerID, "transaction_created", 0, ""); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// JoinBuyer attaches the buyer once; a second join or a wrong token is an
// invalid transition.
func (r *Repo) JoinBuyer(ctx context.Context, id, buyerID uuid.UUID, token string) error {
	return r.guardedUpdate(ctx, id, &buyerID, "buyer_joined", 0, "", `
		UPDATE transactions
		SET buyer_id = $2, updated_at = NOW()
		WHERE id = $1 AND buyer_id IS NULL AND invitation_token = $3 AND status = 'pending'`,
		id, buyerID, token)
}

func (r *Repo) MarkPaid(ctx context.Context, id uuid.UUID, holdRef string, actor *uuid.UUID) error {
	return r.guardedUpdate(ctx, id, actor, "payment_authorized", 0, holdRef, `
		UPDATE transactions
		SET status = 'paid', payment_intent_ref = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, holdRef)
}

func (r *Repo) MarkDelivered(ctx context.Context, id uuid.UUID, deadline time.Time, actor uuid.UUID) error {
	return r.guardedUpdate(ctx, id, &actor, "seller_marked_delivered", 0, "", `
		UPDATE transactions
		SET seller_validated_at = NOW(), validation_deadline = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'paid' AND seller_validated_at IS NULL`,
		id, deadline)
}

func (r *Repo) MarkValidated(ctx context.Context, id, buyerID uuid.UUID) error {
	return r.guardedUpdate(ctx, id, &buyerID, "buyer_validated", 0, "", `
		UPDATE transactions
		SET status = 'validated', buyer_validated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'paid' AND buyer_id = $2
		  AND seller_validated_at IS NOT NULL AND funds_released = false`,
		id, buyerID)
}

// MarkReleased commits a settlement. The funds_released = false guard is the
// last line of defence against double release; a lost race surfaces as
// ErrInvalidTransition and the caller treats it as already done.
func (r *Repo) MarkReleased(ctx context.Context, rel Release) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = 'completed',
			funds_released = true,
			funds_released_at = NOW(),
			charge_ref = $2,
			transfer_ref = $3,
			refund_status = $4,
			refund_percentage = $5,
			buyer_validated_at = CASE WHEN $6 THEN COALESCE(buyer_validated_at, NOW()) ELSE buyer_validated_at END,
			updated_at = NOW()
		WHERE id = $1 AND funds_released = false AND status IN ('paid', 'validated', 'disputed')`,
		rel.TransactionID, rel.ChargeRef, rel.TransferRef, rel.RefundStatus, rel.RefundPercentage, rel.BuyerValidated)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidTransition
	}

	if err := appendActivityTx(ctx, tx, rel.TransactionID, rel.Actor, "funds_released", rel.AmountMinor, rel.ChargeRef); err != nil {
		return err
	}
	if rel.RefundRef != "" {
		if err := appendActivityTx(ctx, tx, rel.TransactionID, rel.Actor, "refund_issued", 0, rel.RefundRef); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) MarkDisputed(ctx context.Context, id, disputeID, actor uuid.UUID) error {
	return r.guardedUpdate(ctx, id, &actor, "dispute_opened", 0, disputeID.String(), `
		UPDATE transactions
		SET status = 'disputed', dispute_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('paid', 'validated') AND funds_released = false`,
		id, disputeID)
}

func (r *Repo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.guardedUpdate(ctx, id, nil, "payment_deadline_expired", 0, "", `
		UPDATE transactions
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_deadline < NOW()`,
		id)
}

func (r *Repo) Cancel(ctx context.Context, id, actor uuid.UUID) error {
	return r.guardedUpdate(ctx, id, &actor, "transaction_cancelled", 0, "", `
		UPDATE transactions
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND (seller_id = $2 OR buyer_id = $2)`,
		id, actor)
}

// Delete removes an expired (or overdue unpaid) transaction. This is an
// explicit operator action, never automatic.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.Exec(ctx, `
		DELETE FROM transactions
		WHERE id = $1 AND (status = 'expired' OR (status = 'pending' AND payment_deadline < NOW()))`,
		id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repo) AppendActivity(ctx context.Context, id uuid.UUID, actor *uuid.UUID, event string, amountMinor int64, reference string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO activity_logs (transaction_id, actor_id, event, amount_minor, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		id, actor, event, amountMinor, reference)
	return err
}

func (r *Repo) IncrementReleaseAttempts(ctx context.Context, id uuid.UUID, lastError string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE transactions
		SET release_attempts = release_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING release_attempts`,
		id).Scan(&attempts)
	if err != nil {
		return 0, err
	}
	if lastError != "" {
		if err := r.AppendActivity(ctx, id, nil, "release_attempt_failed", 0, lastError); err != nil {
			return attempts, err
		}
	}
	return attempts, nil
}

func (r *Repo) ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'pending' AND payment_deadline IS NOT NULL AND payment_deadline < $1
		ORDER BY payment_deadline ASC
		LIMIT $2`, now, limit)
}

// ListOverdueValidations selects rows whose funds still have to move:
// delivered transactions past the validation deadline, plus validated rows
// whose release never committed. funds_released = false is the authoritative
// retry signal for both.
func (r *Repo) ListOverdueValidations(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE funds_released = false
		  AND (status = 'validated'
		       OR (status = 'paid'
		           AND seller_validated_at IS NOT NULL
		           AND buyer_validated_at IS NULL
		           AND validation_deadline IS NOT NULL AND validation_deadline < $1))
		ORDER BY validation_deadline ASC
		LIMIT $2`, now, limit)
}

func (r *Repo) ListUpcomingValidations(ctx context.Context, now time.Time, within time.Duration, limit int) ([]*model.Transaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'paid'
		  AND seller_validated_at IS NOT NULL
		  AND buyer_validated_at IS NULL
		  AND funds_released = false
		  AND validation_deadline IS NOT NULL
		  AND validation_deadline > $1 AND validation_deadline <= $2
		ORDER BY validation_deadline ASC
		LIMIT $3`, now, now.Add(within), limit)
}

// InsertReminder records that a reminder was sent for (transaction, offset).
// Returns false when the row already exists, so re-runs never resend.
func (r *Repo) InsertReminder(ctx context.Context, id uuid.UUID, offsetHours int) (bool, error) {
	res, err := r.db.Exec(ctx, `
		INSERT INTO reminder_logs (transaction_id, offset_hours, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (transaction_id, offset_hours) DO NOTHING`,
		id, offsetHours)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]*model.Transaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// guardedUpdate runs a conditional status update and its audit row in one DB
// transaction. Zero rows means the precondition failed: ErrInvalidTransition.
func (r *Repo) guardedUpdate(ctx context.Context, id uuid.UUID, actor *uuid.UUID, event string, amountMinor int64, reference, sql string, args ...any) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	if err := appendActivityTx(ctx, tx, id, actor, event, amountMinor, reference); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func appendActivityTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, actor *uuid.UUID, event string, amountMinor int64, reference string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO activity_logs (transaction_id, actor_id, event, amount_minor, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		id, actor, event, amountMinor, reference)
	return err
}
