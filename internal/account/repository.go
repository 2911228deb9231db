package account

import (
	"context"
	"errors"

	"github.com/custodia-pay/custodia/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("payout account not found")

type Repository interface {
	Upsert(ctx context.Context, a *model.PayoutAccount) error
	GetBySeller(ctx context.Context, sellerID uuid.UUID) (*model.PayoutAccount, error)
	SetPayoutsEnabled(ctx context.Context, accountRef string, enabled bool) error
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Upsert registers or replaces the seller's payout destination. A new
// account ref starts with payouts disabled until the processor confirms it.
func (r *Repo) Upsert(ctx context.Context, a *model.PayoutAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payout_accounts (id, seller_id, account_ref, payouts_enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (seller_id) DO UPDATE
		SET account_ref = EXCLUDED.account_ref,
			payouts_enabled = EXCLUDED.payouts_enabled,
			updated_at = NOW()`,
		a.ID, a.SellerID, a.AccountRef, a.PayoutsEnabled)
	return err
}

func (r *Repo) GetBySeller(ctx context.Context, sellerID uuid.UUID) (*model.PayoutAccount, error) {
	var a model.PayoutAccount
	err := r.db.QueryRow(ctx, `
		SELECT id, seller_id, account_ref, payouts_enabled, created_at, updated_at
		FROM payout_accounts
		WHERE seller_id = $1`,
		sellerID).Scan(&a.ID, &a.SellerID, &a.AccountRef, &a.PayoutsEnabled, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) SetPayoutsEnabled(ctx context.Context, accountRef string, enabled bool) error {
	res, err := r.db.Exec(ctx, `
		UPDATE payout_accounts
		SET payouts_enabled = $2, updated_at = NOW()
		WHERE account_ref = $1`,
		accountRef, enabled)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
