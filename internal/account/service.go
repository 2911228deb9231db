package account

import (
	"context"

	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register links a processor account ref to a seller. Payouts stay disabled
// until the processor's account_updated webhook confirms onboarding.
func (s *Service) Register(ctx context.Context, req *types.RegisterAccountRequest) (*model.PayoutAccount, error) {
	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return nil, err
	}
	a := &model.PayoutAccount{
		ID:         uuid.New(),
		SellerID:   sellerID,
		AccountRef: req.AccountRef,
	}
	if err := s.repo.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetBySeller is the escrow service's payout destination lookup.
func (s *Service) GetBySeller(ctx context.Context, sellerID uuid.UUID) (*model.PayoutAccount, error) {
	return s.repo.GetBySeller(ctx, sellerID)
}

// ApplyAccountUpdate handles the processor's account_updated webhook and
// flips the payout capability accordingly.
func (s *Service) ApplyAccountUpdate(ctx context.Context, account types.GatewayAccount) error {
	logger := middleware.GetLogger(ctx)
	if err := s.repo.SetPayoutsEnabled(ctx, account.AccountRef, account.PayoutsEnabled); err != nil {
		return err
	}
	logger.Info().
		Str("account_ref", account.AccountRef).
		Bool("payouts_enabled", account.PayoutsEnabled).
		Msg("Payout account updated")
	return nil
}
