package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/model"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Source is the deadline-scan slice of the transaction repository.
type Source interface {
	ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error)
	ListOverdueValidations(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error)
	ListUpcomingValidations(ctx context.Context, now time.Time, within time.Duration, limit int) ([]*model.Transaction, error)
	InsertReminder(ctx context.Context, id uuid.UUID, offsetHours int) (bool, error)
	IncrementReleaseAttempts(ctx context.Context, id uuid.UUID, lastError string) (int, error)
}

// Lifecycle is the part of the state machine the sweeps drive. Every guard
// is re-checked inside these calls; the scan results are only candidates.
type Lifecycle interface {
	Expire(ctx context.Context, id uuid.UUID) error
	AutoRelease(ctx context.Context, id uuid.UUID) error
}

type Notifier interface {
	Notify(ctx context.Context, event types.NotificationEvent)
}

type Scheduler struct {
	source    Source
	lifecycle Lifecycle
	notifier  Notifier
	cfg       config.EscrowConfig
	logger    *zerolog.Logger
	now       func() time.Time
}

func New(source Source, lifecycle Lifecycle, notifier Notifier, cfg config.EscrowConfig, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		source:    source,
		lifecycle: lifecycle,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ExpirePayments sweeps pending transactions past their payment deadline.
// A transaction paid between the scan and the transition stays paid; the
// expiry falls out as a no-op.
func (s *Scheduler) ExpirePayments(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.source.ListExpiredPayments(ctx, now, s.cfg.SchedulerBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, t := range candidates {
		if err := s.lifecycle.Expire(ctx, t.ID); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", t.ID.String()).Msg("Failed to expire transaction")
			continue
		}
		expired++
		recipients := []uuid.UUID{t.SellerID}
		if t.BuyerID != nil {
			recipients = append(recipients, *t.BuyerID)
		}
		s.notifier.Notify(ctx, types.NotificationEvent{
			Type:          "transaction_expired",
			TransactionID: t.ID.String(),
			Message:       "The payment deadline passed and the transaction expired.",
			Recipients:    recipients,
		})
	}
	if expired > 0 {
		s.logger.Info().Int("count", expired).Msg("Expired unpaid transactions")
	}
	return expired, nil
}

// ReleaseOverdueValidations sweeps delivered transactions whose validation
// deadline passed without buyer action and releases the funds to the seller.
// Persistent failures raise an operator alert after the configured number of
// attempts; the transaction is never silently dropped from the scan.
func (s *Scheduler) ReleaseOverdueValidations(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.source.ListOverdueValidations(ctx, now, s.cfg.SchedulerBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, t := range candidates {
		err := s.lifecycle.AutoRelease(ctx, t.ID)
		switch {
		case err == nil:
			released++
		case errors.Is(err, escrow.ErrReleaseInProgress):
			// Another trigger holds the lock; the next sweep picks it up.
			s.logger.Info().Str("transaction_id", t.ID.String()).Msg("Release in progress elsewhere, skipping")
		case errors.Is(err, escrow.ErrInvalidTransition):
			// Validated, disputed or released since the scan.
			s.logger.Info().Str("transaction_id", t.ID.String()).Msg("Auto release no longer applicable, skipping")
		default:
			s.logger.Error().Err(err).Str("transaction_id", t.ID.String()).Msg("Auto release failed")
			attempts, incErr := s.source.IncrementReleaseAttempts(ctx, t.ID, err.Error())
			if incErr != nil {
				s.logger.Error().Err(incErr).Str("transaction_id", t.ID.String()).Msg("Failed to record release attempt")
				continue
			}
			if attempts >= s.cfg.MaxReleaseAttempts {
				s.notifier.Notify(ctx, types.NotificationEvent{
					Type:          "release_requires_attention",
					TransactionID: t.ID.String(),
					Message:       "Automatic fund release keeps failing and needs manual review.",
				})
			}
		}
	}
	if released > 0 {
		s.logger.Info().Int("count", released).Msg("Auto-released overdue validations")
	}
	return released, nil
}

// SendValidationReminders nudges buyers whose validation deadline is
// approaching. Each (transaction, offset) pair is sent at most once, ever;
// the reminder log carries that guarantee across restarts and re-runs.
func (s *Scheduler) SendValidationReminders(ctx context.Context) (int, error) {
	offsets := s.cfg.ReminderOffsetHours
	if len(offsets) == 0 {
		return 0, nil
	}
	maxOffset := offsets[0]
	for _, o := range offsets {
		if o > maxOffset {
			maxOffset = o
		}
	}

	now := s.now()
	window := time.Duration(maxOffset) * time.Hour
	candidates, err := s.source.ListUpcomingValidations(ctx, now, window, s.cfg.SchedulerBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, t := range candidates {
		if t.ValidationDeadline == nil || t.BuyerID == nil {
			continue
		}
		remaining := t.ValidationDeadline.Sub(now)
		offset, ok := dueOffset(offsets, remaining)
		if !ok {
			continue
		}
		inserted, err := s.source.InsertReminder(ctx, t.ID, offset)
		if err != nil {
			s.logger.Error().Err(err).Str("transaction_id", t.ID.String()).Msg("Failed to record reminder")
			continue
		}
		if !inserted {
			continue
		}
		sent++
		s.notifier.Notify(ctx, types.NotificationEvent{
			Type:          "validation_reminder",
			TransactionID: t.ID.String(),
			Message:       "Please validate the delivered service before the deadline passes.",
			Recipients:    []uuid.UUID{*t.BuyerID},
		})
	}
	if sent > 0 {
		s.logger.Info().Int("count", sent).Msg("Sent validation reminders")
	}
	return sent, nil
}

// dueOffset picks the tightest configured offset covering the remaining
// time, so a sweep that starts late sends one reminder, not a backlog.
func dueOffset(offsets []int, remaining time.Duration) (int, bool) {
	best := 0
	found := false
	for _, o := range offsets {
		if remaining <= time.Duration(o)*time.Hour {
			if !found || o < best {
				best = o
				found = true
			}
		}
	}
	return best, found
}
