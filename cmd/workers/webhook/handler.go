package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-pay/custodia/internal/account"
	"github.com/custodia-pay/custodia/internal/database"
	"github.com/custodia-pay/custodia/internal/escrow"
	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/internal/redis"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// webhookHandler applies verified processor events to the state machine.
// Every event is deduplicated on its external event id before any transition
// runs: a redis fast path first, the gateway_webhooks table as the durable
// guard. Reordered deliveries fall out of the guarded transitions as no-ops.
func webhookHandler(db *database.Database, rdb *redis.Client, escrowService *escrow.Service, accountService *account.Service, log *zerolog.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		log.Info().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Processing webhook event")

		var event types.GatewayWebhookEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Malformed payloads can never succeed; drop instead of retrying.
			log.Error().Err(err).Msg("Failed to unmarshal webhook message, dropping")
			return nil
		}
		if event.EventID == "" {
			log.Error().Msg("Webhook event missing event_id, dropping")
			return nil
		}

		if val, err := rdb.GetIdempotencyKey(ctx, "webhook:"+event.EventID); err == nil && val == "done" {
			log.Info().Str("event_id", event.EventID).Msg("Webhook already processed, skipping")
			return nil
		}

		res, err := db.Pool.Exec(ctx, `
			INSERT INTO gateway_webhooks (id, event_id, payload, status)
			VALUES ($1, $2, $3, 'received')
			ON CONFLICT (event_id) DO NOTHING`,
			uuid.New(), event.EventID, msg.Value)
		if err != nil {
			log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to record webhook")
			return err
		}
		if res.RowsAffected() == 0 {
			var status string
			if err := db.Pool.QueryRow(ctx, `
				SELECT status FROM gateway_webhooks WHERE event_id = $1`,
				event.EventID).Scan(&status); err != nil {
				return err
			}
			if status == "processed" {
				log.Info().Str("event_id", event.EventID).Msg("Webhook already processed, skipping")
				return nil
			}
			// A prior attempt failed mid-way; fall through and retry.
		}

		if err := dispatch(ctx, escrowService, accountService, &event); err != nil {
			if _, dbErr := db.Pool.Exec(ctx, `
				UPDATE gateway_webhooks SET status = 'error', updated_at = NOW() WHERE event_id = $1`,
				event.EventID); dbErr != nil {
				log.Error().Err(dbErr).Str("event_id", event.EventID).Msg("Failed to mark webhook errored")
			}
			log.Error().Err(err).Str("event_id", event.EventID).Str("event", event.Event).Msg("Failed to apply webhook event")
			return err
		}

		if _, err := db.Pool.Exec(ctx, `
			UPDATE gateway_webhooks SET status = 'processed', updated_at = NOW() WHERE event_id = $1`,
			event.EventID); err != nil {
			return err
		}
		if err := rdb.MarkIdempotencyComplete(ctx, "webhook:"+event.EventID, []byte("done"), 24*time.Hour); err != nil {
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("Failed to cache webhook idempotency key")
		}

		log.Info().Str("event_id", event.EventID).Str("event", event.Event).Msg("Webhook event applied")
		return nil
	}
}

func dispatch(ctx context.Context, escrowService *escrow.Service, accountService *account.Service, event *types.GatewayWebhookEvent) error {
	if event.Event == types.EventAccountUpdated {
		return accountService.ApplyAccountUpdate(ctx, event.Data.Account)
	}

	transactionID, err := uuid.Parse(event.Data.Metadata.TransactionID)
	if err != nil {
		return fmt.Errorf("invalid transaction_id in webhook metadata: %w", err)
	}

	switch event.Event {
	case types.EventPaymentSucceeded:
		return escrowService.ConfirmPayment(ctx, transactionID, event.Data.Reference)
	case types.EventPaymentFailed:
		reason := event.Data.FailureCode
		if reason == "" {
			reason = event.Data.GatewayResponse
		}
		return escrowService.PaymentFailed(ctx, transactionID, reason)
	case types.EventChargeRefunded:
		return escrowService.RecordRefundConfirmation(ctx, transactionID, event.Data.Reference, event.Data.Amount)
	default:
		return fmt.Errorf("unsupported webhook event type %q", event.Event)
	}
}
