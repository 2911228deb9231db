package main

import (
	"context"
	"encoding/json"

	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/rs/zerolog"
)

// notificationHandler delivers queued notification events. Delivery is a log
// line for now; the email/push provider plugs in here without touching the
// publishers. A bad payload is dropped, not retried.
func notificationHandler(log *zerolog.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		var event types.NotificationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal notification event, dropping")
			return nil
		}

		for _, recipient := range event.Recipients {
			log.Info().
				Str("type", event.Type).
				Str("transaction_id", event.TransactionID).
				Str("recipient", recipient.String()).
				Str("message", event.Message).
				Msg("Notification delivered")
		}
		if len(event.Recipients) == 0 {
			// Operator-facing alerts have no party recipients.
			log.Warn().
				Str("type", event.Type).
				Str("transaction_id", event.TransactionID).
				Str("message", event.Message).
				Msg("Operator notification")
		}
		return nil
	}
}
