package webhook

import (
	"io"
	"net/http"

	"github.com/custodia-pay/custodia/internal/gateway"
	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/internal/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler is the processor-facing intake. It verifies, persists to the
// outbox and acknowledges fast; all state transitions happen in the webhook
// worker so a slow database transition never makes the processor retry.
type Handler struct {
	webhookSecret string
	db            *pgxpool.Pool
}

func NewHandler(webhookSecret string, db *pgxpool.Pool) *Handler {
	return &Handler{
		webhookSecret: webhookSecret,
		db:            db,
	}
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	signature := r.Header.Get("x-gateway-signature")
	if signature == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read webhook body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !gateway.VerifySignature(body, signature, h.webhookSecret) {
		logger.Error().Msg("Invalid webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	event, err := gateway.ParseEvent(body)
	if err != nil {
		// Verified but not usable: ack it so the processor stops retrying.
		logger.Warn().Err(err).Msg("Ignoring unusable webhook event")
		w.WriteHeader(http.StatusOK)
		return
	}

	partitionKey := event.Data.Metadata.TransactionID
	if partitionKey == "" {
		partitionKey = event.Data.Account.AccountRef
	}

	_, err = h.db.Exec(ctx, `
		INSERT INTO transaction_outbox (event_type, payload, partition_key, status)
		VALUES ($1, $2, $3, 'pending')`,
		kafka.EventWebhookReceived, body, partitionKey)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store webhook in outbox")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Info().
		Str("event", event.Event).
		Str("event_id", event.EventID).
		Msg("Webhook stored in outbox")
	w.WriteHeader(http.StatusOK)
}
