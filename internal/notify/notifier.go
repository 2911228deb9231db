package notify

import (
	"context"
	"encoding/json"

	"github.com/custodia-pay/custodia/internal/kafka"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/rs/zerolog"
)

// KafkaNotifier publishes notification events to the notification topic.
// Delivery is best-effort: failures are logged and swallowed, because no
// fund-moving path may ever block or fail on a notification.
type KafkaNotifier struct {
	producer *kafka.Producer
	logger   *zerolog.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, logger *zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, logger: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event types.NotificationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Str("type", event.Type).Msg("Failed to encode notification event")
		return
	}
	n.producer.PublishAsync(ctx, kafka.TopicNotificationSend, []byte(event.TransactionID), payload)
}

// NopNotifier discards every event. Used where a binary has no broker.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, types.NotificationEvent) {}
