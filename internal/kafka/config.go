package kafka

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic name contains all kafka topics used in the application
const (
	TopicWebhookPending = "custodia.webhook.pending"

	TopicNotificationSend = "custodia.notification.send"

	TopicDiscrepancyDetected = "custodia.discrepancy.detected"

	TopicDLQ = "custodia.dlq"
)

// Event types for outbox
const (
	EventWebhookReceived      = "custodia.webhook.received"
	EventNotificationRequired = "custodia.notification.required"
)

// ConsumerGroup names for different Kafka consumers
const (
	GroupWebhookWorker      = "custodia.webhook.worker"
	GroupNotificationWorker = "custodia.notification.worker"
)

type Config struct {
	Brokers           []string
	ProducerTimeout   time.Duration
	RequiredAcks      kgo.Acks
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxPollRecords    int
	MaxRetries        int
	RetryBackoff      time.Duration
}

func DefaultConfig(brokers []string) *Config {
	return &Config{
		Brokers:           brokers,
		ProducerTimeout:   10 * time.Second,
		RequiredAcks:      kgo.AllISRAcks(),
		SessionTimeout:    10 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		MaxPollRecords:    100,
		MaxRetries:        5,
		RetryBackoff:      1 * time.Second,
	}
}
