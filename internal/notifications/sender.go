package notifications

import (
	"context"
	"fmt"
	"time"

	"busline/pkg/logger"

	"github.com/IBM/sarama"
)

// Sender publishes user notifications. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, notification Notification) error
	Close() error
}

// KafkaSenderConfig contains configuration for the Kafka notification sender
type KafkaSenderConfig struct {
	Brokers  []string
	Topic    string
	RetryMax int
	Timeout  time.Duration
}

// DefaultKafkaSenderConfig returns a default sender configuration
func DefaultKafkaSenderConfig() *KafkaSenderConfig {
	return &KafkaSenderConfig{
		Brokers:  []string{"localhost:9092"},
		Topic:    "notifications",
		RetryMax: 3,
		Timeout:  10 * time.Second,
	}
}

// KafkaSender publishes notifications to a Kafka topic
type KafkaSender struct {
	producer sarama.SyncProducer
	config   *KafkaSenderConfig
}

// NewKafkaSender creates a new Kafka notification sender
func NewKafkaSender(config *KafkaSenderConfig) (*KafkaSender, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = config.Timeout
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Hash partitioner keeps per-user ordering
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaSender{
		producer: producer,
		config:   config,
	}, nil
}

// Send publishes a single notification to Kafka
func (ks *KafkaSender) Send(ctx context.Context, notification Notification) error {
	messageBytes, err := notification.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: ks.config.Topic,
		Key:   sarama.StringEncoder(notification.GetPartitionKey()),
		Value: sarama.ByteEncoder(messageBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("notification_id"), Value: []byte(notification.ID.String())},
			{Key: []byte("user_id"), Value: []byte(notification.UserID.String())},
			{Key: []byte("created_at"), Value: []byte(notification.CreatedAt.Format(time.RFC3339))},
		},
		Timestamp: notification.CreatedAt,
	}

	if _, _, err := ks.producer.SendMessage(message); err != nil {
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (ks *KafkaSender) Close() error {
	if ks.producer != nil {
		if err := ks.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}

// LogSender logs notifications instead of delivering them. Used when no
// Kafka brokers are configured.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a log-only notification sender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (ls *LogSender) Send(ctx context.Context, notification Notification) error {
	ls.log.InfoWithContext(ctx, "Notification (log only)",
		"user_id", notification.UserID.String(),
		"title", notification.Title,
		"content", notification.Content,
		"url", notification.URL)
	return nil
}

func (ls *LogSender) Close() error {
	return nil
}
