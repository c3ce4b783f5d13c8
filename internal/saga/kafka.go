package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"busline/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaBusConfig contains the broker settings for the saga topic
type KafkaBusConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	SessionTimeout time.Duration
	Heartbeat      time.Duration
}

func DefaultKafkaBusConfig() *KafkaBusConfig {
	return &KafkaBusConfig{
		Brokers:        []string{"localhost:9092"},
		Topic:          "busline.saga",
		GroupID:        "busline-saga-workers",
		SessionTimeout: 30 * time.Second,
		Heartbeat:      3 * time.Second,
	}
}

// KafkaBus transports saga events over a Kafka topic. Events for the
// same order code share a partition, so per-payment ordering holds.
type KafkaBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup
	config        *KafkaBusConfig
	handler       Handler
	log           *logger.Logger
}

func NewKafkaBus(config *KafkaBusConfig) (*KafkaBus, error) {
	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create saga producer: %w", err)
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Session.Timeout = config.SessionTimeout
	consumerConfig.Consumer.Group.Heartbeat.Interval = config.Heartbeat
	consumerConfig.Consumer.Return.Errors = true
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Offsets.AutoCommit.Enable = true
	consumerConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, consumerConfig)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create saga consumer group: %w", err)
	}

	return &KafkaBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		config:        config,
		log:           logger.GetDefault(),
	}, nil
}

func (b *KafkaBus) Subscribe(handler Handler) {
	b.handler = handler
}

func (b *KafkaBus) PublishPaymentCompleted(ctx context.Context, event PaymentCompletedEvent) error {
	return b.publish(ctx, EventPaymentCompleted, strconv.FormatInt(event.OrderCode, 10), event)
}

func (b *KafkaBus) PublishTicketCancelled(ctx context.Context, event TicketCancelledEvent) error {
	return b.publish(ctx, EventTicketCancelled, strconv.FormatInt(event.OrderCode, 10), event)
}

func (b *KafkaBus) publish(ctx context.Context, eventType EventType, key string, data interface{}) error {
	envelope, err := newEnvelope(eventType, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	message := &sarama.ProducerMessage{
		Topic: b.config.Topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(raw),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(eventType)},
		},
	}

	partition, offset, err := b.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish saga event: %w", err)
	}

	b.log.InfoWithContext(ctx, "saga event published",
		"type", string(eventType), "partition", partition, "offset", offset)
	return nil
}

func (b *KafkaBus) Start(ctx context.Context) error {
	go b.handleErrors()
	go func() {
		handler := &sagaGroupHandler{bus: b}
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := b.consumerGroup.Consume(ctx, []string{b.config.Topic}, handler); err != nil {
					b.log.ErrorWithContext(ctx, "saga consumer error", "error", err.Error())
					time.Sleep(time.Second)
				}
			}
		}
	}()
	return nil
}

func (b *KafkaBus) handleErrors() {
	for err := range b.consumerGroup.Errors() {
		b.log.ErrorWithContext(context.Background(), "saga consumer group error", "error", err.Error())
	}
}

func (b *KafkaBus) Close() error {
	if err := b.consumerGroup.Close(); err != nil {
		return err
	}
	return b.producer.Close()
}

type sagaGroupHandler struct {
	bus *KafkaBus
}

func (h *sagaGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *sagaGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *sagaGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage never returns an error: handlers own their retries
// and idempotency, and a poison message must not wedge the partition.
func (h *sagaGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		h.bus.log.ErrorWithContext(ctx, "malformed saga envelope",
			"offset", message.Offset, "error", err.Error())
		return
	}

	if h.bus.handler == nil {
		h.bus.log.ErrorWithContext(ctx, "saga event dropped, no handler subscribed", "type", string(envelope.Type))
		return
	}

	switch envelope.Type {
	case EventPaymentCompleted:
		var event PaymentCompletedEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			h.bus.log.ErrorWithContext(ctx, "malformed payment completed event", "error", err.Error())
			return
		}
		h.bus.handler.HandlePaymentCompleted(ctx, event)
	case EventTicketCancelled:
		var event TicketCancelledEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			h.bus.log.ErrorWithContext(ctx, "malformed ticket cancelled event", "error", err.Error())
			return
		}
		h.bus.handler.HandleTicketCancelled(ctx, event)
	default:
		h.bus.log.ErrorWithContext(ctx, "unknown saga event type", "type", string(envelope.Type))
	}
}
