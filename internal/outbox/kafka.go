package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/config"
	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// KafkaPublisher writes outbox messages to the topic they name, keyed by
// trade id so every message of one trade lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           cfg.WriteTimeout,
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            3,
			AllowAutoTopicCreation: true,
			Transport:              &kafka.Transport{ClientID: cfg.ClientID},
		},
		logger: logger.Named("kafka"),
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, msgs []trade.OutboxMessage) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox message %s: %w", m.ID, err)
		}
		out = append(out, kafka.Message{
			Topic: m.Topic,
			Key:   []byte(m.TradeID),
			Value: value,
			Time:  m.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(m.Type)},
				{Key: "message-id", Value: []byte(m.ID)},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, out...); err != nil {
		return err
	}
	k.logger.Debug("published to kafka", zap.Int("count", len(out)))
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
