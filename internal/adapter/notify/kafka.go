package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"p2p-lending-engine/internal/config"
	"p2p-lending-engine/internal/domain/notification"
	"p2p-lending-engine/pkg/logger"
)

const deliveryTimeout = 10 * time.Second

// ProducerInterface is the subset of *kafka.Producer the notifier uses.
type ProducerInterface interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

var _ notification.Notifier = (*KafkaNotifier)(nil)

// KafkaNotifier publishes notifications as JSON, keyed by user id so one
// user's messages stay ordered within a partition.
type KafkaNotifier struct {
	producer ProducerInterface
	topic    string
}

func NewKafkaNotifier(cfg config.KafkaConfig) (*KafkaNotifier, error) {
	cm := &kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"security.protocol": cfg.SecurityProtocol,
		"client.id":         cfg.ClientID,
	}
	if cfg.SASLMechanism != "" {
		_ = cm.SetKey("sasl.mechanisms", cfg.SASLMechanism)
		_ = cm.SetKey("sasl.username", cfg.SASLUsername)
		_ = cm.SetKey("sasl.password", cfg.SASLPassword)
	}
	p, err := kafka.NewProducer(cm)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info("kafka producer created", slog.String("topic", cfg.Topic))
	return NewKafkaNotifierWithProducer(p, cfg.Topic), nil
}

func NewKafkaNotifierWithProducer(p ProducerInterface, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	// buffered so a late delivery report never blocks the producer
	deliveryChan := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(n.UserID),
		Value:          body,
		Headers:        []kafka.Header{{Key: "kind", Value: []byte(n.Kind)}},
	}, deliveryChan)
	if err != nil {
		logger.CtxError(ctx, "failed to produce notification", err, slog.String("kind", string(n.Kind)))
		return err
	}

	select {
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(deliveryTimeout):
		return fmt.Errorf("timeout waiting for kafka delivery report")
	}
	logger.CtxDebug(ctx, "notification published",
		slog.String("kind", string(n.Kind)), slog.String("user_id", n.UserID))
	return nil
}

// Close flushes outstanding messages and closes the producer.
func (k *KafkaNotifier) Close() {
	k.producer.Flush(5000)
	k.producer.Close()
}
