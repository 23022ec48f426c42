package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Althuwaynee/iraqairquality/internal/alert"
)

// MessageWriter is the part of *kafkago.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig holds configuration for the Kafka notifier.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Kafka publishes notifications as JSON events keyed by subscriber id, so
// one subscriber's events stay ordered within a partition.
type Kafka struct {
	writer MessageWriter
}

// NewKafka creates a Kafka notifier for the configured topic.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka notifier requires brokers and a topic")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Kafka{writer: w}, nil
}

// NewKafkaWithWriter creates a Kafka notifier over an existing writer.
func NewKafkaWithWriter(w MessageWriter) *Kafka {
	return &Kafka{writer: w}
}

// Notify implements alert.Notifier.
func (k *Kafka) Notify(ctx context.Context, n alert.Notification) error {
	msg, err := serializeNotification(n)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func serializeNotification(n alert.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.SubscriberID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "level", Value: []byte(n.Level)},
			{Key: "dust_storm", Value: []byte(strconv.FormatBool(n.DustStorm))},
			{Key: "reference_time", Value: []byte(n.ReferenceTime.UTC().Format(time.RFC3339))},
		},
	}, nil
}

var _ alert.Notifier = (*Kafka)(nil)
