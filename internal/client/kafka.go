package client

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/pkg/log"
)

// KafkaNotificationRecorder publishes message notifications to a Kafka
// topic for downstream consumers such as the notification service.
type KafkaNotificationRecorder struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaNotificationRecorder connects a producer to the given brokers.
func NewKafkaNotificationRecorder(brokers, topic string) (*KafkaNotificationRecorder, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
	})
	if err != nil {
		return nil, err
	}

	r := &KafkaNotificationRecorder{
		producer: producer,
		topic:    topic,
	}
	go r.drainDeliveryReports()
	return r, nil
}

func (r *KafkaNotificationRecorder) drainDeliveryReports() {
	for e := range r.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Warn().Err(m.TopicPartition.Error).Msg("notification delivery failed")
		}
	}
}

// Record publishes the message as a JSON notification keyed by
// conversation id so per-conversation ordering is preserved.
func (r *KafkaNotificationRecorder) Record(ctx context.Context, msg *domain.Message) error {
	payload, err := json.Marshal(domain.NewMessageNotification(msg))
	if err != nil {
		return err
	}

	return r.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &r.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(msg.ConversationID),
		Value: payload,
	}, nil)
}

// Close flushes outstanding messages and shuts the producer down.
func (r *KafkaNotificationRecorder) Close() {
	r.producer.Flush(5000)
	r.producer.Close()
}
