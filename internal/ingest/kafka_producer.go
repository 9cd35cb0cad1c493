package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// DecisionEvent is one audit record of an engine decision.
type DecisionEvent struct {
	Type      string    `json:"type"` // driver_assigned, price_quoted, anomaly_flagged, payout_processed
	Key       string    `json:"key"`  // booking or driver id
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaProducer publishes decision-audit events. Publishing is best-effort;
// callers ignore errors beyond logging.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishDecision(eventType, key string, payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := DecisionEvent{Type: eventType, Key: key, Payload: payload, Timestamp: time.Now()}
	b, _ := json.Marshal(ev)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
