package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON messages keyed by session, so one
// session's entries land on one partition in order.
type KafkaSink struct {
	writer messageWriter
}

// kafkaBatchTimeout caps how long a synchronous write waits for its batch
// to fill. Each entry is written alone, so the writer's 1s default would
// be pure latency.
const kafkaBatchTimeout = 5 * time.Millisecond

// NewKafkaSink creates a synchronous writer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: kafkaBatchTimeout,
		},
	}
}

func (k *KafkaSink) Write(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Session),
		Value: data,
		Time:  e.Timestamp,
	}); err != nil {
		return fmt.Errorf("publish audit entry %d: %w", e.Sequence, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
