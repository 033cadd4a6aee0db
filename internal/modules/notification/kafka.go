// README: Kafka sender publishing notification records keyed by user id.
package notification

import (
	"context"
	"encoding/json"

	skafka "github.com/segmentio/kafka-go"
)

// Writer defines the subset of segmentio kafka.Writer we need.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

type KafkaSender struct {
	writer Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return NewKafkaSenderWithWriter(&skafka.Writer{
		Addr:     skafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &skafka.Hash{},
	})
}

func NewKafkaSenderWithWriter(w Writer) *KafkaSender {
	return &KafkaSender{writer: w}
}

func (s *KafkaSender) Send(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, skafka.Message{
		Key:   []byte(n.UserID),
		Value: b,
		Headers: []skafka.Header{
			{Key: "type", Value: []byte(n.Type())},
		},
	})
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
