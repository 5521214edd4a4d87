package mq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/alagamento-br/apiserver/config"
	kafkago "github.com/segmentio/kafka-go"
)

// KafkaClient publishes with a single writer and consumes through a
// consumer group reader per Subscribe call.
type KafkaClient struct {
	brokers []string
	groupID string
	writer  *kafkago.Writer

	mu      sync.Mutex
	readers []*kafkago.Reader
}

// NewKafkaClient constructs a Kafka client from config.
func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "alagamento"
	}

	return &KafkaClient{
		brokers: brokers,
		groupID: groupID,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.LeastBytes{},
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish writes one message to the topic named by channel. Kafka assigns
// no message id, so the returned id is always empty.
func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka channel is required")
	}

	msg := kafkago.Message{
		Topic:   channel,
		Value:   data,
		Headers: attributesToHeaders(attrs),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	return "", nil
}

// Subscribe reads the topic as part of the configured consumer group.
// Offsets are committed only after the handler succeeds.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka channel is required")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: k.brokers,
		GroupID: k.groupID,
		Topic:   channel,
	})
	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := handler(ctx, messageFromKafka(msg)); err != nil {
			// Uncommitted messages are redelivered after a rebalance.
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// Close closes the writer and every reader opened by Subscribe.
func (k *KafkaClient) Close() error {
	k.mu.Lock()
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	errs := []error{k.writer.Close()}
	for _, reader := range readers {
		errs = append(errs, reader.Close())
	}
	return errors.Join(errs...)
}

func messageFromKafka(msg kafkago.Message) Message {
	attrs := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		attrs[header.Key] = string(header.Value)
	}
	return Message{
		ID:         strconv.Itoa(msg.Partition) + "-" + strconv.FormatInt(msg.Offset, 10),
		Data:       msg.Value,
		Attributes: attrs,
	}
}

func attributesToHeaders(attrs map[string]string) []kafkago.Header {
	if len(attrs) == 0 {
		return nil
	}
	headers := make([]kafkago.Header, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kafkago.Header{Key: key, Value: []byte(value)})
	}
	return headers
}
