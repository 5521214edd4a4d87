package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alagamento-br/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient publishes each channel to a topic exchange of the same
// name. The event type attribute is the routing key, so a consumer can bind
// to "incident.*" or a single type.
type RabbitMQClient struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	cfg   config.RabbitMQConfig
	mu    sync.Mutex
	ready map[string]bool
}

// NewRabbitMQClient dials the broker and opens a channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set rabbitmq prefetch: %w", err)
		}
	}

	return &RabbitMQClient{conn: conn, ch: ch, cfg: cfg, ready: make(map[string]bool)}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if err := r.declareExchange(channel); err != nil {
		return "", err
	}

	headers := make(amqp.Table, len(attrs))
	for k, v := range attrs {
		headers[k] = v
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Type:         attrs["type"],
		Headers:      headers,
		Body:         data,
	}
	if r.cfg.QueueDurable {
		msg.DeliveryMode = amqp.Persistent
	}

	r.mu.Lock()
	err := r.ch.PublishWithContext(ctx, channel, routingKey(attrs), false, false, msg)
	r.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return msg.MessageId, nil
}

// Subscribe binds a queue to the channel's exchange and consumes it until
// ctx is done. A durable config uses the shared queue "<channel>.watch";
// otherwise each subscriber gets its own exclusive queue. A handler error
// requeues the delivery.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := r.declareExchange(channel); err != nil {
		return err
	}

	r.mu.Lock()
	queue, err := r.declareQueue(channel)
	if err == nil {
		err = r.ch.QueueBind(queue.Name, "#", channel, false, nil)
	}
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("bind queue for %s: %w", channel, err)
	}

	tag := "alagamento-" + uuid.NewString()
	deliveries, err := r.ch.Consume(queue.Name, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue.Name, err)
	}
	defer func() { _ = r.ch.Cancel(tag, false) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msg := Message{ID: d.MessageId, Data: d.Body, Attributes: headersToAttributes(d.Headers)}
			if err := handler(ctx, msg); err != nil {
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}

func (r *RabbitMQClient) declareExchange(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("rabbitmq channel is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready[name] {
		return nil
	}
	if err := r.ch.ExchangeDeclare(name, amqp.ExchangeTopic, r.cfg.QueueDurable, r.cfg.QueueAutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	r.ready[name] = true
	return nil
}

// declareQueue must be called with r.mu held.
func (r *RabbitMQClient) declareQueue(channel string) (amqp.Queue, error) {
	if r.cfg.QueueDurable {
		return r.ch.QueueDeclare(channel+".watch", true, r.cfg.QueueAutoDelete, false, false, nil)
	}
	return r.ch.QueueDeclare("", false, true, true, false, nil)
}

func routingKey(attrs map[string]string) string {
	if key := attrs["type"]; key != "" {
		return key
	}
	return "event"
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for k, v := range headers {
		switch typed := v.(type) {
		case string:
			attrs[k] = typed
		case []byte:
			attrs[k] = string(typed)
		default:
			attrs[k] = fmt.Sprint(v)
		}
	}
	return attrs
}
