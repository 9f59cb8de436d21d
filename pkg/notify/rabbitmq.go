package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"darna/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 5 * time.Second
	queueSize      = 256
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel with the notification queue declared.
type Dialer func(url, queue string) (channel, func() error, error)

// RabbitNotifier publishes notifications as persistent JSON messages on a
// durable queue. Notify only enqueues; a single worker publishes in order and
// reconnects after a failure. When the buffer is full new notifications are
// dropped.
type RabbitNotifier struct {
	url   string
	queue string
	dial  Dialer
	log   *logger.Logger

	pending chan Notification
	done    chan struct{}
	once    sync.Once

	ch        channel
	closeConn func() error
}

func NewRabbitNotifier(url, queue string, log *logger.Logger) *RabbitNotifier {
	return newRabbitNotifier(url, queue, dialRabbit, log)
}

func newRabbitNotifier(url, queue string, dial Dialer, log *logger.Logger) *RabbitNotifier {
	n := &RabbitNotifier{
		url:     url,
		queue:   queue,
		dial:    dial,
		log:     log.Component("notifier"),
		pending: make(chan Notification, queueSize),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func dialRabbit(url, queue string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	return ch, conn.Close, nil
}

func (n *RabbitNotifier) Notify(_ context.Context, note Notification) {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	select {
	case <-n.done:
		return
	default:
	}

	select {
	case n.pending <- note:
	default:
		n.log.Warn("Notification buffer full, dropping",
			"kind", note.Kind,
			"recipient_id", note.RecipientID,
		)
	}
}

func (n *RabbitNotifier) run() {
	defer n.disconnect()

	for {
		select {
		case <-n.done:
			return
		case note := <-n.pending:
			if err := n.publish(note); err != nil {
				n.log.Warn("Failed to publish notification",
					"kind", note.Kind,
					"recipient_id", note.RecipientID,
					"error", err,
				)
				n.disconnect()
			}
		}
	}
}

func (n *RabbitNotifier) publish(note Notification) error {
	if n.ch == nil {
		ch, closeConn, err := n.dial(n.url, n.queue)
		if err != nil {
			return err
		}
		n.ch, n.closeConn = ch, closeConn
	}

	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	return n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    note.CreatedAt,
		Type:         string(note.Kind),
		Body:         body,
	})
}

func (n *RabbitNotifier) disconnect() {
	if n.ch != nil {
		_ = n.ch.Close()
		n.ch = nil
	}
	if n.closeConn != nil {
		_ = n.closeConn()
		n.closeConn = nil
	}
}

// Close stops the worker. Notifications still buffered are discarded.
func (n *RabbitNotifier) Close() error {
	n.once.Do(func() { close(n.done) })
	return nil
}
