package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"darna/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

type mockChannel struct {
	mu          sync.Mutex
	published   []amqp.Publishing
	publishFunc func() error
	closed      bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishFunc != nil {
		if err := m.publishFunc(); err != nil {
			return err
		}
	}
	m.published = append(m.published, msg)
	return nil
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockChannel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRabbitNotifier_PublishesPersistentJSON(t *testing.T) {
	ch := &mockChannel{}
	var dials int
	dial := func(url, queue string) (channel, func() error, error) {
		dials++
		return ch, func() error { return nil }, nil
	}

	n := newRabbitNotifier("amqp://test", "darna.notifications", dial, logger.Discard())
	defer n.Close()

	n.Notify(context.Background(), Notification{Kind: KindBookingAccepted, RecipientID: "guest-1", BookingRequestID: "b1"})
	n.Notify(context.Background(), Notification{Kind: KindBookingRejected, RecipientID: "guest-2"})

	waitFor(t, func() bool { return ch.count() == 2 })

	ch.mu.Lock()
	first := ch.published[0]
	ch.mu.Unlock()

	if first.DeliveryMode != amqp.Persistent || first.ContentType != "application/json" {
		t.Errorf("unexpected publishing %+v", first)
	}
	var decoded Notification
	if err := json.Unmarshal(first.Body, &decoded); err != nil || decoded.BookingRequestID != "b1" {
		t.Errorf("body = %s, err = %v", first.Body, err)
	}
	if decoded.CreatedAt.IsZero() {
		t.Errorf("CreatedAt should be stamped")
	}
	if dials != 1 {
		t.Errorf("expected connection reuse, dialed %d times", dials)
	}
}

func TestRabbitNotifier_ReconnectsAfterFailure(t *testing.T) {
	failing := &mockChannel{publishFunc: func() error { return errors.New("channel closed") }}
	healthy := &mockChannel{}
	channels := []*mockChannel{failing, healthy}

	var mu sync.Mutex
	dial := func(url, queue string) (channel, func() error, error) {
		mu.Lock()
		defer mu.Unlock()
		ch := channels[0]
		if len(channels) > 1 {
			channels = channels[1:]
		}
		return ch, func() error { return nil }, nil
	}

	n := newRabbitNotifier("amqp://test", "q", dial, logger.Discard())
	defer n.Close()

	n.Notify(context.Background(), Notification{Kind: KindBookingRequested, RecipientID: "owner-1"})
	n.Notify(context.Background(), Notification{Kind: KindBookingRequested, RecipientID: "owner-2"})

	waitFor(t, func() bool { return healthy.count() == 1 })

	failing.mu.Lock()
	closed := failing.closed
	failing.mu.Unlock()
	if !closed {
		t.Errorf("failed channel should be closed before reconnecting")
	}
}

func TestRabbitNotifier_DialFailureDoesNotBlock(t *testing.T) {
	dial := func(url, queue string) (channel, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}
	n := newRabbitNotifier("amqp://test", "q", dial, logger.Discard())
	defer n.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*2; i++ {
			n.Notify(context.Background(), Notification{Kind: KindMessageReceived})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked while the broker was down")
	}
}

func TestNotifyAfterClose(t *testing.T) {
	n := newRabbitNotifier("amqp://test", "q", func(string, string) (channel, func() error, error) {
		return &mockChannel{}, func() error { return nil }, nil
	}, logger.Discard())

	_ = n.Close()
	_ = n.Close()
	n.Notify(context.Background(), Notification{Kind: KindBookingAccepted})
}
