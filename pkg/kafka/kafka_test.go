package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"darna/pkg/logger"
	"darna/pkg/realtime"

	"github.com/segmentio/kafka-go"
)

type mockWriter struct {
	mu       sync.Mutex
	written  []kafka.Message
	writeErr error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestChangeMessage_RoundTrip(t *testing.T) {
	ev, _ := realtime.NewEvent(realtime.TableMessages, realtime.OpInsert, "m1", map[string]string{"content": "hi"})

	msg, err := ChangeMessage(ev, "relay")
	if err != nil {
		t.Fatalf("ChangeMessage() error = %v", err)
	}
	if msg.Key != "Messages/m1" {
		t.Errorf("Key = %s", msg.Key)
	}
	if msg.GetEventID() != ev.ID || msg.Headers[HeaderTable] != realtime.TableMessages {
		t.Errorf("unexpected headers %v", msg.Headers)
	}

	back, err := msg.ChangeEvent()
	if err != nil {
		t.Fatalf("ChangeEvent() error = %v", err)
	}
	if back.ID != ev.ID || back.Key != "m1" || string(back.Record) != string(ev.Record) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestMessage_ChangeEventRejectsGarbage(t *testing.T) {
	msg := Message{Value: []byte("not json"), Headers: map[string]string{}}
	_, err := msg.ChangeEvent()
	if ClassifyError(err) != ErrorTypePermanent {
		t.Errorf("garbage payload should be a permanent error, got %v", err)
	}
}

func TestMessage_RetryCount(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("GetRetryCount() = %d, want 12", got)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"transient wrapper", NewTransientError("broker down", nil), ErrorTypeTransient},
		{"permanent wrapper", NewPermanentError("bad", nil), ErrorTypePermanent},
		{"deadline", context.DeadlineExceeded, ErrorTypeTransient},
		{"connection reset", errors.New("read tcp: Connection Reset by peer"), ErrorTypeTransient},
		{"unknown", errors.New("something odd"), ErrorTypePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProducer_EmitAndDLQ(t *testing.T) {
	writer := &mockWriter{}
	dlq := &mockWriter{}
	p := &Producer{writer: writer, dlqWriter: dlq, topic: "darna.changes", source: "relay", log: logger.Discard()}

	ev, _ := realtime.NewEvent(realtime.TableConversations, realtime.OpUpdate, "c1", map[string]string{"id": "c1"})
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(writer.written) != 1 || header(writer.written[0], HeaderEventID) != ev.ID {
		t.Fatalf("expected one message with event id, got %+v", writer.written)
	}

	writer.writeErr = errors.New("connection refused")
	if err := p.Emit(context.Background(), ev); err == nil {
		t.Fatalf("expected write error")
	}
	if len(dlq.written) != 1 || header(dlq.written[0], HeaderOriginalTopic) != "darna.changes" {
		t.Errorf("expected failed message in DLQ, got %+v", dlq.written)
	}
}

func TestProducer_RejectsInvalidAndClosed(t *testing.T) {
	p := &Producer{writer: &mockWriter{}, log: logger.Discard()}

	if err := p.Publish(context.Background(), Message{Value: []byte("x")}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}

	_ = p.Close()
	if err := p.Publish(context.Background(), Message{Key: "k", Value: []byte("x")}); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestConsumer_RetriesTransientThenDLQ(t *testing.T) {
	dlq := &mockWriter{}
	calls := 0
	c := &Consumer{
		dlqWriter:  dlq,
		topic:      "darna.changes",
		groupID:    "server",
		maxRetries: 2,
		retryDelay: time.Millisecond,
		handler: func(ctx context.Context, msg Message) error {
			calls++
			return NewTransientError("hub busy", nil)
		},
		log: logger.Discard(),
	}

	err := c.processMessage(context.Background(), Message{Key: "k", Value: []byte("{}"), Headers: map[string]string{}})
	if err == nil {
		t.Fatalf("expected error after retries")
	}
	if calls != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", calls)
	}
	if len(dlq.written) != 1 || header(dlq.written[0], "dlq-consumer-group") != "server" {
		t.Errorf("expected message in DLQ, got %+v", dlq.written)
	}
}

func TestConsumer_PermanentErrorSkipsRetry(t *testing.T) {
	calls := 0
	c := &Consumer{
		maxRetries: 5,
		handler: func(ctx context.Context, msg Message) error {
			calls++
			return NewPermanentError("bad payload", nil)
		},
		log: logger.Discard(),
	}

	_ = c.processMessage(context.Background(), Message{Headers: map[string]string{}})
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestHubHandler_PublishesIntoHub(t *testing.T) {
	hub := realtime.NewHub(4, logger.Discard())
	defer hub.Close()

	got := make(chan realtime.ChangeEvent, 1)
	sub, _ := hub.Subscribe(realtime.Filter{Table: realtime.TableMessages}, func(_ context.Context, ev realtime.ChangeEvent) {
		got <- ev
	})
	defer sub.Unsubscribe()

	ev, _ := realtime.NewEvent(realtime.TableMessages, realtime.OpInsert, "m1", map[string]string{"id": "m1"})
	msg, _ := ChangeMessage(ev, "relay")

	if err := HubHandler(hub)(context.Background(), msg); err != nil {
		t.Fatalf("HubHandler() error = %v", err)
	}

	select {
	case out := <-got:
		if out.ID != ev.ID {
			t.Errorf("unexpected event %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered to hub subscriber")
	}
}
